package twin

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/kuitang/nursery-suite/internal/obs"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// ---- auth ----

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, r, validationError(err))
		return
	}
	p, err := s.users.Authenticate(req.Username, req.Password)
	if err != nil {
		obs.From(r.Context()).Info("twin_login_rejected", "username", req.Username)
		s.writeError(w, r, err)
		return
	}
	token, err := s.tokens.Issue(p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, TokenType: "Bearer", Username: p.Username, Role: p.Authority})
}

// ---- categories ----

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats := s.store.SearchCategories(r.URL.Query().Get("name"))
	out := make([]categoryDTO, 0, len(cats))
	for _, c := range cats {
		out = append(out, s.categoryDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.store.Category(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.categoryDTO(c))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.store.CreateCategory(req.Name, req.parentID())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.categoryDTO(c))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req categoryRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.store.UpdateCategory(id, req.Name, req.parentID())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.categoryDTO(c))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeleteCategory(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- plants ----

func (s *Server) handleListPlants(w http.ResponseWriter, r *http.Request) {
	filter := PlantFilter{Name: r.URL.Query().Get("name")}
	if raw := r.URL.Query().Get("categoryId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, errs.New(errs.InvalidArgument, "Invalid categoryId"))
			return
		}
		filter.CategoryID = id
	}
	s.writePlants(w, s.store.Plants(filter))
}

func (s *Server) handleListPlantsByCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.store.Category(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writePlants(w, s.store.Plants(PlantFilter{CategoryID: id}))
}

func (s *Server) writePlants(w http.ResponseWriter, plants []Plant) {
	out := make([]plantDTO, 0, len(plants))
	for _, p := range plants {
		out = append(out, s.plantDTO(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPlant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.store.Plant(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.plantDTO(p))
}

func (s *Server) handleCreatePlant(w http.ResponseWriter, r *http.Request) {
	s.createPlant(w, r, 0)
}

func (s *Server) handleCreatePlantInCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.createPlant(w, r, id)
}

func (s *Server) createPlant(w http.ResponseWriter, r *http.Request, categoryID int64) {
	var req plantRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	fields := req.fields(categoryID)
	if fields.CategoryID == 0 {
		s.writeError(w, r, errs.New(errs.InvalidArgument, "Category is required"))
		return
	}
	p, err := s.store.CreatePlant(fields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.plantDTO(p))
}

func (s *Server) handleUpdatePlant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	existing, err := s.store.Plant(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req plantRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	fields := req.fields(0)
	if fields.CategoryID == 0 {
		fields.CategoryID = existing.CategoryID
	}
	p, err := s.store.UpdatePlant(id, fields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.plantDTO(p))
}

func (s *Server) handleDeletePlant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeletePlant(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- sales ----

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := s.store.Sales(DefaultSalesSort)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]saleDTO, 0, len(sales))
	for _, sl := range sales {
		out = append(out, s.saleDTO(sl))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSalesPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := queryInt(q.Get("page"), 0)
	if err != nil || page < 0 {
		s.writeError(w, r, errs.New(errs.InvalidArgument, "page must be a non-negative integer"))
		return
	}
	size, err := queryInt(q.Get("size"), defaultPageSize)
	if err != nil || size < 1 {
		s.writeError(w, r, errs.New(errs.InvalidArgument, "size must be a positive integer"))
		return
	}
	size = min(size, maxPageSize)
	order, err := ParseSalesSort(q.Get("sort"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sales, err := s.store.Sales(order)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.salePage(sales, page, size))
}

func (s *Server) salePage(sales []Sale, page, size int) salePageDTO {
	total := len(sales)
	pages := int(math.Ceil(float64(total) / float64(size)))
	start := min(page*size, total)
	end := min(start+size, total)

	out := salePageDTO{
		Content:       make([]saleDTO, 0, end-start),
		TotalElements: total,
		TotalPages:    pages,
		Number:        page,
		Size:          size,
		First:         page == 0,
		Last:          page >= pages-1,
	}
	for _, sl := range sales[start:end] {
		out.Content = append(out.Content, s.saleDTO(sl))
	}
	return out
}

// ParseSalesSort reads "field[,asc|desc]". Empty means soldAt descending.
func ParseSalesSort(raw string) (SalesSort, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultSalesSort, nil
	}
	field, dir, _ := strings.Cut(raw, ",")
	order := SalesSort{Field: strings.TrimSpace(field)}
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "", "asc":
	case "desc":
		order.Desc = true
	default:
		return SalesSort{}, errs.Newf(errs.InvalidArgument, "Invalid sort direction: %s", dir)
	}
	if !salesSortFields[order.Field] {
		return SalesSort{}, errs.Newf(errs.InvalidArgument, "Unsupported sort field: %s", order.Field)
	}
	return order, nil
}

func (s *Server) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sl, err := s.store.Sale(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.saleDTO(sl))
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	plantID, err := pathID(r, "plantId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	raw := r.URL.Query().Get("quantity")
	if raw == "" {
		s.writeError(w, r, errs.New(errs.InvalidArgument, "Quantity is required"))
		return
	}
	quantity, err := strconv.Atoi(raw)
	if err != nil {
		s.writeError(w, r, errs.New(errs.InvalidArgument, "Quantity must be a whole number"))
		return
	}
	sl, err := s.store.Sell(plantID, quantity, s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	obs.From(r.Context()).Info("twin_sale_recorded", "sale_id", sl.ID, "plant_id", plantID, "quantity", quantity)
	writeJSON(w, http.StatusCreated, s.saleDTO(sl))
}

func (s *Server) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeleteSale(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- dashboard ----

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sum := s.store.Summary()
	writeJSON(w, http.StatusOK, dashboardDTO{
		Categories:     sum.Categories,
		MainCategories: sum.MainCategories,
		SubCategories:  sum.SubCategories,
		Plants:         sum.Plants,
		LowStock:       sum.LowStock,
		Sales:          sum.Sales,
		Revenue:        money(sum.Revenue),
	})
}

// ---- helpers ----

func (s *Server) decodeValid(r *http.Request, v any) error {
	if err := decodeJSON(r, v); err != nil {
		return err
	}
	if err := s.validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errs.New(errs.InvalidArgument, "Request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Wrap(errs.InvalidArgument, "Malformed JSON request", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errs.Newf(errs.InvalidArgument, "Invalid id: %s", raw)
	}
	return id, nil
}

func queryInt(raw string, fallback int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return strconv.Atoi(strings.TrimSpace(raw))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps a coded error onto the error envelope.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(errs.CodeOf(err))
	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	obs.From(r.Context()).Log(r.Context(), level, "twin_request_failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err.Error(),
	)
	writeEnvelope(w, s.now(), status, errs.MessageOf(err))
}

func (s *Server) writeRateLimited(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, s.now(), http.StatusTooManyRequests, "Rate limit exceeded")
}

func writeEnvelope(w http.ResponseWriter, now time.Time, status int, message string) {
	writeJSON(w, status, ErrorEnvelope{
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Timestamp: now,
	})
}
