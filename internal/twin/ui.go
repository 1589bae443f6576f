package twin

import (
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/kuitang/nursery-suite/internal/obs"
)

const uiPageSize = 10

type categoryRow struct {
	ID         int64
	Name       string
	ParentName string
}

type plantRow struct {
	ID           int64
	Name         string
	CategoryName string
	Price        decimal.Decimal
	Quantity     int
}

type plantOption struct {
	ID       int64
	Name     string
	Quantity int
}

type saleRow struct {
	ID         int64
	PlantName  string
	Quantity   int
	TotalPrice decimal.Decimal
	SoldAt     time.Time
}

type sortColumn struct {
	Label  string
	Href   string
	Active bool
	Desc   bool
}

type pageLink struct {
	Label    string
	Href     string
	Active   bool
	Disabled bool
}

type pageData struct {
	Title    string
	Active   string
	User     Principal
	LoggedIn bool
	Flash    string
	Error    string
	Status   int

	FieldErrors map[string]string
	Form        map[string]string
	FormAction  string
	Heading     string

	Summary        Summary
	Categories     []categoryRow
	ParentOptions  []Category
	Plants         []plantRow
	PlantOptions   []plantOption
	Sales          []saleRow
	Columns        []sortColumn
	Pages          []pageLink
	Search         string
	CategoryFilter int64
}

func (s *Server) uiRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Use(s.loadSession, limit)

	r.Get("/login", s.showLogin)
	r.Post("/login", s.handleUILogin)
	r.Get("/logout", s.handleUILogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/ui/dashboard", http.StatusFound)
		})
		r.Get("/dashboard", s.showDashboard)
		r.Get("/categories", s.showCategories)
		r.Get("/plants", s.showPlants)
		r.Get("/sales", s.showSales)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUIAdmin)

			r.Get("/categories/add", s.showCategoryForm)
			r.Post("/categories/add", s.handleCategoryForm)
			r.Get("/categories/edit/{id}", s.showCategoryForm)
			r.Post("/categories/edit/{id}", s.handleCategoryForm)
			r.Post("/categories/delete/{id}", s.handleUIDeleteCategory)
			r.Get("/plants/add", s.showPlantForm)
			r.Post("/plants/add", s.handlePlantForm)
			r.Get("/plants/edit/{id}", s.showPlantForm)
			r.Post("/plants/edit/{id}", s.handlePlantForm)
			r.Post("/plants/delete/{id}", s.handleUIDeletePlant)
			r.Get("/sales/new", s.showSellForm)
			r.Post("/sales/new", s.handleSellForm)
			r.Post("/sales/delete/{id}", s.handleUIDeleteSale)
		})
	})
}

// ---- session middleware ----

func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := s.sessions.get(sessionIDFromRequest(r)); ok {
			r = r.WithContext(withPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/ui/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireUIAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, _ := PrincipalFromContext(r.Context()); !p.IsAdmin() {
			s.renderer.RenderError(w, http.StatusForbidden, "You do not have permission to access this page")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) page(r *http.Request, title, active string) pageData {
	p, ok := PrincipalFromContext(r.Context())
	return pageData{
		Title:       title,
		Active:      active,
		User:        p,
		LoggedIn:    ok,
		Flash:       s.sessions.popFlash(sessionIDFromRequest(r)),
		FieldErrors: map[string]string{},
		Form:        map[string]string{},
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	if err := s.renderer.Render(w, status, name, data); err != nil {
		obs.From(r.Context()).Error("twin_render_failed", "template", name, "error", err)
		s.renderer.RenderError(w, http.StatusInternalServerError, "Something went wrong")
	}
}

func (s *Server) flashAndRedirect(w http.ResponseWriter, r *http.Request, msg, to string) {
	s.sessions.setFlash(sessionIDFromRequest(r), msg)
	http.Redirect(w, r, to, http.StatusFound)
}

// ---- login ----

func (s *Server) showLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := PrincipalFromContext(r.Context()); ok {
		http.Redirect(w, r, "/ui/dashboard", http.StatusFound)
		return
	}
	data := s.page(r, "Login", "")
	if r.URL.Query().Has("logout") {
		data.Flash = "You have been logged out"
	}
	s.render(w, r, http.StatusOK, "login.html", data)
}

func (s *Server) handleUILogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderer.RenderError(w, http.StatusBadRequest, "Invalid form")
		return
	}
	form := loginRequest{
		Username: strings.TrimSpace(r.PostForm.Get("username")),
		Password: r.PostForm.Get("password"),
	}
	data := s.page(r, "Login", "")
	data.Form["username"] = form.Username

	if err := s.validate.Struct(form); err != nil {
		data.FieldErrors = fieldErrors(err)
		s.render(w, r, http.StatusOK, "login.html", data)
		return
	}
	p, err := s.users.Authenticate(form.Username, form.Password)
	if err != nil {
		data.Error = "Invalid username or password."
		s.render(w, r, http.StatusOK, "login.html", data)
		return
	}
	id, err := s.sessions.create(p)
	if err != nil {
		s.renderer.RenderError(w, http.StatusInternalServerError, "Could not start session")
		return
	}
	setSessionCookie(w, id)
	http.Redirect(w, r, "/ui/dashboard", http.StatusFound)
}

func (s *Server) handleUILogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.delete(sessionIDFromRequest(r))
	clearSessionCookie(w)
	http.Redirect(w, r, "/ui/login?logout", http.StatusFound)
}

// ---- dashboard ----

func (s *Server) showDashboard(w http.ResponseWriter, r *http.Request) {
	data := s.page(r, "Dashboard", "dashboard")
	data.Summary = s.store.Summary()
	s.render(w, r, http.StatusOK, "dashboard.html", data)
}

// ---- categories ----

func (s *Server) showCategories(w http.ResponseWriter, r *http.Request) {
	data := s.page(r, "Categories", "categories")
	data.Search = strings.TrimSpace(r.URL.Query().Get("name"))
	for _, c := range s.store.SearchCategories(data.Search) {
		row := categoryRow{ID: c.ID, Name: c.Name, ParentName: "-"}
		if parent, err := s.store.Category(c.ParentID); err == nil {
			row.ParentName = parent.Name
		}
		data.Categories = append(data.Categories, row)
	}
	s.render(w, r, http.StatusOK, "categories.html", data)
}

func (s *Server) showCategoryForm(w http.ResponseWriter, r *http.Request) {
	data := s.page(r, "Categories", "categories")
	data.Heading, data.FormAction = "Add Category", "/ui/categories/add"
	if raw := chi.URLParam(r, "id"); raw != "" {
		id, _ := strconv.ParseInt(raw, 10, 64)
		c, err := s.store.Category(id)
		if err != nil {
			s.renderer.RenderError(w, http.StatusNotFound, errs.MessageOf(err))
			return
		}
		data.Heading, data.FormAction = "Edit Category", "/ui/categories/edit/"+raw
		data.Form["name"] = c.Name
		data.Form["parentId"] = strconv.FormatInt(c.ParentID, 10)
	}
	data.ParentOptions = s.mainCategories()
	s.render(w, r, http.StatusOK, "category_form.html", data)
}

func (s *Server) handleCategoryForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderer.RenderError(w, http.StatusBadRequest, "Invalid form")
		return
	}
	parentID, _ := strconv.ParseInt(r.PostForm.Get("parentId"), 10, 64)
	req := categoryRequest{Name: strings.TrimSpace(r.PostForm.Get("name")), ParentID: &parentID}

	raw := chi.URLParam(r, "id")
	data := s.page(r, "Categories", "categories")
	data.Heading, data.FormAction = "Add Category", "/ui/categories/add"
	if raw != "" {
		data.Heading, data.FormAction = "Edit Category", "/ui/categories/edit/"+raw
	}
	data.Form["name"] = req.Name
	data.Form["parentId"] = strconv.FormatInt(parentID, 10)
	data.ParentOptions = s.mainCategories()

	if err := s.validate.Struct(req); err != nil {
		data.FieldErrors = fieldErrors(err)
		s.render(w, r, http.StatusOK, "category_form.html", data)
		return
	}
	var err error
	if raw == "" {
		_, err = s.store.CreateCategory(req.Name, parentID)
	} else {
		id, _ := strconv.ParseInt(raw, 10, 64)
		_, err = s.store.UpdateCategory(id, req.Name, parentID)
	}
	if err != nil {
		data.Error = errs.MessageOf(err)
		s.render(w, r, http.StatusOK, "category_form.html", data)
		return
	}
	msg := "Category created successfully"
	if raw != "" {
		msg = "Category updated successfully"
	}
	s.flashAndRedirect(w, r, msg, "/ui/categories")
}

func (s *Server) handleUIDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err == nil {
		err = s.store.DeleteCategory(id)
	}
	if err != nil {
		s.flashAndRedirect(w, r, errs.MessageOf(err), "/ui/categories")
		return
	}
	s.flashAndRedirect(w, r, "Category deleted successfully", "/ui/categories")
}

func (s *Server) mainCategories() []Category {
	var out []Category
	for _, c := range s.store.Categories() {
		if c.ParentID == 0 {
			out = append(out, c)
		}
	}
	return out
}

// ---- plants ----

var plantColumns = []struct{ label, field string }{
	{"Name", "name"},
	{"Category", "category"},
	{"Price", "price"},
	{"Stock", "quantity"},
}

func (s *Server) showPlants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := s.page(r, "Plants", "plants")
	data.Search = strings.TrimSpace(q.Get("name"))
	data.CategoryFilter, _ = strconv.ParseInt(q.Get("categoryId"), 10, 64)
	data.ParentOptions = s.store.Categories()

	rows := make([]plantRow, 0)
	for _, p := range s.store.Plants(PlantFilter{Name: data.Search, CategoryID: data.CategoryFilter}) {
		row := plantRow{ID: p.ID, Name: p.Name, Price: p.Price, Quantity: p.Quantity}
		if c, err := s.store.Category(p.CategoryID); err == nil {
			row.CategoryName = c.Name
		}
		rows = append(rows, row)
	}

	field, desc := q.Get("sortField"), strings.EqualFold(q.Get("sortDir"), "desc")
	sortPlantRows(rows, field, desc)

	base := url.Values{}
	if data.Search != "" {
		base.Set("name", data.Search)
	}
	if data.CategoryFilter != 0 {
		base.Set("categoryId", strconv.FormatInt(data.CategoryFilter, 10))
	}
	for _, col := range plantColumns {
		data.Columns = append(data.Columns, sortLink("/ui/plants", base, col.label, col.field, field, desc))
	}

	page := pageNumber(q)
	start, end := pageBounds(len(rows), page)
	data.Plants = rows[start:end]
	data.Pages = pageLinks("/ui/plants", withSort(base, field, desc), page, len(rows))
	s.render(w, r, http.StatusOK, "plants.html", data)
}

func sortPlantRows(rows []plantRow, field string, desc bool) {
	less := func(a, b plantRow) int {
		switch field {
		case "name":
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case "category":
			return strings.Compare(strings.ToLower(a.CategoryName), strings.ToLower(b.CategoryName))
		case "price":
			return a.Price.Cmp(b.Price)
		case "quantity":
			return compareInt64(int64(a.Quantity), int64(b.Quantity))
		default:
			return 0
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		c := less(rows[i], rows[j])
		if c == 0 {
			c = compareInt64(rows[i].ID, rows[j].ID)
			return c < 0
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func (s *Server) showPlantForm(w http.ResponseWriter, r *http.Request) {
	data := s.page(r, "Plants", "plants")
	data.Heading, data.FormAction = "Add Plant", "/ui/plants/add"
	if raw := chi.URLParam(r, "id"); raw != "" {
		id, _ := strconv.ParseInt(raw, 10, 64)
		p, err := s.store.Plant(id)
		if err != nil {
			s.renderer.RenderError(w, http.StatusNotFound, errs.MessageOf(err))
			return
		}
		data.Heading, data.FormAction = "Edit Plant", "/ui/plants/edit/"+raw
		data.Form["name"] = p.Name
		data.Form["categoryId"] = strconv.FormatInt(p.CategoryID, 10)
		data.Form["price"] = p.Price.StringFixed(2)
		data.Form["quantity"] = strconv.Itoa(p.Quantity)
	}
	data.ParentOptions = s.subCategories()
	s.render(w, r, http.StatusOK, "plant_form.html", data)
}

func (s *Server) handlePlantForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderer.RenderError(w, http.StatusBadRequest, "Invalid form")
		return
	}
	raw := chi.URLParam(r, "id")
	data := s.page(r, "Plants", "plants")
	data.Heading, data.FormAction = "Add Plant", "/ui/plants/add"
	if raw != "" {
		data.Heading, data.FormAction = "Edit Plant", "/ui/plants/edit/"+raw
	}
	for _, k := range []string{"name", "categoryId", "price", "quantity"} {
		data.Form[k] = strings.TrimSpace(r.PostForm.Get(k))
	}
	data.ParentOptions = s.subCategories()

	req := plantRequest{Name: data.Form["name"]}
	categoryID, _ := strconv.ParseInt(data.Form["categoryId"], 10, 64)
	req.CategoryID = &categoryID
	price, priceErr := decimal.NewFromString(data.Form["price"])
	req.Price = price
	quantity, quantityErr := strconv.Atoi(data.Form["quantity"])
	req.Quantity = quantity

	if err := s.validate.Struct(req); err != nil {
		data.FieldErrors = fieldErrors(err)
	}
	if categoryID == 0 {
		data.FieldErrors["CategoryID"] = "Category is required"
	}
	if priceErr != nil || !price.IsPositive() {
		data.FieldErrors["Price"] = "Price must be greater than 0"
	}
	if quantityErr != nil {
		data.FieldErrors["Quantity"] = "Quantity must be a whole number"
	}
	if len(data.FieldErrors) > 0 {
		s.render(w, r, http.StatusOK, "plant_form.html", data)
		return
	}

	var err error
	if raw == "" {
		_, err = s.store.CreatePlant(req.fields(0))
	} else {
		id, _ := strconv.ParseInt(raw, 10, 64)
		_, err = s.store.UpdatePlant(id, req.fields(0))
	}
	if err != nil {
		data.Error = errs.MessageOf(err)
		s.render(w, r, http.StatusOK, "plant_form.html", data)
		return
	}
	msg := "Plant added successfully"
	if raw != "" {
		msg = "Plant updated successfully"
	}
	s.flashAndRedirect(w, r, msg, "/ui/plants")
}

func (s *Server) handleUIDeletePlant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err == nil {
		err = s.store.DeletePlant(id)
	}
	if err != nil {
		s.flashAndRedirect(w, r, errs.MessageOf(err), "/ui/plants")
		return
	}
	s.flashAndRedirect(w, r, "Plant deleted successfully", "/ui/plants")
}

func (s *Server) subCategories() []Category {
	var out []Category
	for _, c := range s.store.Categories() {
		if c.ParentID != 0 {
			out = append(out, c)
		}
	}
	return out
}

// ---- sales ----

var saleColumns = []struct{ label, field string }{
	{"Plant", "plant.name"},
	{"Quantity", "quantity"},
	{"Total Price", "totalPrice"},
	{"Sold At", "soldAt"},
}

func (s *Server) showSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := s.page(r, "Sales", "sales")

	field, desc := q.Get("sortField"), strings.EqualFold(q.Get("sortDir"), "desc")
	order := DefaultSalesSort
	if field != "" {
		order = SalesSort{Field: field, Desc: desc}
	}
	sales, err := s.store.Sales(order)
	if err != nil {
		s.renderer.RenderError(w, http.StatusBadRequest, errs.MessageOf(err))
		return
	}
	for _, col := range saleColumns {
		data.Columns = append(data.Columns, sortLink("/ui/sales", url.Values{}, col.label, col.field, field, desc))
	}

	page := pageNumber(q)
	start, end := pageBounds(len(sales), page)
	for _, sl := range sales[start:end] {
		data.Sales = append(data.Sales, saleRow{
			ID:         sl.ID,
			PlantName:  sl.PlantName,
			Quantity:   sl.Quantity,
			TotalPrice: sl.TotalPrice,
			SoldAt:     sl.SoldAt,
		})
	}
	data.Pages = pageLinks("/ui/sales", withSort(url.Values{}, field, desc), page, len(sales))
	s.render(w, r, http.StatusOK, "sales.html", data)
}

func (s *Server) showSellForm(w http.ResponseWriter, r *http.Request) {
	data := s.page(r, "Sales", "sales")
	data.PlantOptions = s.plantOptions()
	s.render(w, r, http.StatusOK, "sale_form.html", data)
}

type sellForm struct {
	PlantID  int64 `validate:"required"`
	Quantity int   `validate:"min=1"`
}

func (s *Server) handleSellForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderer.RenderError(w, http.StatusBadRequest, "Invalid form")
		return
	}
	data := s.page(r, "Sales", "sales")
	data.Form["plantId"] = r.PostForm.Get("plantId")
	data.Form["quantity"] = r.PostForm.Get("quantity")
	data.PlantOptions = s.plantOptions()

	var form sellForm
	form.PlantID, _ = strconv.ParseInt(data.Form["plantId"], 10, 64)
	form.Quantity, _ = strconv.Atoi(strings.TrimSpace(data.Form["quantity"]))
	if err := s.validate.Struct(form); err != nil {
		data.FieldErrors = fieldErrors(err)
		s.render(w, r, http.StatusOK, "sale_form.html", data)
		return
	}
	if _, err := s.store.Sell(form.PlantID, form.Quantity, s.now()); err != nil {
		data.Error = errs.MessageOf(err)
		s.render(w, r, http.StatusOK, "sale_form.html", data)
		return
	}
	s.flashAndRedirect(w, r, "Plant sold successfully", "/ui/sales")
}

func (s *Server) handleUIDeleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err == nil {
		err = s.store.DeleteSale(id)
	}
	if err != nil {
		s.flashAndRedirect(w, r, errs.MessageOf(err), "/ui/sales")
		return
	}
	s.flashAndRedirect(w, r, "Sale deleted successfully", "/ui/sales")
}

func (s *Server) plantOptions() []plantOption {
	plants := s.store.Plants(PlantFilter{})
	out := make([]plantOption, 0, len(plants))
	for _, p := range plants {
		out = append(out, plantOption{ID: p.ID, Name: p.Name, Quantity: p.Quantity})
	}
	return out
}

// ---- paging and sorting links ----

func pageNumber(q url.Values) int {
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 0 {
		return 0
	}
	return page
}

func pageBounds(total, page int) (int, int) {
	start := min(page*uiPageSize, total)
	return start, min(start+uiPageSize, total)
}

func withSort(base url.Values, field string, desc bool) url.Values {
	out := url.Values{}
	for k, v := range base {
		out[k] = append([]string(nil), v...)
	}
	if field != "" {
		out.Set("sortField", field)
		out.Set("sortDir", direction(desc))
	}
	return out
}

func direction(desc bool) string {
	if desc {
		return "desc"
	}
	return "asc"
}

// sortLink toggles the direction of the active column; other columns start ascending.
func sortLink(path string, base url.Values, label, field, activeField string, activeDesc bool) sortColumn {
	col := sortColumn{Label: label, Active: field == activeField}
	nextDesc := false
	if col.Active {
		col.Desc = activeDesc
		nextDesc = !activeDesc
	}
	q := withSort(base, field, nextDesc)
	q.Set("page", "0")
	col.Href = path + "?" + q.Encode()
	return col
}

func pageLinks(path string, base url.Values, page, total int) []pageLink {
	pages := (total + uiPageSize - 1) / uiPageSize
	if pages <= 1 {
		return nil
	}
	href := func(n int) string {
		q := withSort(base, "", false)
		q.Set("page", strconv.Itoa(n))
		return path + "?" + q.Encode()
	}
	links := []pageLink{{Label: "Previous", Href: href(max(page-1, 0)), Disabled: page == 0}}
	for n := 0; n < pages; n++ {
		links = append(links, pageLink{Label: strconv.Itoa(n + 1), Href: href(n), Active: n == page})
	}
	links = append(links, pageLink{Label: "Next", Href: href(min(page+1, pages-1)), Disabled: page >= pages-1})
	return links
}
