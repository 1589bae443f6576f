package twin

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kuitang/nursery-suite/internal/errs"
)

// Response bodies. Money goes out as JSON numbers.

type categoryRefDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type categoryDTO struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	Parent        *categoryRefDTO  `json:"parent"`
	ParentName    string           `json:"parentName,omitempty"`
	SubCategories []categoryRefDTO `json:"subCategories"`
}

type plantDTO struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       float64         `json:"price"`
	Quantity    int             `json:"quantity"`
	Category    *categoryRefDTO `json:"category,omitempty"`
}

type saleDTO struct {
	ID         int64     `json:"id"`
	Plant      plantDTO  `json:"plant"`
	Quantity   int       `json:"quantity"`
	TotalPrice float64   `json:"totalPrice"`
	SoldAt     time.Time `json:"soldAt"`
}

type salePageDTO struct {
	Content       []saleDTO `json:"content"`
	TotalElements int       `json:"totalElements"`
	TotalPages    int       `json:"totalPages"`
	Number        int       `json:"number"`
	Size          int       `json:"size"`
	First         bool      `json:"first"`
	Last          bool      `json:"last"`
}

type dashboardDTO struct {
	Categories     int     `json:"categories"`
	MainCategories int     `json:"mainCategories"`
	SubCategories  int     `json:"subCategories"`
	Plants         int     `json:"plants"`
	LowStock       int     `json:"lowStock"`
	Sales          int     `json:"sales"`
	Revenue        float64 `json:"revenue"`
}

type loginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

// ErrorEnvelope is the body of every 4xx and 5xx API response.
type ErrorEnvelope struct {
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func (s *Server) categoryDTO(c Category) categoryDTO {
	out := categoryDTO{ID: c.ID, Name: c.Name, SubCategories: []categoryRefDTO{}}
	if c.ParentID != 0 {
		if parent, err := s.store.Category(c.ParentID); err == nil {
			out.Parent = &categoryRefDTO{ID: parent.ID, Name: parent.Name}
			out.ParentName = parent.Name
		}
	}
	for _, child := range s.store.Children(c.ID) {
		out.SubCategories = append(out.SubCategories, categoryRefDTO{ID: child.ID, Name: child.Name})
	}
	return out
}

func (s *Server) plantDTO(p Plant) plantDTO {
	out := plantDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       money(p.Price),
		Quantity:    p.Quantity,
	}
	if c, err := s.store.Category(p.CategoryID); err == nil {
		out.Category = &categoryRefDTO{ID: c.ID, Name: c.Name}
	}
	return out
}

func (s *Server) saleDTO(sl Sale) saleDTO {
	p, err := s.store.Plant(sl.PlantID)
	if err != nil {
		p = Plant{ID: sl.PlantID, Name: sl.PlantName, Price: sl.PlantPrice}
	}
	return saleDTO{
		ID:         sl.ID,
		Plant:      s.plantDTO(p),
		Quantity:   sl.Quantity,
		TotalPrice: money(sl.TotalPrice),
		SoldAt:     sl.SoldAt,
	}
}

// Request bodies.

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type idRef struct {
	ID int64 `json:"id"`
}

// categoryRequest accepts the parent either nested or flat.
type categoryRequest struct {
	Name     string `json:"name" validate:"required,min=3,max=10"`
	Parent   *idRef `json:"parent"`
	ParentID *int64 `json:"parentId"`
}

func (r categoryRequest) parentID() int64 {
	if r.ParentID != nil {
		return *r.ParentID
	}
	if r.Parent != nil {
		return r.Parent.ID
	}
	return 0
}

// plantRequest accepts the category as categoryId, a nested category or the path.
type plantRequest struct {
	Name        string          `json:"name" validate:"required,min=3,max=25"`
	Description string          `json:"description" validate:"max=255"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity" validate:"gte=0"`
	CategoryID  *int64          `json:"categoryId"`
	Category    *idRef          `json:"category"`
}

func (r plantRequest) fields(pathCategoryID int64) PlantFields {
	categoryID := pathCategoryID
	switch {
	case categoryID != 0:
	case r.CategoryID != nil:
		categoryID = *r.CategoryID
	case r.Category != nil:
		categoryID = r.Category.ID
	}
	return PlantFields{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Quantity:    r.Quantity,
		CategoryID:  categoryID,
	}
}

// fieldMessages maps validator failures to user-facing messages, keyed by
// struct namespace and tag.
var fieldMessages = map[string]string{
	"loginRequest.Username/required": "Username is required",
	"loginRequest.Password/required": "Password is required",
	"categoryRequest.Name/required":  "Category name is required",
	"categoryRequest.Name/min":       "Category name must be between 3 and 10 characters",
	"categoryRequest.Name/max":       "Category name must be between 3 and 10 characters",
	"plantRequest.Name/required":     "Plant name is required",
	"plantRequest.Name/min":          "Plant name must be between 3 and 25 characters",
	"plantRequest.Name/max":          "Plant name must be between 3 and 25 characters",
	"plantRequest.Description/max":   "Description must be at most 255 characters",
	"plantRequest.Quantity/gte":      "Quantity cannot be negative",
	"sellForm.PlantID/required":      "Plant is required",
	"sellForm.Quantity/min":          "Quantity must be greater than 0",
}

// validationError turns the first validator failure into an InvalidArgument error.
func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return errs.Wrap(errs.InvalidArgument, "Invalid request", err)
	}
	fe := verrs[0]
	if msg, ok := fieldMessages[fe.StructNamespace()+"/"+fe.Tag()]; ok {
		return errs.New(errs.InvalidArgument, msg)
	}
	return errs.New(errs.InvalidArgument, fmt.Sprintf("%s is invalid", fe.Field()))
}

// fieldErrors maps every failing field to its message for form re-rendering.
func fieldErrors(err error) map[string]string {
	out := make(map[string]string)
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return out
	}
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		msg, ok := fieldMessages[fe.StructNamespace()+"/"+fe.Tag()]
		if !ok {
			msg = fe.Field() + " is invalid"
		}
		out[fe.Field()] = msg
	}
	return out
}
