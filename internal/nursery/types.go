// Package nursery holds the wire types of the nursery application API and
// typed wrappers around its endpoints.
package nursery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ID is an entity identifier that may arrive as a JSON number or string.
type ID struct {
	raw     string
	numeric bool
}

// IntID returns a numeric ID.
func IntID(n int64) ID {
	return ID{raw: strconv.FormatInt(n, 10), numeric: true}
}

// DecimalID returns a numeric ID of any magnitude.
func DecimalID(d decimal.Decimal) ID {
	return ID{raw: d.String(), numeric: true}
}

// StringID returns an opaque ID.
func StringID(s string) ID {
	return ID{raw: s}
}

// IDFromAny converts a decoded JSON value into an ID.
func IDFromAny(v any) (ID, bool) {
	switch typed := v.(type) {
	case float64:
		if typed == math.Trunc(typed) && math.Abs(typed) < 1<<63 {
			return IntID(int64(typed)), true
		}
		return DecimalID(decimal.NewFromFloat(typed)), true
	case json.Number:
		return ID{raw: typed.String(), numeric: true}, true
	case int:
		return IntID(int64(typed)), true
	case int64:
		return IntID(typed), true
	case string:
		if typed == "" {
			return ID{}, false
		}
		return StringID(typed), true
	}
	return ID{}, false
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool { return id.raw == "" }

// IsNumeric reports whether the ID was a JSON number.
func (id ID) IsNumeric() bool { return id.numeric }

// Int64 returns the numeric value of the ID.
func (id ID) Int64() (int64, bool) {
	if !id.numeric {
		return 0, false
	}
	n, err := strconv.ParseInt(id.raw, 10, 64)
	return n, err == nil
}

// Decimal returns the exact numeric value of the ID, including values that do
// not fit an int64.
func (id ID) Decimal() (decimal.Decimal, bool) {
	if !id.numeric {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(id.raw)
	return d, err == nil
}

func (id ID) String() string { return id.raw }

func (id ID) MarshalJSON() ([]byte, error) {
	if id.raw == "" {
		return []byte("null"), nil
	}
	if id.numeric {
		return []byte(id.raw), nil
	}
	return json.Marshal(id.raw)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	*id = ID{raw: n.String(), numeric: true}
	return nil
}

// CategoryRef is the compact category embedded in plants and categories.
type CategoryRef struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// Category is a plant category.
type Category struct {
	ID            ID            `json:"id"`
	Name          string        `json:"name"`
	Parent        *CategoryRef  `json:"parent"`
	ParentName    string        `json:"parentName,omitempty"`
	SubCategories []CategoryRef `json:"subCategories"`
}

// Plant is a plant record. The stock count field name varies between
// deployments; use StockCount for the effective value.
type Plant struct {
	ID                ID              `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	Quantity          *int            `json:"quantity,omitempty"`
	Stock             *int            `json:"stock,omitempty"`
	AvailableQuantity *int            `json:"availableQuantity,omitempty"`
	Category          *CategoryRef    `json:"category,omitempty"`
}

// StockCount applies the quantity, stock, availableQuantity precedence.
func (p Plant) StockCount() (int, bool) {
	for _, v := range []*int{p.Quantity, p.Stock, p.AvailableQuantity} {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

// SaleRequest is the body the UI sale form posts.
type SaleRequest struct {
	PlantID  ID  `json:"plantId"`
	Quantity int `json:"quantity"`
}

// Sale is a recorded sale.
type Sale struct {
	ID         ID              `json:"id"`
	Plant      *Plant          `json:"plant"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	SoldAt     time.Time       `json:"soldAt"`
}

// ErrorResponse is the application's error envelope.
type ErrorResponse struct {
	Status    int        `json:"status"`
	Error     string     `json:"error"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// PageSale is one page of sales.
type PageSale struct {
	Content       []Sale `json:"content"`
	TotalElements int64  `json:"totalElements"`
	TotalPages    int    `json:"totalPages"`
	Number        int    `json:"number"`
	Size          int    `json:"size"`
}

// Dashboard carries the summary counts shown after login.
type Dashboard struct {
	Categories int             `json:"categories"`
	Plants     int             `json:"plants"`
	LowStock   int             `json:"lowStock"`
	Sales      int             `json:"sales"`
	Revenue    decimal.Decimal `json:"revenue"`
}

// Sort is a "field,direction" sort key for paged endpoints.
type Sort struct {
	Field string
	Desc  bool
}

func (s Sort) String() string {
	if s.Field == "" {
		return ""
	}
	if s.Desc {
		return s.Field + ",desc"
	}
	return s.Field + ",asc"
}

// ParseSort parses "field[,asc|desc]".
func ParseSort(s string) (Sort, error) {
	field, dir, _ := strings.Cut(strings.TrimSpace(s), ",")
	field = strings.TrimSpace(field)
	if field == "" {
		return Sort{}, fmt.Errorf("empty sort field in %q", s)
	}
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "", "asc":
		return Sort{Field: field}, nil
	case "desc":
		return Sort{Field: field, Desc: true}, nil
	default:
		return Sort{}, fmt.Errorf("unknown sort direction %q", dir)
	}
}
