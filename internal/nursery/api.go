package nursery

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/kuitang/nursery-suite/internal/apiclient"
)

// API endpoint paths.
const (
	PathLogin      = "/api/auth/login"
	PathCategories = "/api/categories"
	PathPlants     = "/api/plants"
	PathSales      = "/api/sales"
	PathSalesPage  = "/api/sales/page"
	PathDashboard  = "/api/dashboard"
)

// Doer sends API requests. *apiclient.Client implements it.
type Doer interface {
	Do(ctx context.Context, req apiclient.Request) (*apiclient.Response, error)
}

// API wraps the nursery endpoints. Every call returns the raw response; status
// handling is left to the caller.
type API struct {
	client Doer
}

// NewAPI creates typed endpoint wrappers over client.
func NewAPI(client Doer) *API {
	return &API{client: client}
}

// PlantInput is the body used to create or update a plant.
type PlantInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	CategoryID  *ID             `json:"categoryId,omitempty"`
}

// CategoryInput is the body used to create or update a category.
type CategoryInput struct {
	ID            int           `json:"id"`
	Name          string        `json:"name"`
	Parent        *CategoryRef  `json:"parent"`
	SubCategories []CategoryRef `json:"subCategories"`
}

// NewCategoryInput builds a create body for a root or child category.
func NewCategoryInput(name string, parent *ID) CategoryInput {
	in := CategoryInput{Name: name, SubCategories: []CategoryRef{}}
	if parent != nil && !parent.IsZero() {
		in.Parent = &CategoryRef{ID: *parent}
	}
	return in
}

func (a *API) do(ctx context.Context, method, path, token string, query url.Values, body any) (*apiclient.Response, error) {
	return a.client.Do(ctx, apiclient.Request{Method: method, Path: path, Token: token, Query: query, Body: body})
}

// Login posts credentials.
func (a *API) Login(ctx context.Context, username, password string) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodPost, PathLogin, "", nil, map[string]string{"username": username, "password": password})
}

// ListCategories fetches all categories.
func (a *API) ListCategories(ctx context.Context, token string) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodGet, PathCategories, token, nil, nil)
}

// GetCategory fetches one category.
func (a *API) GetCategory(ctx context.Context, token string, id ID) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodGet, PathCategories+"/"+url.PathEscape(id.String()), token, nil, nil)
}

// CreateCategory creates a category.
func (a *API) CreateCategory(ctx context.Context, token string, in CategoryInput) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodPost, PathCategories, token, nil, in)
}

// UpdateCategory replaces a category.
func (a *API) UpdateCategory(ctx context.Context, token string, id ID, in CategoryInput) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodPut, PathCategories+"/"+url.PathEscape(id.String()), token, nil, in)
}

// DeleteCategory deletes a category.
func (a *API) DeleteCategory(ctx context.Context, token string, id ID) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodDelete, PathCategories+"/"+url.PathEscape(id.String()), token, nil, nil)
}

// ListPlants fetches all plants.
func (a *API) ListPlants(ctx context.Context, token string) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodGet, PathPlants, token, nil, nil)
}

// GetPlant fetches one plant.
func (a *API) GetPlant(ctx context.Context, token string, id ID) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodGet, PathPlants+"/"+url.PathEscape(id.String()), token, nil, nil)
}

// ListPlantsByCategory fetches the plants of one category.
func (a *API) ListPlantsByCategory(ctx context.Context, token string, categoryID ID) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodGet, PathPlants+"/category/"+url.PathEscape(categoryID.String()), token, nil, nil)
}

// CreatePlant creates a plant; the category travels in the body.
func (a *API) CreatePlant(ctx context.Context, token string, in PlantInput) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodPost, PathPlants, token, nil, in)
}

// CreatePlantInCategory creates a plant under the category in the path.
func (a *API) CreatePlantInCategory(ctx context.Context, token string, categoryID ID, in PlantInput) (*apiclient.Response, error) {
	in.CategoryID = nil
	return a.do(ctx, http.MethodPost, PathPlants+"/category/"+url.PathEscape(categoryID.String()), token, nil, in)
}

// UpdatePlant replaces a plant.
func (a *API) UpdatePlant(ctx context.Context, token string, id ID, in PlantInput) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodPut, PathPlants+"/"+url.PathEscape(id.String()), token, nil, in)
}

// DeletePlant deletes a plant.
func (a *API) DeletePlant(ctx context.Context, token string, id ID) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodDelete, PathPlants+"/"+url.PathEscape(id.String()), token, nil, nil)
}

// ListSales fetches all sales.
func (a *API) ListSales(ctx context.Context, token string) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodGet, PathSales, token, nil, nil)
}

// SalesPage fetches one page of sales. A zero sort leaves ordering to the server.
func (a *API) SalesPage(ctx context.Context, token string, page, size int, sort Sort) (*apiclient.Response, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	if s := sort.String(); s != "" {
		q.Set("sort", s)
	}
	return a.do(ctx, http.MethodGet, PathSalesPage, token, q, nil)
}

// GetSale fetches one sale.
func (a *API) GetSale(ctx context.Context, token string, id ID) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodGet, PathSales+"/"+url.PathEscape(id.String()), token, nil, nil)
}

// SellPlant records a sale of quantity units of a plant.
func (a *API) SellPlant(ctx context.Context, token string, plantID ID, quantity int) (*apiclient.Response, error) {
	q := url.Values{}
	q.Set("quantity", strconv.Itoa(quantity))
	return a.do(ctx, http.MethodPost, PathSales+"/plant/"+url.PathEscape(plantID.String()), token, q, nil)
}

// DeleteSale deletes a sale.
func (a *API) DeleteSale(ctx context.Context, token string, id ID) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodDelete, PathSales+"/"+url.PathEscape(id.String()), token, nil, nil)
}

// Dashboard fetches the summary counts.
func (a *API) Dashboard(ctx context.Context, token string) (*apiclient.Response, error) {
	return a.do(ctx, http.MethodGet, PathDashboard, token, nil, nil)
}
