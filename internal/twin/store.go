package twin

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kuitang/nursery-suite/internal/errs"
)

// LowStockThreshold is the quantity below which a plant counts as low stock.
const LowStockThreshold = 5

// Category is a main category (ParentID 0) or a sub-category.
type Category struct {
	ID       int64
	Name     string
	ParentID int64
}

// Plant is a stocked item in a category.
type Plant struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Quantity    int
	CategoryID  int64
}

// Sale keeps a copy of the plant as it was when sold; plants may be deleted later.
type Sale struct {
	ID         int64
	PlantID    int64
	PlantName  string
	PlantPrice decimal.Decimal
	Quantity   int
	TotalPrice decimal.Decimal
	SoldAt     time.Time
}

// PlantFilter narrows plant listings.
type PlantFilter struct {
	Name       string
	CategoryID int64
}

// PlantFields are the mutable fields of a plant.
type PlantFields struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Quantity    int
	CategoryID  int64
}

// SalesSort orders sale listings.
type SalesSort struct {
	Field string
	Desc  bool
}

// DefaultSalesSort is the order used when a listing names none.
var DefaultSalesSort = SalesSort{Field: "soldAt", Desc: true}

var salesSortFields = map[string]bool{
	"soldAt":     true,
	"quantity":   true,
	"totalPrice": true,
	"plant.name": true,
}

// Summary is the dashboard aggregate.
type Summary struct {
	Categories     int
	MainCategories int
	SubCategories  int
	Plants         int
	LowStock       int
	Sales          int
	Revenue        decimal.Decimal
}

// Store holds all twin state in memory.
type Store struct {
	mu sync.RWMutex

	categories map[int64]*Category
	plants     map[int64]*Plant
	sales      map[int64]*Sale

	nextCategoryID int64
	nextPlantID    int64
	nextSaleID     int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	s.clear()
	return s
}

func (s *Store) clear() {
	s.categories = make(map[int64]*Category)
	s.plants = make(map[int64]*Plant)
	s.sales = make(map[int64]*Sale)
	s.nextCategoryID = 1
	s.nextPlantID = 1
	s.nextSaleID = 1
}

// Reset clears all state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
}

// ---- categories ----

// Categories returns all categories ordered by id.
func (s *Store) Categories() []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categoriesLocked("")
}

// SearchCategories returns categories whose name contains the term, case-insensitively.
func (s *Store) SearchCategories(term string) []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categoriesLocked(term)
}

func (s *Store) categoriesLocked(term string) []Category {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]Category, 0, len(s.categories))
	for _, c := range s.categories {
		if term != "" && !strings.Contains(strings.ToLower(c.Name), term) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Category returns one category.
func (s *Store) Category(id int64) (Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return Category{}, errs.Newf(errs.NotFound, "Category not found: %d", id)
	}
	return *c, nil
}

// Children returns the direct sub-categories of a category.
func (s *Store) Children(id int64) []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.childrenLocked(id)
}

func (s *Store) childrenLocked(id int64) []Category {
	var out []Category
	for _, c := range s.categories {
		if c.ParentID == id && id != 0 {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateCategory adds a category. parentID 0 makes a main category.
func (s *Store) CreateCategory(name string, parentID int64) (Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	if err := s.checkCategoryLocked(0, name, parentID); err != nil {
		return Category{}, err
	}
	c := &Category{ID: s.nextCategoryID, Name: name, ParentID: parentID}
	s.nextCategoryID++
	s.categories[c.ID] = c
	return *c, nil
}

// UpdateCategory renames or re-parents a category.
func (s *Store) UpdateCategory(id int64, name string, parentID int64) (Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok {
		return Category{}, errs.Newf(errs.NotFound, "Category not found: %d", id)
	}
	name = strings.TrimSpace(name)
	if err := s.checkCategoryLocked(id, name, parentID); err != nil {
		return Category{}, err
	}
	c.Name = name
	c.ParentID = parentID
	return *c, nil
}

func (s *Store) checkCategoryLocked(id int64, name string, parentID int64) error {
	for _, other := range s.categories {
		if other.ID != id && strings.EqualFold(other.Name, name) {
			return errs.Newf(errs.InvalidArgument, "Category '%s' already exists", name)
		}
	}
	if parentID == 0 {
		return nil
	}
	if parentID == id {
		return errs.New(errs.InvalidArgument, "Category cannot be its own parent")
	}
	if _, ok := s.categories[parentID]; !ok {
		return errs.Newf(errs.NotFound, "Parent category not found: %d", parentID)
	}
	return nil
}

// DeleteCategory removes a category that has no sub-categories and no plants.
func (s *Store) DeleteCategory(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return errs.Newf(errs.NotFound, "Category not found: %d", id)
	}
	if len(s.childrenLocked(id)) > 0 {
		return errs.New(errs.InvalidArgument, "Cannot delete category with sub-categories")
	}
	for _, p := range s.plants {
		if p.CategoryID == id {
			return errs.New(errs.InvalidArgument, "Cannot delete category with plants")
		}
	}
	delete(s.categories, id)
	return nil
}

// ---- plants ----

// Plants returns the plants matching filter ordered by id.
func (s *Store) Plants(filter PlantFilter) []Plant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	term := strings.ToLower(strings.TrimSpace(filter.Name))
	out := make([]Plant, 0, len(s.plants))
	for _, p := range s.plants {
		if term != "" && !strings.Contains(strings.ToLower(p.Name), term) {
			continue
		}
		if filter.CategoryID != 0 && p.CategoryID != filter.CategoryID {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Plant returns one plant.
func (s *Store) Plant(id int64) (Plant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plants[id]
	if !ok {
		return Plant{}, errs.Newf(errs.NotFound, "Plant not found: %d", id)
	}
	return *p, nil
}

// CreatePlant adds a plant to an existing category.
func (s *Store) CreatePlant(f PlantFields) (Plant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPlantLocked(0, f); err != nil {
		return Plant{}, err
	}
	p := &Plant{ID: s.nextPlantID}
	s.nextPlantID++
	applyPlantFields(p, f)
	s.plants[p.ID] = p
	return *p, nil
}

// UpdatePlant replaces the mutable fields of a plant.
func (s *Store) UpdatePlant(id int64, f PlantFields) (Plant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plants[id]
	if !ok {
		return Plant{}, errs.Newf(errs.NotFound, "Plant not found: %d", id)
	}
	if err := s.checkPlantLocked(id, f); err != nil {
		return Plant{}, err
	}
	applyPlantFields(p, f)
	return *p, nil
}

func applyPlantFields(p *Plant, f PlantFields) {
	p.Name = strings.TrimSpace(f.Name)
	p.Description = f.Description
	p.Price = f.Price
	p.Quantity = f.Quantity
	p.CategoryID = f.CategoryID
}

func (s *Store) checkPlantLocked(id int64, f PlantFields) error {
	if _, ok := s.categories[f.CategoryID]; !ok {
		return errs.Newf(errs.NotFound, "Category not found: %d", f.CategoryID)
	}
	if !f.Price.IsPositive() {
		return errs.New(errs.InvalidArgument, "Price must be greater than 0")
	}
	if f.Quantity < 0 {
		return errs.New(errs.InvalidArgument, "Quantity cannot be negative")
	}
	name := strings.TrimSpace(f.Name)
	for _, other := range s.plants {
		if other.ID != id && other.CategoryID == f.CategoryID && strings.EqualFold(other.Name, name) {
			return errs.Newf(errs.InvalidArgument, "Plant '%s' already exists in this category", name)
		}
	}
	return nil
}

// DeletePlant removes a plant. Past sales keep their copy of it.
func (s *Store) DeletePlant(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plants[id]; !ok {
		return errs.Newf(errs.NotFound, "Plant not found: %d", id)
	}
	delete(s.plants, id)
	return nil
}

// ---- sales ----

// Sell records a sale and decrements stock.
func (s *Store) Sell(plantID int64, quantity int, at time.Time) (Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plants[plantID]
	if !ok {
		return Sale{}, errs.Newf(errs.NotFound, "Plant not found: %d", plantID)
	}
	if quantity < 1 {
		return Sale{}, errs.New(errs.InvalidArgument, "Quantity must be greater than 0")
	}
	if quantity > p.Quantity {
		return Sale{}, errs.Newf(errs.InvalidArgument, "%s has only %d items available in stock", p.Name, p.Quantity)
	}

	p.Quantity -= quantity
	sl := &Sale{
		ID:         s.nextSaleID,
		PlantID:    p.ID,
		PlantName:  p.Name,
		PlantPrice: p.Price,
		Quantity:   quantity,
		TotalPrice: p.Price.Mul(decimal.NewFromInt(int64(quantity))),
		SoldAt:     at,
	}
	s.nextSaleID++
	s.sales[sl.ID] = sl
	return *sl, nil
}

// Sale returns one sale.
func (s *Store) Sale(id int64) (Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.sales[id]
	if !ok {
		return Sale{}, errs.Newf(errs.NotFound, "Sale not found: %d", id)
	}
	return *sl, nil
}

// Sales returns all sales in the given order.
func (s *Store) Sales(order SalesSort) ([]Sale, error) {
	if !salesSortFields[order.Field] {
		return nil, errs.Newf(errs.InvalidArgument, "Unsupported sort field: %s", order.Field)
	}

	s.mu.RLock()
	out := make([]Sale, 0, len(s.sales))
	for _, sl := range s.sales {
		out = append(out, *sl)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		c := compareSales(out[i], out[j], order.Field)
		if c == 0 {
			c = compareInt64(out[i].ID, out[j].ID)
		}
		if order.Desc {
			return c > 0
		}
		return c < 0
	})
	return out, nil
}

func compareSales(a, b Sale, field string) int {
	switch field {
	case "quantity":
		return compareInt64(int64(a.Quantity), int64(b.Quantity))
	case "totalPrice":
		return a.TotalPrice.Cmp(b.TotalPrice)
	case "plant.name":
		return strings.Compare(strings.ToLower(a.PlantName), strings.ToLower(b.PlantName))
	default:
		return a.SoldAt.Compare(b.SoldAt)
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// DeleteSale removes a sale. Stock is not restored.
func (s *Store) DeleteSale(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sales[id]; !ok {
		return errs.Newf(errs.NotFound, "Sale not found: %d", id)
	}
	delete(s.sales, id)
	return nil
}

// Summary aggregates counts for the dashboard.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{
		Categories: len(s.categories),
		Plants:     len(s.plants),
		Sales:      len(s.sales),
		Revenue:    decimal.Zero,
	}
	for _, c := range s.categories {
		if c.ParentID == 0 {
			sum.MainCategories++
		} else {
			sum.SubCategories++
		}
	}
	for _, p := range s.plants {
		if p.Quantity < LowStockThreshold {
			sum.LowStock++
		}
	}
	for _, sl := range s.sales {
		sum.Revenue = sum.Revenue.Add(sl.TotalPrice)
	}
	return sum
}

// insertSale stores a sale verbatim. Used by seeding only.
func (s *Store) insertSale(sl Sale) Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl.ID = s.nextSaleID
	s.nextSaleID++
	s.sales[sl.ID] = &sl
	return sl
}
