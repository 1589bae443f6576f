package fixtures

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"github.com/kuitang/nursery-suite/internal/apiclient"
	"github.com/kuitang/nursery-suite/internal/credentials"
	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/kuitang/nursery-suite/internal/nursery"
	"github.com/kuitang/nursery-suite/internal/obs"
	"github.com/kuitang/nursery-suite/internal/session"
)

// SellablePlant is a plant that can be sold right now.
type SellablePlant struct {
	ID       nursery.ID
	Name     string
	Quantity int
	Raw      map[string]any
}

// Resolver performs the network side of fixture resolution.
type Resolver struct {
	api        *nursery.API
	sessions   *session.Cache
	setupAdmin *credentials.Credential

	fakerMu sync.Mutex
	faker   *gofakeit.Faker
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSetupAdmin lets EnsureSaleExists create a sale with cred when none exists.
func WithSetupAdmin(cred credentials.Credential) ResolverOption {
	return func(r *Resolver) {
		r.setupAdmin = &cred
	}
}

// WithFakerSeed makes generated names reproducible.
func WithFakerSeed(seed uint64) ResolverOption {
	return func(r *Resolver) {
		r.faker = gofakeit.New(seed)
	}
}

// NewResolver creates a resolver. sessions is used only to log in the setup admin.
func NewResolver(api *nursery.API, sessions *session.Cache, opts ...ResolverOption) *Resolver {
	r := &Resolver{api: api, sessions: sessions, faker: gofakeit.New(0)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HasSetupAdmin reports whether a setup-only admin credential is configured.
func (r *Resolver) HasSetupAdmin() bool {
	return r.setupAdmin != nil
}

func setupFailure(resp *apiclient.Response, format string, args ...any) error {
	return errs.WithResponse(errs.Setup, fmt.Sprintf(format, args...), resp.Status, resp.Body)
}

// listArray fetches a collection endpoint and requires 200 with a JSON array.
func listArray(resp *apiclient.Response, err error, what string) ([]any, error) {
	if err != nil {
		return nil, errs.Wrap(errs.Setup, "GET "+what+" failed", err)
	}
	if resp.Status != http.StatusOK {
		return nil, setupFailure(resp, "expected 200 from GET %s but got %d", what, resp.Status)
	}
	items, err := resp.Array()
	if err != nil {
		return nil, setupFailure(resp, "GET %s did not return a JSON array", what)
	}
	return items, nil
}

// Plants lists all plants visible to token.
func (r *Resolver) Plants(ctx context.Context, token string) ([]any, error) {
	resp, err := r.api.ListPlants(ctx, token)
	return listArray(resp, err, nursery.PathPlants)
}

// Sales lists all sales visible to token.
func (r *Resolver) Sales(ctx context.Context, token string) ([]any, error) {
	resp, err := r.api.ListSales(ctx, token)
	return listArray(resp, err, nursery.PathSales)
}

// Categories lists all categories visible to token.
func (r *Resolver) Categories(ctx context.Context, token string) ([]any, error) {
	resp, err := r.api.ListCategories(ctx, token)
	return listArray(resp, err, nursery.PathCategories)
}

// AnyPlantID returns the id of the first plant. A single plant object is
// accepted in place of a list.
func (r *Resolver) AnyPlantID(ctx context.Context, token string) (nursery.ID, error) {
	resp, err := r.api.ListPlants(ctx, token)
	if err != nil {
		return nursery.ID{}, errs.Wrap(errs.Setup, "GET /api/plants failed", err)
	}
	if resp.Status != http.StatusOK {
		return nursery.ID{}, setupFailure(resp, "expected 200 from GET /api/plants but got %d", resp.Status)
	}
	body, err := resp.Decoded()
	if err == nil {
		switch typed := body.(type) {
		case []any:
			if len(typed) > 0 {
				if first, ok := typed[0].(map[string]any); ok {
					if id, ok := nursery.IDFromAny(first["id"]); ok {
						return id, nil
					}
				}
			}
		case map[string]any:
			if id, ok := nursery.IDFromAny(typed["id"]); ok {
				return id, nil
			}
		}
	}
	return nursery.ID{}, setupFailure(resp, "could not resolve a plant id from GET /api/plants")
}

// NonExistentPlantID returns an id guaranteed not to name a current plant.
func (r *Resolver) NonExistentPlantID(ctx context.Context, token string) (nursery.ID, error) {
	plants, err := r.Plants(ctx, token)
	if err != nil {
		return nursery.ID{}, err
	}
	return NonExistentID(IDsOf(plants)), nil
}

// SellablePlant returns the first plant with at least min units in stock.
func (r *Resolver) SellablePlant(ctx context.Context, token string, min int) (SellablePlant, error) {
	plants, err := r.Plants(ctx, token)
	if err != nil {
		return SellablePlant{}, err
	}
	plant, ok := FindPlantWithMinStock(plants, min)
	if !ok {
		return SellablePlant{}, errs.Newf(errs.Setup, "no plant with stock >= %d found among %d plants", min, len(plants))
	}
	id, _ := nursery.IDFromAny(plant["id"])
	qty, _ := PlantQuantity(plant)
	name, _ := plant["name"].(string)
	return SellablePlant{ID: id, Name: name, Quantity: qty, Raw: plant}, nil
}

// EnsureSaleExists returns the id of an existing sale visible to token. When
// there is none it creates one with the setup admin credential, whose token is
// not cached for the scenario.
func (r *Resolver) EnsureSaleExists(ctx context.Context, token string) (nursery.ID, error) {
	if id, ok, err := r.firstSaleID(ctx, token); err != nil || ok {
		return id, err
	}
	if r.setupAdmin == nil {
		return nursery.ID{}, errs.New(errs.Setup,
			"no sales exist and no setup admin is configured; seed sales data or set ADMIN_USERNAME and ADMIN_PASSWORD")
	}
	login, err := r.sessions.Authenticate(ctx, *r.setupAdmin)
	if err != nil {
		return nursery.ID{}, errs.Wrap(errs.Setup, "setup admin login failed", err)
	}
	return r.seedSale(ctx, login.Token)
}

// CreateSaleIfNone is EnsureSaleExists for a caller whose own token may sell.
func (r *Resolver) CreateSaleIfNone(ctx context.Context, token string) (nursery.ID, error) {
	if id, ok, err := r.firstSaleID(ctx, token); err != nil || ok {
		return id, err
	}
	return r.seedSale(ctx, token)
}

func (r *Resolver) firstSaleID(ctx context.Context, token string) (nursery.ID, bool, error) {
	sales, err := r.Sales(ctx, token)
	if err != nil {
		return nursery.ID{}, false, err
	}
	if len(sales) > 0 {
		if first, ok := sales[0].(map[string]any); ok {
			if id, ok := nursery.IDFromAny(first["id"]); ok {
				return id, true, nil
			}
		}
	}
	return nursery.ID{}, false, nil
}

func (r *Resolver) seedSale(ctx context.Context, sellerToken string) (nursery.ID, error) {
	plant, err := r.SellablePlant(ctx, sellerToken, 1)
	if err != nil {
		return nursery.ID{}, err
	}
	resp, err := r.api.SellPlant(ctx, sellerToken, plant.ID, 1)
	if err != nil {
		return nursery.ID{}, errs.Wrap(errs.Setup, "seed sale request failed", err)
	}
	if resp.Status != http.StatusCreated {
		return nursery.ID{}, setupFailure(resp, "expected 201 from seed sale of plant %s but got %d", plant.ID, resp.Status)
	}
	obj, err := resp.Object()
	if err != nil {
		return nursery.ID{}, setupFailure(resp, "seed sale response is not a JSON object")
	}
	id, ok := nursery.IDFromAny(obj["id"])
	if !ok {
		return nursery.ID{}, setupFailure(resp, "seed sale response missing id")
	}
	obs.From(ctx).Info("fixture_sale_seeded", "pkg", "fixtures", "sale_id", id.String(), "plant_id", plant.ID.String())
	return id, nil
}

// SeedPlants creates one plant per name, spreading them over the existing
// categories. Prices are 10+5i and stock 10+i. Rejected creations are logged
// and skipped; the count of created plants is returned.
func (r *Resolver) SeedPlants(ctx context.Context, adminToken string, names []string) (int, error) {
	categories, err := r.Categories(ctx, adminToken)
	if err != nil {
		return 0, err
	}
	if len(categories) == 0 {
		return 0, errs.New(errs.Setup, "no categories exist to seed plants into")
	}

	logger := obs.From(ctx).With("pkg", "fixtures")
	created := 0
	for i, name := range names {
		cat, _ := categories[i%len(categories)].(map[string]any)
		catID, ok := nursery.IDFromAny(cat["id"])
		if !ok {
			return created, errs.Newf(errs.Setup, "category at index %d has no id", i%len(categories))
		}
		resp, err := r.api.CreatePlant(ctx, adminToken, nursery.PlantInput{
			Name:        name,
			Description: "Test plant: " + name,
			Price:       decimal.NewFromInt(int64(10 + 5*i)),
			Quantity:    10 + i,
			CategoryID:  &catID,
		})
		if err != nil {
			return created, errs.Wrap(errs.Setup, "create plant "+name, err)
		}
		if resp.Status == http.StatusOK || resp.Status == http.StatusCreated {
			created++
			continue
		}
		logger.Warn("fixture_plant_rejected", "name", name, "status", resp.Status)
	}
	return created, nil
}

// SeedPlantsWithPattern seeds "<base> 1" .. "<base> n".
func (r *Resolver) SeedPlantsWithPattern(ctx context.Context, adminToken, base string, n int) (int, error) {
	names := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		names = append(names, fmt.Sprintf("%s %d", base, i))
	}
	return r.SeedPlants(ctx, adminToken, names)
}

// DeleteAllPlants deletes every plant and returns how many deletions succeeded.
func (r *Resolver) DeleteAllPlants(ctx context.Context, adminToken string) (int, error) {
	plants, err := r.Plants(ctx, adminToken)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, p := range plants {
		plant, _ := p.(map[string]any)
		id, ok := nursery.IDFromAny(plant["id"])
		if !ok {
			continue
		}
		resp, err := r.api.DeletePlant(ctx, adminToken, id)
		if err != nil {
			return deleted, errs.Wrap(errs.Setup, "delete plant "+id.String(), err)
		}
		if resp.Status < 300 {
			deleted++
		}
	}
	return deleted, nil
}

// UniqueName keeps at most keep characters of base and appends n random
// uppercase letters. Category names are limited to 3-10 characters, so
// callers pick keep+n accordingly.
func (r *Resolver) UniqueName(base string, keep, n int) string {
	runes := []rune(base)
	if len(runes) > keep {
		runes = runes[:keep]
	}
	r.fakerMu.Lock()
	suffix := strings.ToUpper(r.faker.LetterN(uint(n)))
	r.fakerMu.Unlock()
	return string(runes) + suffix
}

// FakePlantNames returns n distinct plant-like names.
func (r *Resolver) FakePlantNames(n int) []string {
	r.fakerMu.Lock()
	defer r.fakerMu.Unlock()
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for len(out) < n {
		name := capitalize(r.faker.Adjective()) + " " + capitalize(r.faker.Noun())
		if _, dup := seen[name]; dup {
			name = name + " " + strings.ToUpper(r.faker.LetterN(2))
			if _, dup := seen[name]; dup {
				continue
			}
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
