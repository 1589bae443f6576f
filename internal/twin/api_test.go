package twin_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/nursery-suite/internal/apiclient"
	"github.com/kuitang/nursery-suite/internal/claims"
	"github.com/kuitang/nursery-suite/internal/nursery"
	"github.com/kuitang/nursery-suite/internal/ratelimit"
	"github.com/kuitang/nursery-suite/internal/schema"
	"github.com/kuitang/nursery-suite/internal/twin"
)

type harness struct {
	ts  *twin.TestServer
	api *nursery.API
	ctx context.Context
}

func newHarness(t *testing.T, mutate ...func(*twin.Options)) *harness {
	t.Helper()
	ts := twin.NewTestServer(t, mutate...)
	return &harness{
		ts:  ts,
		api: nursery.NewAPI(apiclient.New(ts.URL)),
		ctx: context.Background(),
	}
}

func (h *harness) login(t *testing.T, username, password string) string {
	t.Helper()
	resp, err := h.api.Login(h.ctx, username, password)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status, resp.String())
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, resp.JSON(&body))
	return body.Token
}

func (h *harness) admin(t *testing.T) string { return h.login(t, "admin", "admin123") }
func (h *harness) user(t *testing.T) string  { return h.login(t, "testuser", "test123") }

func requireEnvelope(t *testing.T, resp *apiclient.Response, status int) nursery.ErrorResponse {
	t.Helper()
	require.Equal(t, status, resp.Status, resp.String())
	body, err := resp.Decoded()
	require.NoError(t, err)
	require.NoError(t, schema.ErrorResponse(body))
	var env nursery.ErrorResponse
	require.NoError(t, resp.JSON(&env))
	assert.Equal(t, status, env.Status)
	return env
}

func TestLogin_TokenCarriesAuthority(t *testing.T) {
	h := newHarness(t)

	for _, tc := range []struct {
		username, password, authority string
	}{
		{"admin", "admin123", "ROLE_ADMIN"},
		{"testuser", "test123", "ROLE_USER"},
	} {
		resp, err := h.api.Login(h.ctx, tc.username, tc.password)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.Status)

		obj, err := resp.Object()
		require.NoError(t, err)
		token, _ := obj["token"].(string)
		require.NoError(t, schema.JWTShaped(token))
		assert.Equal(t, "Bearer", obj["tokenType"])
		assert.Equal(t, tc.authority, obj["role"])

		role, err := claims.RoleOf(token)
		require.NoError(t, err)
		assert.True(t, claims.MatchesAuthority(role, tc.authority), "role claim %q", role)
	}
}

func TestLogin_Rejections(t *testing.T) {
	h := newHarness(t)

	resp, err := h.api.Login(h.ctx, "admin", "wrong")
	require.NoError(t, err)
	env := requireEnvelope(t, resp, http.StatusUnauthorized)
	assert.Equal(t, "Invalid username or password", env.Message)

	resp, err = h.api.Login(h.ctx, "", "")
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusBadRequest)
}

func TestAPI_RequiresToken(t *testing.T) {
	h := newHarness(t)

	resp, err := h.api.ListSales(h.ctx, "")
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusUnauthorized)

	resp, err = h.api.ListSales(h.ctx, "not.a.token")
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusUnauthorized)
}

func TestAPI_ExpiredTokenRejected(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	var skew atomic.Int64
	h := newHarness(t, func(o *twin.Options) {
		o.Clock = func() time.Time { return start.Add(time.Duration(skew.Load())) }
		o.TokenTTL = time.Minute
	})
	token := h.admin(t)

	resp, err := h.api.ListPlants(h.ctx, token)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	skew.Store(int64(2 * time.Minute))
	resp, err = h.api.ListPlants(h.ctx, token)
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusUnauthorized)
}

func TestAPI_UserCannotMutate(t *testing.T) {
	h := newHarness(t)
	token := h.user(t)
	plantID := nursery.IntID(1)

	resp, err := h.api.SellPlant(h.ctx, token, plantID, 1)
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusForbidden)

	resp, err = h.api.CreateCategory(h.ctx, token, nursery.NewCategoryInput("Herbs", nil))
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusForbidden)

	catID := nursery.IntID(2)
	resp, err = h.api.CreatePlantInCategory(h.ctx, token, catID, nursery.PlantInput{Name: "Mint", Price: decimal.NewFromInt(3), Quantity: 5})
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusForbidden)

	resp, err = h.api.DeleteSale(h.ctx, token, nursery.IntID(1))
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusForbidden)

	resp, err = h.api.ListSales(h.ctx, token)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestAPI_CategoryLifecycle(t *testing.T) {
	h := newHarness(t)
	token := h.admin(t)

	parent := nursery.IntID(1)
	resp, err := h.api.CreateCategory(h.ctx, token, nursery.NewCategoryInput("Lilies", &parent))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Status, resp.String())
	body, err := resp.Decoded()
	require.NoError(t, err)
	require.NoError(t, schema.Category(body))

	var created nursery.Category
	require.NoError(t, resp.JSON(&created))
	assert.Equal(t, "Lilies", created.Name)
	require.NotNil(t, created.Parent)
	assert.Equal(t, "1", created.Parent.ID.String())

	resp, err = h.api.GetCategory(h.ctx, token, parent)
	require.NoError(t, err)
	var flowers nursery.Category
	require.NoError(t, resp.JSON(&flowers))
	var names []string
	for _, c := range flowers.SubCategories {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "Lilies")

	resp, err = h.api.UpdateCategory(h.ctx, token, created.ID, nursery.NewCategoryInput("Lily", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status, resp.String())
	var updated nursery.Category
	require.NoError(t, resp.JSON(&updated))
	assert.Equal(t, "Lily", updated.Name)
	assert.Nil(t, updated.Parent)

	resp, err = h.api.DeleteCategory(h.ctx, token, created.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)

	resp, err = h.api.GetCategory(h.ctx, token, created.ID)
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusNotFound)
}

func TestAPI_CategoryValidation(t *testing.T) {
	h := newHarness(t)
	token := h.admin(t)

	resp, err := h.api.CreateCategory(h.ctx, token, nursery.NewCategoryInput("AB", nil))
	require.NoError(t, err)
	env := requireEnvelope(t, resp, http.StatusBadRequest)
	assert.Contains(t, env.Message, "between 3 and 10")

	resp, err = h.api.CreateCategory(h.ctx, token, nursery.NewCategoryInput("Flowers", nil))
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusBadRequest)

	resp, err = h.api.DeleteCategory(h.ctx, token, nursery.IntID(1))
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusBadRequest)
}

func TestAPI_PlantCrud(t *testing.T) {
	h := newHarness(t)
	token := h.admin(t)
	catID := nursery.IntID(6)

	resp, err := h.api.CreatePlantInCategory(h.ctx, token, catID, nursery.PlantInput{
		Name:     "Haworthia",
		Price:    decimal.RequireFromString("7.25"),
		Quantity: 14,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Status, resp.String())
	body, err := resp.Decoded()
	require.NoError(t, err)
	require.NoError(t, schema.Plant(body))

	var plant nursery.Plant
	require.NoError(t, resp.JSON(&plant))
	stock, ok := plant.StockCount()
	require.True(t, ok)
	assert.Equal(t, 14, stock)
	assert.True(t, plant.Price.Equal(decimal.RequireFromString("7.25")))
	require.NotNil(t, plant.Category)
	assert.Equal(t, "Succulents", plant.Category.Name)

	resp, err = h.api.UpdatePlant(h.ctx, token, plant.ID, nursery.PlantInput{
		Name:     "Haworthia",
		Price:    decimal.RequireFromString("8.00"),
		Quantity: 20,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status, resp.String())
	var updated nursery.Plant
	require.NoError(t, resp.JSON(&updated))
	assert.Equal(t, "Succulents", updated.Category.Name)

	resp, err = h.api.CreatePlant(h.ctx, token, nursery.PlantInput{Name: "Bad Price", Price: decimal.Zero, Quantity: 1, CategoryID: &catID})
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusBadRequest)

	resp, err = h.api.ListPlantsByCategory(h.ctx, token, nursery.IntID(999))
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusNotFound)

	resp, err = h.api.DeletePlant(h.ctx, token, plant.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)

	resp, err = h.api.GetPlant(h.ctx, token, plant.ID)
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusNotFound)
}

func TestAPI_SellAndDeleteSale(t *testing.T) {
	h := newHarness(t)
	token := h.admin(t)
	plantID := nursery.IntID(1)

	before := h.ts.Twin.Store()
	p, err := before.Plant(1)
	require.NoError(t, err)

	resp, err := h.api.SellPlant(h.ctx, token, plantID, 2)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Status, resp.String())

	body, err := resp.Decoded()
	require.NoError(t, err)
	require.NoError(t, schema.Sale(body))
	require.NoError(t, schema.TotalPriceConsistent(body))

	var sale nursery.Sale
	require.NoError(t, resp.JSON(&sale))
	assert.Equal(t, 2, sale.Quantity)
	assert.True(t, sale.TotalPrice.Equal(p.Price.Mul(decimal.NewFromInt(2))))

	after, err := h.ts.Twin.Store().Plant(1)
	require.NoError(t, err)
	assert.Equal(t, p.Quantity-2, after.Quantity)

	resp, err = h.api.GetSale(h.ctx, token, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	resp, err = h.api.DeleteSale(h.ctx, token, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)

	resp, err = h.api.GetSale(h.ctx, token, sale.ID)
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusNotFound)

	resp, err = h.api.DeleteSale(h.ctx, token, sale.ID)
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusNotFound)
}

func TestAPI_SellRejections(t *testing.T) {
	h := newHarness(t)
	token := h.admin(t)

	resp, err := h.api.SellPlant(h.ctx, token, nursery.IntID(7), 3) // Echeveria has 2 in stock
	require.NoError(t, err)
	env := requireEnvelope(t, resp, http.StatusBadRequest)
	assert.Contains(t, env.Message, "Echeveria has only 2 items available in stock")

	resp, err = h.api.SellPlant(h.ctx, token, nursery.IntID(1), 0)
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusBadRequest)

	resp, err = h.api.SellPlant(h.ctx, token, nursery.IntID(99999), 1)
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusNotFound)
}

func TestAPI_SalesPageSortedBySoldAtDesc(t *testing.T) {
	h := newHarness(t)
	token := h.user(t)

	resp, err := h.api.SalesPage(h.ctx, token, 0, 5, nursery.Sort{Field: "soldAt", Desc: true})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status, resp.String())

	body, err := resp.Decoded()
	require.NoError(t, err)
	require.NoError(t, schema.PageSale(body, 5))
	content, _ := body.(map[string]any)["content"].([]any)
	assert.Len(t, content, 5)
	require.NoError(t, schema.SoldAtNonIncreasing(content))

	var page nursery.PageSale
	require.NoError(t, resp.JSON(&page))
	assert.EqualValues(t, 12, page.TotalElements)
	assert.Equal(t, 3, page.TotalPages)

	resp, err = h.api.SalesPage(h.ctx, token, 0, 5, nursery.Sort{Field: "colour"})
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusBadRequest)
}

func TestAPI_Dashboard(t *testing.T) {
	h := newHarness(t)
	resp, err := h.api.Dashboard(h.ctx, h.user(t))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)

	var d nursery.Dashboard
	require.NoError(t, resp.JSON(&d))
	assert.Equal(t, 10, d.Categories)
	assert.Equal(t, 12, d.Plants)
	assert.Equal(t, 3, d.LowStock)
	assert.Equal(t, 12, d.Sales)
}

func TestAdminReset_RestoresSeed(t *testing.T) {
	h := newHarness(t)
	token := h.admin(t)

	resp, err := h.api.DeletePlant(h.ctx, token, nursery.IntID(3))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.Status)

	hr, err := http.Post(h.ts.URL+"/admin/reset", "application/json", nil)
	require.NoError(t, err)
	hr.Body.Close()
	assert.Equal(t, http.StatusNoContent, hr.StatusCode)

	resp, err = h.api.GetPlant(h.ctx, token, nursery.IntID(3))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestAPI_UnknownRouteEnvelope(t *testing.T) {
	h := newHarness(t)
	resp, err := apiclient.New(h.ts.URL).Do(h.ctx, apiclient.Request{Method: http.MethodGet, Path: "/api/nothing-here"})
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusNotFound)
}

func TestAPI_RateLimited(t *testing.T) {
	h := newHarness(t, func(o *twin.Options) {
		o.RateLimit = ratelimit.Config{
			PrincipalRPS:    0.001,
			PrincipalBurst:  1,
			AnonymousRPS:    0.001,
			AnonymousBurst:  2,
			CleanupInterval: time.Minute,
		}
	})

	token := h.admin(t)
	resp, err := h.api.ListPlants(h.ctx, token)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	resp, err = h.api.ListPlants(h.ctx, token)
	require.NoError(t, err)
	requireEnvelope(t, resp, http.StatusTooManyRequests)
	assert.Equal(t, "1", resp.Headers.Get("Retry-After"))
}
