package pages_test

import (
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/nursery-suite/internal/credentials"
	"github.com/kuitang/nursery-suite/internal/ordering"
	"github.com/kuitang/nursery-suite/internal/pages"
	"github.com/kuitang/nursery-suite/internal/twin"
)

var (
	browserOnce sync.Once
	browser     *pages.Browser
	browserErr  error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if browser != nil {
		_ = browser.Close()
	}
	os.Exit(code)
}

type uiEnv struct {
	session *pages.Session
	baseURL string
}

// setupUI starts a seeded twin and a fresh browser context. It skips the test
// when playwright browsers are not installed.
func setupUI(t *testing.T) *uiEnv {
	t.Helper()

	browserOnce.Do(func() {
		browser, browserErr = pages.Launch(true)
	})
	if browserErr != nil {
		t.Skip("Playwright not available:", browserErr)
	}

	ts := twin.NewTestServer(t)
	session, err := browser.NewSession()
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return &uiEnv{session: session, baseURL: ts.URL}
}

func (e *uiEnv) loginAs(t *testing.T, role credentials.Role) {
	t.Helper()
	cred, err := credentials.Resolve(string(role))
	require.NoError(t, err)
	require.NoError(t, pages.NewLoginPage(e.session.Page, e.baseURL).LoginAs(cred))
}

func TestBrowser_LoginShowsDashboard(t *testing.T) {
	env := setupUI(t)
	env.loginAs(t, credentials.Admin)

	dash := pages.NewDashboardPage(env.session.Page, env.baseURL)
	assert.True(t, dash.IsDisplayed())
	text, err := dash.CardText("categories")
	require.NoError(t, err)
	assert.Equal(t, "Main: 3 | Sub: 7", text)

	require.NoError(t, dash.Logout())
	assert.True(t, pages.NewLoginPage(env.session.Page, env.baseURL).IsDisplayed())
}

func TestBrowser_InvalidLoginShowsError(t *testing.T) {
	env := setupUI(t)
	login := pages.NewLoginPage(env.session.Page, env.baseURL)

	err := login.Login("admin", "wrong-password")
	require.Error(t, err)
	assert.True(t, login.IsDisplayed())
	visible, err := login.ErrorMessage().First().IsVisible()
	require.NoError(t, err)
	assert.True(t, visible)
}

func TestBrowser_AdminSellsPlant(t *testing.T) {
	env := setupUI(t)
	env.loginAs(t, credentials.Admin)

	admin := pages.NewSalesAdminPage(env.session.Page, env.baseURL)
	require.NoError(t, admin.OpenSellForm())
	opt, err := admin.SelectFirstPlantWithStockAtLeast(30)
	require.NoError(t, err)
	require.NoError(t, admin.Sell(3))

	assert.Equal(t, "/ui/sales", admin.Path())
	n, err := admin.FindSaleRow(opt.Name, 3).Count()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	require.NoError(t, admin.OpenSellForm())
	options, err := admin.PlantOptions()
	require.NoError(t, err)
	for _, o := range options {
		if o.Value == opt.Value {
			assert.Equal(t, opt.Stock-3, o.Stock)
		}
	}
}

func TestBrowser_SalesSortAndPaging(t *testing.T) {
	env := setupUI(t)
	env.loginAs(t, credentials.User)

	sales := pages.NewSalesPage(env.session.Page, env.baseURL)
	require.NoError(t, sales.Open())
	require.NoError(t, sales.VerifyRowsOrEmptyState())

	require.NoError(t, sales.SortByColumn("Quantity"))
	state := sales.SortState()
	assert.Equal(t, "quantity", state.SortField)
	assert.Equal(t, "asc", state.SortDir)
	values, err := sales.ColumnValues("Quantity")
	require.NoError(t, err)
	require.NoError(t, ordering.Verify(values, ordering.Numeric, ordering.Ascending))

	moved, err := sales.GoToNextPage()
	require.NoError(t, err)
	require.True(t, moved, "12 seeded sales span two pages")
	assert.Equal(t, 1, sales.CurrentPage())

	moved, err = sales.GoToNextPage()
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestBrowser_PlantSearchAndSort(t *testing.T) {
	env := setupUI(t)
	env.loginAs(t, credentials.Admin)

	list := pages.NewPlantsListPage(env.session.Page, env.baseURL)
	require.NoError(t, list.Open())
	require.NoError(t, list.SearchPlants("rose"))
	require.NoError(t, list.VerifyRowsContain("rose"))

	row, err := list.FindPlantByName("Red Rose")
	require.NoError(t, err)
	assert.Equal(t, 40, row.Stock)
	assert.Equal(t, "Roses", row.Category)

	require.NoError(t, list.ResetFilters())
	require.NoError(t, list.SortByColumn("Name"))
	require.NoError(t, list.VerifyColumnOrder(pages.PlantColumns["Name"], "Name", ordering.Ascending))

	require.NoError(t, list.SearchPlants("no such plant"))
	assert.True(t, list.HasNoResults())
}

func TestBrowser_PlantFilterSortAndPaging(t *testing.T) {
	env := setupUI(t)
	env.loginAs(t, credentials.User)

	list := pages.NewPlantsListPage(env.session.Page, env.baseURL)
	require.NoError(t, list.Open())
	require.NoError(t, list.FilterByCategory("Succulents"))
	rows, err := list.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, "Succulents", r.Category)
	}

	require.NoError(t, list.ResetFilters())
	category, err := list.CategoryDropdown().InputValue()
	require.NoError(t, err)
	assert.Empty(t, category)

	require.NoError(t, list.SortByColumn("Price"))
	require.NoError(t, list.SortByColumn("Price"))
	require.NoError(t, list.VerifyColumnOrder(pages.PlantColumns["Price"], "Price", ordering.Descending))

	rows, err = list.Rows()
	require.NoError(t, err)
	assert.Len(t, rows, 10)
	moved, err := list.GoToNextPage()
	require.NoError(t, err)
	require.True(t, moved)
	assert.Equal(t, 1, list.CurrentPage())
	rows, err = list.Rows()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	moved, err = list.GoToNextPage()
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestBrowser_AdminAddsPlant(t *testing.T) {
	env := setupUI(t)
	env.loginAs(t, credentials.Admin)

	form := pages.NewPlantsPage(env.session.Page, env.baseURL)
	require.NoError(t, form.OpenAdd())
	require.NoError(t, form.FillPlantForm(pages.PlantForm{Name: "Staghorn", Category: "Ferns", Price: "7.50", Quantity: "5"}))
	require.NoError(t, form.Save())
	assert.Equal(t, "/ui/plants", form.Path())

	row, err := form.FindPlantByName("Staghorn")
	require.NoError(t, err)
	assert.Equal(t, 5, row.Stock)
	assert.False(t, row.LowStock)
	assert.Equal(t, "Ferns", row.Category)
}

func TestBrowser_CategoryCreateAndDelete(t *testing.T) {
	env := setupUI(t)
	env.loginAs(t, credentials.Admin)

	cats := pages.NewCategoryPage(env.session.Page, env.baseURL)
	require.NoError(t, cats.Create("Herbs", "Indoor"))
	assert.Equal(t, "/ui/categories", cats.Path())
	assert.True(t, cats.HasCategory("Herbs"))

	require.NoError(t, cats.Delete("Herbs"))
	assert.False(t, cats.HasCategory("Herbs"))

	require.NoError(t, cats.Create("AB", pages.MainCategory))
	msg, err := cats.FieldError("name").InnerText()
	require.NoError(t, err)
	assert.True(t, strings.Contains(msg, "between 3 and 10"), msg)
}

func TestBrowser_PlantFormAddsPlant(t *testing.T) {
	env := setupUI(t)
	env.loginAs(t, credentials.Admin)

	plants := pages.NewPlantsPage(env.session.Page, env.baseURL)
	require.NoError(t, plants.OpenAdd())
	require.NoError(t, plants.FillPlantForm(pages.PlantForm{
		Name:     "Peace Lily",
		Category: "Ferns",
		Price:    "19.50",
		Quantity: "14",
	}))
	require.NoError(t, plants.Save())

	row, err := plants.FindPlantByName("Peace Lily")
	require.NoError(t, err)
	assert.Equal(t, 14, row.Stock)
	assert.Equal(t, "19.50", row.Price)
}
