package steps

import (
	"context"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/nursery-suite/internal/credentials"
	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/kuitang/nursery-suite/internal/ordering"
	"github.com/kuitang/nursery-suite/internal/pages"
)

func registerUISteps(sc *godog.ScenarioContext) {
	sc.Step(`^I am logged in as "([^"]*)" via UI$`, iAmLoggedInViaUI)
	sc.Step(`^I am on the login page$`, iAmOnLoginPage)
	sc.Step(`^I log in via UI with username "([^"]*)" and password "([^"]*)"$`, iLogInViaUI)
	sc.Step(`^I should remain on the login page$`, iRemainOnLoginPage)
	sc.Step(`^I should see an error message$`, iSeeErrorMessage)
	sc.Step(`^I should see the dashboard card "([^"]*)" reading "([^"]*)"$`, dashboardCardReads)
	sc.Step(`^I log out via UI$`, iLogOutViaUI)
	sc.Step(`^I open "([^"]*)" directly$`, iOpenDirectly)
	sc.Step(`^I should be on "([^"]*)"$`, iShouldBeOn)
	sc.Step(`^I should see the forbidden page$`, iSeeForbiddenPage)
	sc.Step(`^I should see success message "([^"]*)"$`, iSeeSuccessMessage)

	sc.Step(`^I open the sell plant form$`, iOpenSellForm)
	sc.Step(`^I select a plant with stock at least (\d+)$`, iSelectPlantWithStock)
	sc.Step(`^I sell quantity (\d+)$`, iSellQuantity)
	sc.Step(`^the newly created sale should be visible in the table$`, newSaleVisible)
	sc.Step(`^the sell form should show the plant stock reduced by the sold quantity$`, sellFormStockReduced)
	sc.Step(`^I open the sales page$`, iOpenSalesPage)
	sc.Step(`^the sales table should show rows or the empty state$`, salesRowsOrEmpty)
	sc.Step(`^I sort the sales table by "([^"]*)"$`, iSortSalesBy)
	sc.Step(`^the sales table should be sorted by "([^"]*)" in "(asc|desc)" order$`, salesSortedBy)
	sc.Step(`^the "([^"]*)" button should not be visible$`, buttonNotVisible)
	sc.Step(`^the sales actions column should not be visible$`, actionsColumnHidden)
	sc.Step(`^I go to the next page$`, iGoToNextPage)
	sc.Step(`^the page index should be (\d+)$`, pageIndexIs)
	sc.Step(`^I delete the first sale via UI$`, iDeleteFirstSaleViaUI)
	sc.Step(`^the deleted sale should no longer be listed$`, deletedSaleNotListed)

	sc.Step(`^I search plants for "([^"]*)"$`, iSearchPlants)
	sc.Step(`^every listed plant should match "([^"]*)"$`, everyPlantMatches)
	sc.Step(`^the plant "([^"]*)" should be listed with stock (\d+)$`, plantListedWithStock)
	sc.Step(`^I open the plants page$`, iOpenPlantsPage)
	sc.Step(`^I filter plants by category "([^"]*)"$`, iFilterPlantsByCategory)
	sc.Step(`^every listed plant should be in category "([^"]*)"$`, everyPlantInCategory)
	sc.Step(`^I reset the plant filters$`, iResetPlantFilters)
	sc.Step(`^the plant filters should be cleared$`, plantFiltersCleared)
	sc.Step(`^no plants should be listed$`, noPlantsListed)
	sc.Step(`^I sort the plants table by "([^"]*)"$`, iSortPlantsBy)
	sc.Step(`^the plants table should be sorted by "([^"]*)" in "(asc|desc)" order$`, plantsSortedBy)
	sc.Step(`^I search plants for the seeded names$`, iSearchSeededPlants)
	sc.Step(`^the plants table should show (\d+) rows$`, plantsTableShowsRows)
	sc.Step(`^I add a plant in category "([^"]*)" priced "([^"]*)" with quantity (\d+) via UI$`, iAddPlantViaUI)
	sc.Step(`^the added plant should be listed with stock (\d+)$`, addedPlantListedWithStock)
	sc.Step(`^I create category "([^"]*)" under "([^"]*)" via UI$`, iCreateCategoryViaUI)
	sc.Step(`^I delete category "([^"]*)" via UI$`, iDeleteCategoryViaUI)
	sc.Step(`^the category list should contain "([^"]*)"$`, categoryListContains)
	sc.Step(`^the category list should not contain "([^"]*)"$`, categoryListOmits)
	sc.Step(`^the "([^"]*)" field should show an error containing "([^"]*)"$`, fieldErrorContains)
}

// browser returns the scenario's page. Without a browser the step is skipped;
// a scenario that is not tagged for the UI never gets one.
func browser(ctx context.Context) (*World, playwright.Page, error) {
	w, err := WorldFrom(ctx)
	if err != nil {
		return nil, nil, err
	}
	if w.ui != nil {
		return w, w.ui.Page, nil
	}
	if w.uiErr != nil {
		w.skipped = true
		return nil, nil, godog.ErrSkip
	}
	return nil, nil, errs.Newf(errs.Configuration, "browser steps need the %s tag", UITag)
}

func iAmLoggedInViaUI(ctx context.Context, role string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	cred, err := credentials.Resolve(role)
	if err != nil {
		return err
	}
	return pages.NewLoginPage(page, w.baseURL).LoginAs(cred)
}

func iAmOnLoginPage(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	return pages.NewLoginPage(page, w.baseURL).Open()
}

func iLogInViaUI(ctx context.Context, username, password string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	return pages.NewLoginPage(page, w.baseURL).Submit(username, password)
}

func iRemainOnLoginPage(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	login := pages.NewLoginPage(page, w.baseURL)
	if !login.IsDisplayed() {
		return errs.Newf(errs.Assertion, "expected the login page, browser is on %s", login.Path())
	}
	return nil
}

func iSeeErrorMessage(ctx context.Context) error {
	_, page, err := browser(ctx)
	if err != nil {
		return err
	}
	visible, err := page.Locator(".alert-danger, .error-message").First().IsVisible()
	if err != nil || !visible {
		return errs.New(errs.Assertion, "no error message is visible")
	}
	return nil
}

func dashboardCardReads(ctx context.Context, card, want string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	text, err := pages.NewDashboardPage(page, w.baseURL).CardText(card)
	if err != nil {
		return err
	}
	if text != want {
		return errs.Newf(errs.Assertion, "dashboard card %s reads %q, expected %q", card, text, want)
	}
	return nil
}

func iLogOutViaUI(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	return pages.NewDashboardPage(page, w.baseURL).Logout()
}

func iOpenDirectly(ctx context.Context, path string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	_, err = page.Goto(w.baseURL+path, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return errs.Wrap(errs.Assertion, "failed to open "+path, err)
	}
	return nil
}

func iShouldBeOn(ctx context.Context, path string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	if got := pages.NewDashboardPage(page, w.baseURL).Path(); got != path {
		return errs.Newf(errs.Assertion, "browser is on %s, expected %s", got, path)
	}
	return nil
}

func iSeeForbiddenPage(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	heading, err := pages.NewDashboardPage(page, w.baseURL).Heading().First().InnerText()
	if err != nil || !strings.Contains(heading, "Forbidden") {
		return errs.Newf(errs.Assertion, "expected the forbidden page, heading is %q", heading)
	}
	return nil
}

func iSeeSuccessMessage(ctx context.Context, want string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	text, err := pages.NewDashboardPage(page, w.baseURL).FlashMessage().First().InnerText()
	if err != nil {
		return errs.Wrap(errs.Assertion, "no success message is shown", err)
	}
	if !strings.Contains(text, want) {
		return errs.Newf(errs.Assertion, "success message %q does not contain %q", strings.TrimSpace(text), want)
	}
	return nil
}

func iOpenSellForm(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	return pages.NewSalesAdminPage(page, w.baseURL).OpenSellForm()
}

func iSelectPlantWithStock(ctx context.Context, min int) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	opt, err := pages.NewSalesAdminPage(page, w.baseURL).SelectFirstPlantWithStockAtLeast(min)
	if err != nil {
		return err
	}
	w.uiPlant = opt
	return nil
}

func iSellQuantity(ctx context.Context, quantity int) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	if err := pages.NewSalesAdminPage(page, w.baseURL).Sell(quantity); err != nil {
		return err
	}
	w.uiSoldQty = quantity
	return nil
}

func newSaleVisible(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	if w.uiPlant.Name == "" {
		return errs.New(errs.Setup, "no plant was sold through the UI in this scenario")
	}
	n, err := pages.NewSalesAdminPage(page, w.baseURL).FindSaleRow(w.uiPlant.Name, w.uiSoldQty).Count()
	if err != nil || n == 0 {
		return errs.Newf(errs.Assertion, "no sale row for %s x %d", w.uiPlant.Name, w.uiSoldQty)
	}
	return nil
}

func sellFormStockReduced(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	admin := pages.NewSalesAdminPage(page, w.baseURL)
	if err := admin.OpenSellForm(); err != nil {
		return err
	}
	options, err := admin.PlantOptions()
	if err != nil {
		return err
	}
	for _, o := range options {
		if o.Value != w.uiPlant.Value {
			continue
		}
		if want := w.uiPlant.Stock - w.uiSoldQty; o.Stock != want {
			return errs.Newf(errs.Assertion, "%s shows stock %d, expected %d", o.Name, o.Stock, want)
		}
		return nil
	}
	if w.uiPlant.Stock == w.uiSoldQty {
		// Sold out plants drop out of the dropdown.
		return nil
	}
	return errs.Newf(errs.Assertion, "%s is missing from the sell form", w.uiPlant.Name)
}

func iOpenSalesPage(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	return pages.NewSalesPage(page, w.baseURL).Open()
}

func salesRowsOrEmpty(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	return pages.NewSalesPage(page, w.baseURL).VerifyRowsOrEmptyState()
}

func iSortSalesBy(ctx context.Context, column string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	return pages.NewSalesPage(page, w.baseURL).SortByColumn(column)
}

func salesSortedBy(ctx context.Context, column, direction string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	dir, err := ordering.ParseDirection(direction)
	if err != nil {
		return errs.Wrap(errs.Configuration, "bad sort direction in scenario", err)
	}
	header, err := pages.HeaderFor(pages.SaleColumns, column)
	if err != nil {
		return err
	}
	values, err := pages.NewSalesPage(page, w.baseURL).ColumnValues(column)
	if err != nil {
		return err
	}
	if err := ordering.Verify(values, ordering.KindForColumn(header), dir); err != nil {
		return errs.Wrap(errs.Assertion, "sales column "+header+" is not sorted "+direction, err)
	}
	return nil
}

// adminControl locates an admin-only control by its label on whichever page
// renders it.
func adminControl(page playwright.Page, baseURL, label string) playwright.Locator {
	switch label {
	case "Sell Plant":
		return pages.NewSalesAdminPage(page, baseURL).SellPlantButton()
	case "Add a Plant":
		return pages.NewPlantsListPage(page, baseURL).AddPlantButton()
	case "Add A Category":
		return pages.NewCategoryPage(page, baseURL).AddButton()
	case "Edit":
		return pages.NewPlantsListPage(page, baseURL).EditButtons()
	case "Delete":
		return pages.NewPlantsListPage(page, baseURL).DeleteButtons()
	default:
		return page.Locator("a:has-text('" + label + "'), button:has-text('" + label + "')")
	}
}

func buttonNotVisible(ctx context.Context, label string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	visible, err := adminControl(page, w.baseURL, label).First().IsVisible()
	if err == nil && visible {
		return errs.Newf(errs.Assertion, "the %q button is visible", label)
	}
	return nil
}

func actionsColumnHidden(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	n, err := pages.NewSalesAdminPage(page, w.baseURL).ActionsHeader().Count()
	if err != nil {
		return errs.Wrap(errs.Assertion, "failed to inspect table headers", err)
	}
	if n > 0 {
		return errs.New(errs.Assertion, "the Actions column is visible")
	}
	return nil
}

func iGoToNextPage(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	moved, err := pages.NewSalesPage(page, w.baseURL).GoToNextPage()
	if err != nil {
		return err
	}
	if !moved {
		return errs.New(errs.Assertion, "there is no next page")
	}
	return nil
}

func pageIndexIs(ctx context.Context, want int) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	if got := pages.NewSalesPage(page, w.baseURL).CurrentPage(); got != want {
		return errs.Newf(errs.Assertion, "page index is %d, expected %d", got, want)
	}
	return nil
}

func iDeleteFirstSaleViaUI(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	admin := pages.NewSalesAdminPage(page, w.baseURL)
	if err := admin.OpenSales(); err != nil {
		return err
	}
	id, err := admin.DeleteFirstSale()
	if err != nil {
		return err
	}
	w.uiDeletedSale = id
	return nil
}

func deletedSaleNotListed(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	if w.uiDeletedSale == "" {
		return errs.New(errs.Setup, "no sale was deleted through the UI in this scenario")
	}
	n, err := page.Locator("table tbody tr[data-sale-id='" + w.uiDeletedSale + "']").Count()
	if err != nil {
		return errs.Wrap(errs.Assertion, "failed to inspect sale rows", err)
	}
	if n > 0 {
		return errs.Newf(errs.Assertion, "sale %s is still listed", w.uiDeletedSale)
	}
	return nil
}

func iSearchPlants(ctx context.Context, term string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	list := pages.NewPlantsListPage(page, w.baseURL)
	if err := list.Open(); err != nil {
		return err
	}
	return list.SearchPlants(term)
}

func everyPlantMatches(ctx context.Context, term string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	return pages.NewPlantsListPage(page, w.baseURL).VerifyRowsContain(term)
}

func plantListedWithStock(ctx context.Context, name string, stock int) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	row, err := pages.NewPlantsListPage(page, w.baseURL).FindPlantByName(name)
	if err != nil {
		return err
	}
	if row.Stock != stock {
		return errs.Newf(errs.Assertion, "%s shows stock %d, expected %d", name, row.Stock, stock)
	}
	return nil
}

func iOpenPlantsPage(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	return pages.NewPlantsListPage(page, w.baseURL).Open()
}

func iFilterPlantsByCategory(ctx context.Context, category string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	return pages.NewPlantsListPage(page, w.baseURL).FilterByCategory(category)
}

func everyPlantInCategory(ctx context.Context, category string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	rows, err := pages.NewPlantsListPage(page, w.baseURL).Rows()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errs.Newf(errs.Assertion, "no plants are listed for category %q", category)
	}
	for _, r := range rows {
		if r.Category != category {
			return errs.Newf(errs.Assertion, "plant %q is in category %q, expected %q", r.Name, r.Category, category)
		}
	}
	return nil
}

func iResetPlantFilters(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	return pages.NewPlantsListPage(page, w.baseURL).ResetFilters()
}

func plantFiltersCleared(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	list := pages.NewPlantsListPage(page, w.baseURL)
	term, err := list.SearchInput().InputValue()
	if err != nil {
		return errs.Wrap(errs.Assertion, "search box not readable", err)
	}
	category, err := list.CategoryDropdown().InputValue()
	if err != nil {
		return errs.Wrap(errs.Assertion, "category filter not readable", err)
	}
	if term != "" || category != "" {
		return errs.Newf(errs.Assertion, "filters still set: search %q, category %q", term, category)
	}
	return nil
}

func noPlantsListed(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	if !pages.NewPlantsListPage(page, w.baseURL).HasNoResults() {
		return errs.New(errs.Assertion, `the plants table does not show "No plants found"`)
	}
	return nil
}

func iSortPlantsBy(ctx context.Context, column string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	return pages.NewPlantsListPage(page, w.baseURL).SortByColumn(column)
}

func plantsSortedBy(ctx context.Context, column, direction string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	dir, err := ordering.ParseDirection(direction)
	if err != nil {
		return errs.Wrap(errs.Configuration, "bad sort direction in scenario", err)
	}
	idx, err := pages.ColumnIndex(pages.PlantColumns, column)
	if err != nil {
		return err
	}
	header, err := pages.HeaderFor(pages.PlantColumns, column)
	if err != nil {
		return err
	}
	if err := pages.NewPlantsListPage(page, w.baseURL).VerifyColumnOrder(idx, header, dir); err != nil {
		return errs.Wrap(errs.Assertion, "plants column "+header+" is not sorted "+direction, err)
	}
	return nil
}

func iSearchSeededPlants(ctx context.Context) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	if err := requireSeeded(w); err != nil {
		return err
	}
	list := pages.NewPlantsListPage(page, w.baseURL)
	if err := list.Open(); err != nil {
		return err
	}
	return list.SearchPlants(w.seedBase)
}

func plantsTableShowsRows(ctx context.Context, want int) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	rows, err := pages.NewPlantsListPage(page, w.baseURL).Rows()
	if err != nil {
		return err
	}
	if len(rows) != want {
		return errs.Newf(errs.Assertion, "plants table shows %d rows, expected %d", len(rows), want)
	}
	return nil
}

func iAddPlantViaUI(ctx context.Context, category, price string, quantity int) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	form := pages.NewPlantsPage(page, w.baseURL)
	if err := form.OpenAdd(); err != nil {
		return err
	}
	name := w.resolver.UniqueName(w.resolver.FakePlantNames(1)[0], plantNameKeep, plantNameSuffixLen)
	err = form.FillPlantForm(pages.PlantForm{
		Name:     name,
		Category: category,
		Price:    price,
		Quantity: strconv.Itoa(quantity),
	})
	if err != nil {
		return err
	}
	if err := form.Save(); err != nil {
		return err
	}
	w.plantName = name
	return nil
}

func addedPlantListedWithStock(ctx context.Context, stock int) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	if w.plantName == "" {
		return errs.New(errs.Setup, "no plant was added earlier in this scenario")
	}
	row, err := pages.NewPlantsPage(page, w.baseURL).FindPlantByName(w.plantName)
	if err != nil {
		return err
	}
	if row.Stock != stock {
		return errs.Newf(errs.Assertion, "%s shows stock %d, expected %d", w.plantName, row.Stock, stock)
	}
	return nil
}

func iCreateCategoryViaUI(ctx context.Context, name, parent string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	return pages.NewCategoryPage(page, w.baseURL).Create(name, parent)
}

func iDeleteCategoryViaUI(ctx context.Context, name string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	cats := pages.NewCategoryPage(page, w.baseURL)
	if err := cats.OpenList(); err != nil {
		return err
	}
	return cats.Delete(name)
}

func categoryListContains(ctx context.Context, name string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	if !pages.NewCategoryPage(page, w.baseURL).HasCategory(name) {
		return errs.Newf(errs.Assertion, "category %q is not listed", name)
	}
	return nil
}

func categoryListOmits(ctx context.Context, name string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	if pages.NewCategoryPage(page, w.baseURL).HasCategory(name) {
		return errs.Newf(errs.Assertion, "category %q is still listed", name)
	}
	return nil
}

func fieldErrorContains(ctx context.Context, field, want string) error {
	w, page, err := browser(ctx)
	if err != nil {
		return err
	}
	msg, err := pages.NewCategoryPage(page, w.baseURL).FieldError(field).First().InnerText()
	if err != nil {
		return errs.Wrap(errs.Assertion, "no validation message under "+field, err)
	}
	if !strings.Contains(msg, want) {
		return errs.Newf(errs.Assertion, "validation message %q does not contain %q", strings.TrimSpace(msg), want)
	}
	return nil
}
