package steps

import (
	"context"
	"net/http"

	"github.com/cucumber/godog"

	"github.com/kuitang/nursery-suite/internal/credentials"
	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/kuitang/nursery-suite/internal/fixtures"
	"github.com/kuitang/nursery-suite/internal/nursery"
	"github.com/kuitang/nursery-suite/internal/schema"
)

func registerSalesSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I request all sales$`, iRequestAllSales)
	sc.Step(`^I request all sales without authentication$`, iRequestAllSalesAnonymously)
	sc.Step(`^I request paged sales with page (\d+) and size (\d+) and sort "([^"]*)"$`, iRequestPagedSales)
	sc.Step(`^the response should be a JSON array of Sale objects$`, responseIsSaleList)
	sc.Step(`^the response should match the PageSale schema with max page size (\d+)$`, responseIsPageSale)
	sc.Step(`^the response page size should match the requested size$`, pageSizeMatchesRequest)
	sc.Step(`^the sales should be ordered by soldAt descending$`, salesOrderedBySoldAtDesc)
	sc.Step(`^every sale total price should be consistent$`, everySaleTotalConsistent)

	sc.Step(`^I sell a plant with stock at least (\d+) as "([^"]*)" with quantity (\d+)$`, iSellPlantWithStock)
	sc.Step(`^I attempt to sell any available plant with quantity (\d+) as "([^"]*)"$`, iAttemptToSell)
	sc.Step(`^I sell a non-existent plant as "([^"]*)" with quantity (\d+)$`, iSellNonExistentPlant)
	sc.Step(`^I sell more than the available stock as "([^"]*)"$`, iOversell)
	sc.Step(`^the response should be a Sale object with quantity (\d+)$`, responseIsSaleWithQuantity)
	sc.Step(`^the sale total price should be consistent$`, saleTotalConsistent)
	sc.Step(`^the plant stock should be reduced by (\d+)$`, plantStockReducedBy)
	sc.Step(`^the plant stock should be unchanged$`, plantStockUnchanged)

	sc.Step(`^I delete an existing sale as "([^"]*)"$`, iDeleteExistingSale)
	sc.Step(`^I attempt to delete any existing sale as "([^"]*)"$`, iDeleteExistingSale)
	sc.Step(`^I delete the created sale as "([^"]*)"$`, iDeleteCreatedSale)
	sc.Step(`^I delete the same sale again$`, iDeleteSameSaleAgain)
	sc.Step(`^the deleted sale should not be retrievable$`, deletedSaleNotRetrievable)
}

func iRequestAllSales(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	token, err := w.token()
	if err != nil {
		return err
	}
	resp, err := w.api.ListSales(ctx, token)
	if err != nil {
		return err
	}
	w.record(w.authRole, resp)
	return nil
}

func iRequestAllSalesAnonymously(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, err := w.api.ListSales(ctx, "")
	if err != nil {
		return err
	}
	w.record("", resp)
	return nil
}

func iRequestPagedSales(ctx context.Context, page, size int, sortKey string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	sort, err := nursery.ParseSort(sortKey)
	if err != nil {
		return errs.Wrap(errs.Configuration, "bad sort in scenario", err)
	}
	token, err := w.token()
	if err != nil {
		return err
	}
	resp, err := w.api.SalesPage(ctx, token, page, size, sort)
	if err != nil {
		return err
	}
	w.requestedSize = size
	w.record(w.authRole, resp)
	return nil
}

func responseIsSaleList(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, body, err := w.lastDecoded()
	if err != nil {
		return err
	}
	if err := resp.ExpectStatus(http.StatusOK); err != nil {
		return err
	}
	return check(resp, schema.SaleList(body))
}

func responseIsPageSale(ctx context.Context, max int) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, body, err := w.lastDecoded()
	if err != nil {
		return err
	}
	if err := resp.ExpectStatus(http.StatusOK); err != nil {
		return err
	}
	return check(resp, schema.PageSale(body, max))
}

func pageSizeMatchesRequest(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, err := w.Last()
	if err != nil {
		return err
	}
	obj, err := resp.Object()
	if err != nil {
		return resp.Unexpected("page body is not a JSON object")
	}
	size, ok := obj["size"].(float64)
	if !ok || int(size) != w.requestedSize {
		return resp.Unexpected("page size is %v, requested %d", obj["size"], w.requestedSize)
	}
	return nil
}

// saleItems returns the sales in the last body, which is either a list or a page.
func saleItems(w *World) ([]any, error) {
	resp, body, err := w.lastDecoded()
	if err != nil {
		return nil, err
	}
	switch v := body.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if content, ok := v["content"].([]any); ok {
			return content, nil
		}
	}
	return nil, resp.Unexpected("body holds no list of sales")
}

func salesOrderedBySoldAtDesc(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	items, err := saleItems(w)
	if err != nil {
		return err
	}
	return check(w.last, schema.SoldAtNonIncreasing(items))
}

func everySaleTotalConsistent(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	items, err := saleItems(w)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := check(w.last, schema.TotalPriceConsistent(item)); err != nil {
			return err
		}
	}
	return nil
}

// sell posts a sale and keeps the plant and sale ids for later steps.
func sell(ctx context.Context, w *World, role string, plantID nursery.ID, quantity int) error {
	token, err := w.tokenFor(ctx, role)
	if err != nil {
		return err
	}
	resp, err := w.api.SellPlant(ctx, token, plantID, quantity)
	if err != nil {
		return err
	}
	w.record(role, resp)
	w.plantID = plantID
	if resp.Status == http.StatusCreated {
		if obj, err := resp.Object(); err == nil {
			if id, ok := nursery.IDFromAny(obj["id"]); ok {
				w.saleID = id
			}
		}
	}
	return nil
}

func sellablePlant(ctx context.Context, w *World, role string, min int) (fixtures.SellablePlant, error) {
	token, err := w.tokenFor(ctx, role)
	if err != nil {
		return fixtures.SellablePlant{}, err
	}
	plant, err := w.resolver.SellablePlant(ctx, token, min)
	if err != nil {
		return fixtures.SellablePlant{}, err
	}
	w.stockBefore = plant.Quantity
	return plant, nil
}

func iSellPlantWithStock(ctx context.Context, min int, role string, quantity int) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	plant, err := sellablePlant(ctx, w, role, min)
	if err != nil {
		return err
	}
	return sell(ctx, w, role, plant.ID, quantity)
}

func iAttemptToSell(ctx context.Context, quantity int, role string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	plant, err := sellablePlant(ctx, w, role, 1)
	if err != nil {
		return err
	}
	return sell(ctx, w, role, plant.ID, quantity)
}

func iSellNonExistentPlant(ctx context.Context, role string, quantity int) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	token, err := w.tokenFor(ctx, role)
	if err != nil {
		return err
	}
	id, err := w.resolver.NonExistentPlantID(ctx, token)
	if err != nil {
		return err
	}
	return sell(ctx, w, role, id, quantity)
}

func iOversell(ctx context.Context, role string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	plant, err := sellablePlant(ctx, w, role, 1)
	if err != nil {
		return err
	}
	return sell(ctx, w, role, plant.ID, plant.Quantity+1)
}

func responseIsSaleWithQuantity(ctx context.Context, quantity int) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, body, err := w.lastDecoded()
	if err != nil {
		return err
	}
	if err := check(resp, schema.Sale(body)); err != nil {
		return err
	}
	got, _ := body.(map[string]any)["quantity"].(float64)
	if int(got) != quantity {
		return resp.Unexpected("sale quantity is %v, expected %d", got, quantity)
	}
	return nil
}

func saleTotalConsistent(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, body, err := w.lastDecoded()
	if err != nil {
		return err
	}
	return check(resp, schema.TotalPriceConsistent(body))
}

// currentStock fetches the remembered plant with the last role's token.
func currentStock(ctx context.Context, w *World) (int, error) {
	if w.plantID.IsZero() {
		return 0, errs.New(errs.Setup, "no plant selected earlier in this scenario")
	}
	role := w.lastRole
	if role == "" {
		role = string(credentials.Admin)
	}
	token, err := w.tokenFor(ctx, role)
	if err != nil {
		return 0, err
	}
	resp, err := w.api.GetPlant(ctx, token, w.plantID)
	if err != nil {
		return 0, err
	}
	w.record(role, resp)
	if err := resp.ExpectStatus(http.StatusOK); err != nil {
		return 0, err
	}
	obj, err := resp.Object()
	if err != nil {
		return 0, resp.Unexpected("plant body is not a JSON object")
	}
	qty, ok := fixtures.PlantQuantity(obj)
	if !ok {
		return 0, resp.Unexpected("plant body has no stock count")
	}
	return qty, nil
}

func plantStockReducedBy(ctx context.Context, n int) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	qty, err := currentStock(ctx, w)
	if err != nil {
		return err
	}
	if qty != w.stockBefore-n {
		return w.last.Unexpected("stock is %d, expected %d - %d", qty, w.stockBefore, n)
	}
	return nil
}

func plantStockUnchanged(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	qty, err := currentStock(ctx, w)
	if err != nil {
		return err
	}
	if qty != w.stockBefore {
		return w.last.Unexpected("stock changed from %d to %d", w.stockBefore, qty)
	}
	return nil
}

func deleteSale(ctx context.Context, w *World, role string, id nursery.ID) error {
	token, err := w.tokenFor(ctx, role)
	if err != nil {
		return err
	}
	resp, err := w.api.DeleteSale(ctx, token, id)
	if err != nil {
		return err
	}
	w.saleID = id
	w.record(role, resp)
	return nil
}

// iDeleteExistingSale deletes some sale as role. Admins may create the sale
// themselves; other roles rely on the configured setup admin.
func iDeleteExistingSale(ctx context.Context, role string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	token, err := w.tokenFor(ctx, role)
	if err != nil {
		return err
	}
	var id nursery.ID
	if r, _ := credentials.ParseRole(role); r == credentials.Admin {
		id, err = w.resolver.CreateSaleIfNone(ctx, token)
	} else {
		id, err = w.resolver.EnsureSaleExists(ctx, token)
	}
	if err != nil {
		return err
	}
	return deleteSale(ctx, w, role, id)
}

func iDeleteCreatedSale(ctx context.Context, role string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	if w.saleID.IsZero() {
		return errs.New(errs.Setup, "no sale was created earlier in this scenario")
	}
	return deleteSale(ctx, w, role, w.saleID)
}

func iDeleteSameSaleAgain(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	if w.saleID.IsZero() {
		return errs.New(errs.Setup, "no sale was deleted earlier in this scenario")
	}
	return deleteSale(ctx, w, w.lastRole, w.saleID)
}

func deletedSaleNotRetrievable(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	if w.saleID.IsZero() {
		return errs.New(errs.Setup, "no sale was deleted earlier in this scenario")
	}
	token, err := w.tokenFor(ctx, w.lastRole)
	if err != nil {
		return err
	}
	resp, err := w.api.GetSale(ctx, token, w.saleID)
	if err != nil {
		return err
	}
	w.record(w.lastRole, resp)
	if resp.Status != http.StatusNotFound {
		return resp.Unexpected("deleted sale %s is still retrievable", w.saleID)
	}
	return nil
}
