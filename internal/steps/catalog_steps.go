package steps

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/kuitang/nursery-suite/internal/nursery"
	"github.com/kuitang/nursery-suite/internal/schema"
)

// Category names must be 3-10 characters; "Cat" plus five letters stays inside.
// Seeded plant names are "<base><4 letters> <n>" and stay under 25.
const (
	categoryPrefix     = "Cat"
	categorySuffixLen  = 5
	plantNameKeep      = 20
	plantNameSuffixLen = 4
	seedBaseKeep       = 12
)

var defaultPlantPrice = decimal.RequireFromString("9.99")

func registerCatalogSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I request all categories$`, iRequestAllCategories)
	sc.Step(`^I create a main category with a unique name$`, iCreateUniqueMainCategory)
	sc.Step(`^I create a main category with name "([^"]*)"$`, iCreateMainCategoryNamed)
	sc.Step(`^I create a sub-category under the created category$`, iCreateSubCategory)
	sc.Step(`^I request the created category$`, iRequestCreatedCategory)
	sc.Step(`^I update the created category name to a unique name$`, iRenameCreatedCategory)
	sc.Step(`^I delete the created category$`, iDeleteCreatedCategory)
	sc.Step(`^the response should be a JSON array of Category objects$`, responseIsCategoryList)
	sc.Step(`^the response should be a Category object$`, responseIsCategory)
	sc.Step(`^the category name should match the created name$`, categoryNameMatches)
	sc.Step(`^the category should have no parent$`, categoryHasNoParent)
	sc.Step(`^the category parent should be the previous category$`, categoryParentIsPrevious)

	sc.Step(`^I request all plants$`, iRequestAllPlants)
	sc.Step(`^I create a plant with a unique name under a sub-category$`, iCreatePlantUnderSubCategory)
	sc.Step(`^I request the created plant$`, iRequestCreatedPlant)
	sc.Step(`^I request a non-existent plant$`, iRequestNonExistentPlant)
	sc.Step(`^I delete the created plant$`, iDeleteCreatedPlant)
	sc.Step(`^the response should be a JSON array of plant objects$`, responseIsPlantList)
	sc.Step(`^the first plant in the response should contain fields "([^"]*)"$`, firstPlantHasFields)
	sc.Step(`^the plant name should match the created name$`, plantNameMatches)
	sc.Step(`^I request the plants of the first sub-category$`, iRequestPlantsOfFirstSubCategory)
	sc.Step(`^every plant in the response should belong to the requested category$`, everyPlantInRequestedCategory)
	sc.Step(`^(\d+) plants named after "([^"]*)" have been seeded$`, plantsHaveBeenSeeded)
	sc.Step(`^the response should list every seeded plant$`, responseListsSeededPlants)
	sc.Step(`^every plant has been deleted$`, everyPlantDeleted)
	sc.Step(`^the response should be an empty JSON array$`, responseIsEmptyArray)
}

func iRequestAllCategories(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	token, err := w.token()
	if err != nil {
		return err
	}
	resp, err := w.api.ListCategories(ctx, token)
	if err != nil {
		return err
	}
	w.record(w.authRole, resp)
	return nil
}

// createCategory posts a category and remembers it when the API accepted it.
func createCategory(ctx context.Context, w *World, name string, parent *nursery.ID) error {
	token, err := w.token()
	if err != nil {
		return err
	}
	resp, err := w.api.CreateCategory(ctx, token, nursery.NewCategoryInput(name, parent))
	if err != nil {
		return err
	}
	w.record(w.authRole, resp)
	if resp.Status != http.StatusCreated && resp.Status != http.StatusOK {
		return nil
	}
	obj, err := resp.Object()
	if err != nil {
		return resp.Unexpected("created category is not a JSON object")
	}
	id, ok := nursery.IDFromAny(obj["id"])
	if !ok {
		return resp.Unexpected("created category has no id")
	}
	w.categoryID = id
	w.categoryName = name
	return nil
}

func iCreateUniqueMainCategory(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	return createCategory(ctx, w, w.resolver.UniqueName(categoryPrefix, len(categoryPrefix), categorySuffixLen), nil)
}

func iCreateMainCategoryNamed(ctx context.Context, name string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	return createCategory(ctx, w, name, nil)
}

func iCreateSubCategory(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	if w.categoryID.IsZero() {
		return errs.New(errs.Setup, "no category was created earlier in this scenario")
	}
	parent := w.categoryID
	w.parentID = parent
	return createCategory(ctx, w, w.resolver.UniqueName(categoryPrefix, len(categoryPrefix), categorySuffixLen), &parent)
}

func requireCategory(w *World) error {
	if w.categoryID.IsZero() {
		return errs.New(errs.Setup, "no category was created earlier in this scenario")
	}
	return nil
}

func iRequestCreatedCategory(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	if err := requireCategory(w); err != nil {
		return err
	}
	token, err := w.token()
	if err != nil {
		return err
	}
	resp, err := w.api.GetCategory(ctx, token, w.categoryID)
	if err != nil {
		return err
	}
	w.record(w.authRole, resp)
	return nil
}

func iRenameCreatedCategory(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	if err := requireCategory(w); err != nil {
		return err
	}
	token, err := w.token()
	if err != nil {
		return err
	}
	name := w.resolver.UniqueName(categoryPrefix, len(categoryPrefix), categorySuffixLen)
	var parent *nursery.ID
	if !w.parentID.IsZero() {
		parent = &w.parentID
	}
	in := nursery.NewCategoryInput(name, parent)
	resp, err := w.api.UpdateCategory(ctx, token, w.categoryID, in)
	if err != nil {
		return err
	}
	w.record(w.authRole, resp)
	if resp.Status == http.StatusOK {
		w.categoryName = name
	}
	return nil
}

func iDeleteCreatedCategory(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	if err := requireCategory(w); err != nil {
		return err
	}
	token, err := w.token()
	if err != nil {
		return err
	}
	resp, err := w.api.DeleteCategory(ctx, token, w.categoryID)
	if err != nil {
		return err
	}
	w.record(w.authRole, resp)
	return nil
}

func responseIsCategoryList(ctx context.Context) error {
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
	return check(resp, schema.CategoryList(body))
}

func responseIsCategory(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, body, err := w.lastDecoded()
	if err != nil {
		return err
	}
	return check(resp, schema.Category(body))
}

func lastObject(ctx context.Context) (*World, map[string]any, error) {
	w, err := WorldFrom(ctx)
	if err != nil {
		return nil, nil, err
	}
	resp, err := w.Last()
	if err != nil {
		return nil, nil, err
	}
	obj, err := resp.Object()
	if err != nil {
		return nil, nil, resp.Unexpected("body is not a JSON object")
	}
	return w, obj, nil
}

func categoryNameMatches(ctx context.Context) error {
	w, obj, err := lastObject(ctx)
	if err != nil {
		return err
	}
	if name, _ := obj["name"].(string); name != w.categoryName {
		return w.last.Unexpected("category name is %q, expected %q", name, w.categoryName)
	}
	return nil
}

func categoryHasNoParent(ctx context.Context) error {
	w, obj, err := lastObject(ctx)
	if err != nil {
		return err
	}
	if parent, ok := obj["parent"]; ok && parent != nil {
		return w.last.Unexpected("top-level category has parent %v", parent)
	}
	if name, _ := obj["parentName"].(string); name != "" {
		return w.last.Unexpected("top-level category has parentName %q", name)
	}
	return nil
}

func categoryParentIsPrevious(ctx context.Context) error {
	w, obj, err := lastObject(ctx)
	if err != nil {
		return err
	}
	parent, ok := obj["parent"].(map[string]any)
	if !ok {
		return w.last.Unexpected("sub-category has no parent object")
	}
	id, ok := nursery.IDFromAny(parent["id"])
	if !ok || id.String() != w.parentID.String() {
		return w.last.Unexpected("parent id is %v, expected %s", parent["id"], w.parentID)
	}
	return nil
}

func iRequestAllPlants(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	token, err := w.token()
	if err != nil {
		return err
	}
	resp, err := w.api.ListPlants(ctx, token)
	if err != nil {
		return err
	}
	w.record(w.authRole, resp)
	return nil
}

// firstSubCategory returns the first category that has a parent.
func firstSubCategory(ctx context.Context, w *World, token string) (nursery.ID, error) {
	categories, err := w.resolver.Categories(ctx, token)
	if err != nil {
		return nursery.ID{}, err
	}
	for _, c := range categories {
		obj, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if parent, ok := obj["parent"].(map[string]any); !ok || parent == nil {
			continue
		}
		if id, ok := nursery.IDFromAny(obj["id"]); ok {
			return id, nil
		}
	}
	return nursery.ID{}, errs.Newf(errs.Setup, "no sub-category found among %d categories", len(categories))
}

func iCreatePlantUnderSubCategory(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	token, err := w.token()
	if err != nil {
		return err
	}
	categoryID, err := firstSubCategory(ctx, w, token)
	if err != nil {
		return err
	}
	name := w.resolver.UniqueName(w.resolver.FakePlantNames(1)[0], plantNameKeep, plantNameSuffixLen)
	in := nursery.PlantInput{Name: name, Price: defaultPlantPrice, Quantity: 10}
	resp, err := w.api.CreatePlantInCategory(ctx, token, categoryID, in)
	if err != nil {
		return err
	}
	w.record(w.authRole, resp)
	if resp.Status != http.StatusCreated && resp.Status != http.StatusOK {
		return nil
	}
	obj, err := resp.Object()
	if err != nil {
		return resp.Unexpected("created plant is not a JSON object")
	}
	id, ok := nursery.IDFromAny(obj["id"])
	if !ok {
		return resp.Unexpected("created plant has no id")
	}
	w.plantID = id
	w.plantName = name
	w.stockBefore = in.Quantity
	return nil
}

func getPlant(ctx context.Context, w *World, id nursery.ID) error {
	token, err := w.token()
	if err != nil {
		return err
	}
	resp, err := w.api.GetPlant(ctx, token, id)
	if err != nil {
		return err
	}
	w.record(w.authRole, resp)
	return nil
}

func iRequestCreatedPlant(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	if w.plantID.IsZero() {
		return errs.New(errs.Setup, "no plant was created earlier in this scenario")
	}
	return getPlant(ctx, w, w.plantID)
}

func iRequestNonExistentPlant(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	token, err := w.token()
	if err != nil {
		return err
	}
	id, err := w.resolver.NonExistentPlantID(ctx, token)
	if err != nil {
		return err
	}
	return getPlant(ctx, w, id)
}

func iDeleteCreatedPlant(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	if w.plantID.IsZero() {
		return errs.New(errs.Setup, "no plant was created earlier in this scenario")
	}
	token, err := w.token()
	if err != nil {
		return err
	}
	resp, err := w.api.DeletePlant(ctx, token, w.plantID)
	if err != nil {
		return err
	}
	w.record(w.authRole, resp)
	return nil
}

func responseIsPlantList(ctx context.Context) error {
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
	return check(resp, schema.PlantList(body))
}

func firstPlantHasFields(ctx context.Context, list string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, err := w.Last()
	if err != nil {
		return err
	}
	arr, err := resp.Array()
	if err != nil || len(arr) == 0 {
		return resp.Unexpected("expected a non-empty array of plants")
	}
	first, ok := arr[0].(map[string]any)
	if !ok {
		return resp.Unexpected("first plant is not a JSON object")
	}
	for _, f := range splitFields(list) {
		if _, ok := first[f]; !ok {
			return resp.Unexpected("first plant has no %q field", f)
		}
	}
	return nil
}

func plantNameMatches(ctx context.Context) error {
	w, obj, err := lastObject(ctx)
	if err != nil {
		return err
	}
	if err := check(w.last, schema.Plant(obj)); err != nil {
		return err
	}
	if name, _ := obj["name"].(string); name != w.plantName {
		return w.last.Unexpected("plant name is %q, expected %q", name, w.plantName)
	}
	return nil
}

func iRequestPlantsOfFirstSubCategory(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	token, err := w.token()
	if err != nil {
		return err
	}
	categoryID, err := firstSubCategory(ctx, w, token)
	if err != nil {
		return err
	}
	w.categoryID = categoryID
	resp, err := w.api.ListPlantsByCategory(ctx, token, categoryID)
	if err != nil {
		return err
	}
	w.record(w.authRole, resp)
	return nil
}

// plantCategoryID reads the category of a plant from its embedded category or
// a flat categoryId field.
func plantCategoryID(plant map[string]any) (nursery.ID, bool) {
	if ref, ok := plant["category"].(map[string]any); ok {
		if id, ok := nursery.IDFromAny(ref["id"]); ok {
			return id, true
		}
	}
	return nursery.IDFromAny(plant["categoryId"])
}

func everyPlantInRequestedCategory(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	if w.categoryID.IsZero() {
		return errs.New(errs.Setup, "no category was requested earlier in this scenario")
	}
	resp, err := w.Last()
	if err != nil {
		return err
	}
	arr, err := resp.Array()
	if err != nil {
		return resp.Unexpected("expected a JSON array of plants")
	}
	for i, item := range arr {
		plant, ok := item.(map[string]any)
		if !ok {
			return resp.Unexpected("plant %d is not a JSON object", i)
		}
		id, ok := plantCategoryID(plant)
		if !ok {
			return resp.Unexpected("plant %d has no category", i)
		}
		if id.String() != w.categoryID.String() {
			return resp.Unexpected("plant %d belongs to category %s, expected %s", i, id, w.categoryID)
		}
	}
	return nil
}

func plantsHaveBeenSeeded(ctx context.Context, n int, base string) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	token, err := w.tokenFor(ctx, "admin")
	if err != nil {
		return err
	}
	seedBase := w.resolver.UniqueName(base, seedBaseKeep, plantNameSuffixLen)
	created, err := w.resolver.SeedPlantsWithPattern(ctx, token, seedBase, n)
	if err != nil {
		return err
	}
	if created != n {
		return errs.Newf(errs.Setup, "seeded %d of %d plants named %s", created, n, seedBase)
	}
	w.seedBase = seedBase
	w.seededSize = n
	return nil
}

func requireSeeded(w *World) error {
	if w.seedBase == "" {
		return errs.New(errs.Setup, "no plants were seeded earlier in this scenario")
	}
	return nil
}

func responseListsSeededPlants(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	if err := requireSeeded(w); err != nil {
		return err
	}
	resp, err := w.Last()
	if err != nil {
		return err
	}
	arr, err := resp.Array()
	if err != nil {
		return resp.Unexpected("expected a JSON array of plants")
	}
	listed := make(map[string]bool, len(arr))
	for _, item := range arr {
		if plant, ok := item.(map[string]any); ok {
			if name, ok := plant["name"].(string); ok {
				listed[name] = true
			}
		}
	}
	for i := 1; i <= w.seededSize; i++ {
		if name := fmt.Sprintf("%s %d", w.seedBase, i); !listed[name] {
			return resp.Unexpected("seeded plant %q is not listed", name)
		}
	}
	return nil
}

func everyPlantDeleted(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	token, err := w.tokenFor(ctx, "admin")
	if err != nil {
		return err
	}
	if _, err := w.resolver.DeleteAllPlants(ctx, token); err != nil {
		return err
	}
	left, err := w.resolver.Plants(ctx, token)
	if err != nil {
		return err
	}
	if len(left) > 0 {
		return errs.Newf(errs.Setup, "%d plants could not be deleted", len(left))
	}
	return nil
}

func responseIsEmptyArray(ctx context.Context) error {
	w, err := WorldFrom(ctx)
	if err != nil {
		return err
	}
	resp, err := w.Last()
	if err != nil {
		return err
	}
	arr, err := resp.Array()
	if err != nil {
		return resp.Unexpected("expected a JSON array")
	}
	if len(arr) > 0 {
		return resp.Unexpected("expected an empty array, got %d items", len(arr))
	}
	return nil
}
