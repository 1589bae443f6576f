// Package fixtures finds or creates the entities a scenario needs before it
// can exercise the behaviour under test. Failures here are setup errors, never
// assertion failures: they mean the environment was not ready.
package fixtures

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/kuitang/nursery-suite/internal/nursery"
)

// Default sentinel returned by NonExistentID when there is nothing to compare against.
const emptyCollectionSentinel = int64(99999999)

// nonExistentOffset is added to the largest numeric id.
const nonExistentOffset = int64(999999)

// quantityFields lists where a plant's stock count may live, in precedence order.
var quantityFields = []string{"quantity", "stock", "availableQuantity"}

// PlantQuantity returns the plant's stock count. The first of quantity, stock
// and availableQuantity that is present and numeric wins.
func PlantQuantity(plant map[string]any) (int, bool) {
	n, ok := plantQuantityValue(plant)
	return int(n), ok
}

func plantQuantityValue(plant map[string]any) (float64, bool) {
	for _, field := range quantityFields {
		v, ok := plant[field]
		if !ok || v == nil {
			continue
		}
		if n, ok := asNumber(v); ok {
			return n, true
		}
	}
	return 0, false
}

// FindPlantWithMinStock returns the first plant that has an id and at least
// min units in stock. Fractional counts are compared as they are, so -0.5 is
// below a minimum of 0.
func FindPlantWithMinStock(plants []any, min int) (map[string]any, bool) {
	for _, p := range plants {
		plant, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := nursery.IDFromAny(plant["id"]); !ok {
			continue
		}
		if qty, ok := plantQuantityValue(plant); ok && qty >= float64(min) {
			return plant, true
		}
	}
	return nil, false
}

// NonExistentID derives an id that is not in ids. Null ids are ignored. When
// the first id is numeric the result is the floor of the largest numeric id
// plus 999999, computed exactly so ids beyond the int64 range still yield a
// larger id; otherwise it is the first id with "-does-not-exist" appended. An
// empty collection yields 99999999.
func NonExistentID(ids []any) nursery.ID {
	present := make([]nursery.ID, 0, len(ids))
	for _, raw := range ids {
		if id, ok := nursery.IDFromAny(raw); ok {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return nursery.IntID(emptyCollectionSentinel)
	}

	sample := present[0]
	if !sample.IsNumeric() {
		return nursery.StringID(sample.String() + "-does-not-exist")
	}

	var max decimal.Decimal
	found := false
	for _, id := range present {
		if d, ok := id.Decimal(); ok && (!found || d.GreaterThan(max)) {
			max, found = d, true
		}
	}
	if !found {
		return nursery.IntID(emptyCollectionSentinel)
	}
	return nursery.DecimalID(max.Floor().Add(decimal.NewFromInt(nonExistentOffset)))
}

// IDsOf collects the id field of each object in items.
func IDsOf(items []any) []any {
	ids := make([]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			ids = append(ids, obj["id"])
		}
	}
	return ids
}

func asNumber(v any) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case json.Number:
		f, err := typed.Float64()
		return f, err == nil
	}
	return 0, false
}
