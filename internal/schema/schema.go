// Package schema asserts the shape of decoded API responses. Every check
// works on generic JSON values (map[string]any, []any) so a response that
// does not fit the Go wire types can still be diagnosed field by field.
// Failures are assertion errors naming the JSON path that failed.
package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/kuitang/nursery-suite/internal/ordering"
)

// totalPriceTolerance is the allowed |totalPrice - price*quantity|.
var totalPriceTolerance = decimal.RequireFromString("0.0001")

var jwtShape = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)

func fail(path, format string, args ...any) error {
	if path == "" {
		path = "$"
	}
	return errs.New(errs.Assertion, path+": "+fmt.Sprintf(format, args...))
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func object(path string, v any) (map[string]any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fail(path, "expected object, got %s", jsonType(v))
	}
	return obj, nil
}

func requireKeys(path string, obj map[string]any, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fail(path, "missing required field(s) %s", strings.Join(missing, ", "))
	}
	return nil
}

func number(path string, v any) (float64, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fail(path, "expected number, got %s", jsonType(v))
	}
	return f, nil
}

func str(path string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fail(path, "expected string, got %s", jsonType(v))
	}
	return s, nil
}

func idValue(path string, v any) error {
	switch v.(type) {
	case float64, string:
		return nil
	}
	return fail(path, "expected number or string id, got %s", jsonType(v))
}

func isoDate(path string, v any) error {
	s, err := str(path, v)
	if err != nil {
		return err
	}
	if _, ok := ordering.ParseDate(s); !ok {
		return fail(path, "%q is not an ISO-8601 date", s)
	}
	return nil
}

// ErrorResponse checks the error envelope: status number, error string,
// message string and an optional ISO timestamp.
func ErrorResponse(body any) error {
	obj, err := object("$", body)
	if err != nil {
		return err
	}
	if err := requireKeys("$", obj, "status", "error", "message"); err != nil {
		return err
	}
	if _, err := number("$.status", obj["status"]); err != nil {
		return err
	}
	if _, err := str("$.error", obj["error"]); err != nil {
		return err
	}
	if _, err := str("$.message", obj["message"]); err != nil {
		return err
	}
	if ts, ok := obj["timestamp"]; ok {
		if err := isoDate("$.timestamp", ts); err != nil {
			return err
		}
	}
	return nil
}

// Plant checks id, name, price and quantity.
func Plant(v any) error {
	return plantAt("$", v)
}

func plantAt(path string, v any) error {
	obj, err := object(path, v)
	if err != nil {
		return err
	}
	if err := requireKeys(path, obj, "id", "name", "price", "quantity"); err != nil {
		return err
	}
	if err := idValue(path+".id", obj["id"]); err != nil {
		return err
	}
	if _, err := str(path+".name", obj["name"]); err != nil {
		return err
	}
	if _, err := number(path+".price", obj["price"]); err != nil {
		return err
	}
	if _, err := number(path+".quantity", obj["quantity"]); err != nil {
		return err
	}
	return nil
}

// Sale checks id, nested plant, quantity, totalPrice and soldAt.
func Sale(v any) error {
	return saleAt("$", v)
}

func saleAt(path string, v any) error {
	obj, err := object(path, v)
	if err != nil {
		return err
	}
	if err := requireKeys(path, obj, "id", "plant", "quantity", "totalPrice", "soldAt"); err != nil {
		return err
	}
	if err := idValue(path+".id", obj["id"]); err != nil {
		return err
	}
	if err := plantAt(path+".plant", obj["plant"]); err != nil {
		return err
	}
	if _, err := number(path+".quantity", obj["quantity"]); err != nil {
		return err
	}
	if _, err := number(path+".totalPrice", obj["totalPrice"]); err != nil {
		return err
	}
	return isoDate(path+".soldAt", obj["soldAt"])
}

// SaleList checks a JSON array of sales.
func SaleList(body any) error {
	arr, ok := body.([]any)
	if !ok {
		return fail("$", "expected array, got %s", jsonType(body))
	}
	for i, item := range arr {
		if err := saleAt(fmt.Sprintf("$[%d]", i), item); err != nil {
			return err
		}
	}
	return nil
}

// PageSale checks a page envelope whose content holds at most maxSize sales.
func PageSale(body any, maxSize int) error {
	obj, err := object("$", body)
	if err != nil {
		return err
	}
	if err := requireKeys("$", obj, "content", "totalElements", "totalPages", "number", "size"); err != nil {
		return err
	}
	content, ok := obj["content"].([]any)
	if !ok {
		return fail("$.content", "expected array, got %s", jsonType(obj["content"]))
	}
	if len(content) > maxSize {
		return fail("$.content", "has %d items, more than page size %d", len(content), maxSize)
	}
	for _, key := range []string{"totalElements", "totalPages", "number", "size"} {
		if _, err := number("$."+key, obj[key]); err != nil {
			return err
		}
	}
	for i, item := range content {
		if err := saleAt(fmt.Sprintf("$.content[%d]", i), item); err != nil {
			return err
		}
	}
	return nil
}

// Category checks id and name plus parent or sub-category information.
func Category(v any) error {
	return categoryAt("$", v)
}

func categoryAt(path string, v any) error {
	obj, err := object(path, v)
	if err != nil {
		return err
	}
	if err := requireKeys(path, obj, "id", "name"); err != nil {
		return err
	}
	if err := idValue(path+".id", obj["id"]); err != nil {
		return err
	}
	if _, err := str(path+".name", obj["name"]); err != nil {
		return err
	}
	_, hasParent := obj["parent"]
	_, hasParentName := obj["parentName"]
	_, hasSubs := obj["subCategories"]
	if !hasParent && !hasParentName && !hasSubs {
		return fail(path, "contains neither parent nor subCategories")
	}
	if subs, ok := obj["subCategories"]; ok && subs != nil {
		if _, ok := subs.([]any); !ok {
			return fail(path+".subCategories", "expected array, got %s", jsonType(subs))
		}
	}
	return nil
}

// CategoryList checks a JSON array of categories.
func CategoryList(body any) error {
	arr, ok := body.([]any)
	if !ok {
		return fail("$", "expected array, got %s", jsonType(body))
	}
	for i, item := range arr {
		if err := categoryAt(fmt.Sprintf("$[%d]", i), item); err != nil {
			return err
		}
	}
	return nil
}

// PlantList checks a JSON array of plants.
func PlantList(body any) error {
	arr, ok := body.([]any)
	if !ok {
		return fail("$", "expected array, got %s", jsonType(body))
	}
	for i, item := range arr {
		if err := plantAt(fmt.Sprintf("$[%d]", i), item); err != nil {
			return err
		}
	}
	return nil
}

// SoldAtNonIncreasing checks that consecutive sales never move forward in time.
func SoldAtNonIncreasing(content []any) error {
	values := make([]string, 0, len(content))
	for i, item := range content {
		obj, err := object(fmt.Sprintf("$.content[%d]", i), item)
		if err != nil {
			return err
		}
		s, err := str(fmt.Sprintf("$.content[%d].soldAt", i), obj["soldAt"])
		if err != nil {
			return err
		}
		values = append(values, s)
	}
	return ordering.Verify(values, ordering.Date, ordering.Descending)
}

// TotalPriceConsistent checks |totalPrice - plant.price * quantity| < 0.0001.
func TotalPriceConsistent(sale any) error {
	obj, err := object("$", sale)
	if err != nil {
		return err
	}
	plant, err := object("$.plant", obj["plant"])
	if err != nil {
		return err
	}
	total, err := number("$.totalPrice", obj["totalPrice"])
	if err != nil {
		return err
	}
	price, err := number("$.plant.price", plant["price"])
	if err != nil {
		return err
	}
	qty, err := number("$.quantity", obj["quantity"])
	if err != nil {
		return err
	}

	expected := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty))
	diff := decimal.NewFromFloat(total).Sub(expected).Abs()
	if !diff.LessThan(totalPriceTolerance) {
		return fail("$.totalPrice", "%s does not equal price %s x quantity %s (= %s)",
			decimal.NewFromFloat(total), decimal.NewFromFloat(price), decimal.NewFromFloat(qty), expected)
	}
	return nil
}

// JWTShaped checks that token has three base64url segments.
func JWTShaped(token string) error {
	if !jwtShape.MatchString(token) {
		return fail("$.token", "%q is not a three-segment JWT", token)
	}
	return nil
}
