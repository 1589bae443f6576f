package schema

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/nursery-suite/internal/errs"
)

func decode(t testing.TB, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("bad fixture JSON: %v", err)
	}
	return v
}

const validSale = `{
	"id": 11,
	"plant": {"id": 3, "name": "Rose", "price": 12.5, "quantity": 7},
	"quantity": 2,
	"totalPrice": 25.0,
	"soldAt": "2026-10-16T08:15:00"
}`

func TestErrorResponse(t *testing.T) {
	t.Parallel()
	require.NoError(t, ErrorResponse(decode(t, `{"status":404,"error":"Not Found","message":"Sale not found"}`)))
	require.NoError(t, ErrorResponse(decode(t, `{"status":400,"error":"Bad Request","message":"x","timestamp":"2026-10-16T08:15:00.123Z"}`)))

	cases := map[string]string{
		`[]`: "expected object",
		`{"status":"404","error":"Not Found","message":"m"}`:                 "$.status: expected number",
		`{"status":404,"message":"m"}`:                                      "missing required field(s) error",
		`{"status":404,"error":"e","message":"m","timestamp":"last tuesday"}`: "$.timestamp",
	}
	for body, want := range cases {
		err := ErrorResponse(decode(t, body))
		require.Error(t, err, body)
		assert.Equal(t, errs.Assertion, errs.CodeOf(err), body)
		assert.Contains(t, err.Error(), want, body)
	}
}

func TestSale(t *testing.T) {
	t.Parallel()
	require.NoError(t, Sale(decode(t, validSale)))

	err := Sale(decode(t, `{"id":1,"plant":{"id":3,"name":"Rose","price":"12.5","quantity":7},"quantity":1,"totalPrice":12.5,"soldAt":"2026-10-16"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$.plant.price")

	err = Sale(decode(t, `{"id":1,"plant":{"id":3,"name":"Rose","price":12.5,"quantity":7},"quantity":1,"soldAt":"2026-10-16"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "totalPrice")
}

func TestPageSale(t *testing.T) {
	t.Parallel()
	page := fmt.Sprintf(`{"content":[%s,%s],"totalElements":9,"totalPages":5,"number":0,"size":2}`, validSale, validSale)
	require.NoError(t, PageSale(decode(t, page), 2))

	err := PageSale(decode(t, page), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than page size 1")

	err = PageSale(decode(t, `{"content":[],"totalElements":0,"totalPages":0,"number":0}`), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size")
}

func TestCategory(t *testing.T) {
	t.Parallel()
	require.NoError(t, Category(decode(t, `{"id":1,"name":"Flowers","parent":null,"subCategories":[]}`)))
	require.NoError(t, Category(decode(t, `{"id":"c-1","name":"Roses","parentName":"Flowers"}`)))
	require.NoError(t, CategoryList(decode(t, `[{"id":1,"name":"Flowers","subCategories":[]}]`)))

	err := Category(decode(t, `{"id":1,"name":"Flowers"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither parent nor subCategories")
}

func TestPlantList(t *testing.T) {
	t.Parallel()
	require.NoError(t, PlantList(decode(t, `[{"id":1,"name":"Rose","price":10,"quantity":3}]`)))
	err := PlantList(decode(t, `[{"id":1,"name":"Rose","price":10,"quantity":3},{"id":true,"name":"x","price":1,"quantity":1}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$[1].id")
}

func TestSoldAtNonIncreasing(t *testing.T) {
	t.Parallel()
	content := decode(t, `[{"soldAt":"2026-10-16T10:00:00"},{"soldAt":"2026-10-16T10:00:00"},{"soldAt":"2026-10-15T09:00:00"}]`).([]any)
	require.NoError(t, SoldAtNonIncreasing(content))

	content = decode(t, `[{"soldAt":"2026-10-15T09:00:00"},{"soldAt":"2026-10-16T10:00:00"}]`).([]any)
	err := SoldAtNonIncreasing(content)
	require.Error(t, err)
	assert.Equal(t, errs.Assertion, errs.CodeOf(err))
}

func testTotalPriceConsistent(t *rapid.T) {
	cents := rapid.IntRange(1, 100000).Draw(t, "cents")
	qty := rapid.IntRange(1, 50).Draw(t, "qty")
	price := float64(cents) / 100
	sale := map[string]any{
		"plant":      map[string]any{"price": price},
		"quantity":   float64(qty),
		"totalPrice": float64(cents*qty) / 100,
		"soldAt":     time.Now().Format(time.RFC3339),
	}
	if err := TotalPriceConsistent(sale); err != nil {
		t.Fatalf("consistent sale rejected: %v", err)
	}
	sale["totalPrice"] = float64(cents*qty+1) / 100
	if err := TotalPriceConsistent(sale); err == nil {
		t.Fatalf("sale off by one cent accepted")
	}
}

func TestTotalPriceConsistent(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testTotalPriceConsistent)
}

func TestJWTShaped(t *testing.T) {
	t.Parallel()
	require.NoError(t, JWTShaped("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJhZG1pbiJ9.c2ln"))
	require.Error(t, JWTShaped("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJhZG1pbiJ9"))
	require.Error(t, JWTShaped(""))
}
