package nursery

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/nursery-suite/internal/apiclient"
)

func TestID_DecodesNumbersAndStrings(t *testing.T) {
	t.Parallel()
	var got struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":42,"b":"sku-9","c":null}`), &got))

	assert.True(t, got.A.IsNumeric())
	n, ok := got.A.Int64()
	require.True(t, ok)
	assert.Equal(t, int64(42), n)

	assert.False(t, got.B.IsNumeric())
	assert.Equal(t, "sku-9", got.B.String())

	assert.True(t, got.C.IsZero())

	var bad ID
	assert.Error(t, json.Unmarshal([]byte(`true`), &bad))
}

func testID_PreservesJSONKind(t *rapid.T) {
	var id ID
	if rapid.Bool().Draw(t, "numeric") {
		id = IntID(rapid.Int64Range(0, 1<<53).Draw(t, "n"))
	} else {
		id = StringID(rapid.StringMatching(`[a-z][a-z0-9-]{0,15}`).Draw(t, "s"))
	}
	data, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back ID
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	if back != id {
		t.Fatalf("kind or value changed: %#v -> %s -> %#v", id, data, back)
	}
}

func TestID_PreservesJSONKind(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testID_PreservesJSONKind)
}

func TestIDFromAny(t *testing.T) {
	t.Parallel()
	id, ok := IDFromAny(float64(7))
	require.True(t, ok)
	assert.Equal(t, IntID(7), id)

	id, ok = IDFromAny(1e19)
	require.True(t, ok)
	assert.True(t, id.IsNumeric())
	assert.Equal(t, "10000000000000000000", id.String())
	_, fits := id.Int64()
	assert.False(t, fits)
	d, ok := id.Decimal()
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.New(1, 19)))

	id, ok = IDFromAny(2.5)
	require.True(t, ok)
	assert.Equal(t, "2.5", id.String())

	_, ok = IDFromAny(nil)
	assert.False(t, ok)
	_, ok = IDFromAny("")
	assert.False(t, ok)
}

func TestPlant_StockCountPrecedence(t *testing.T) {
	t.Parallel()
	var p Plant
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"name":"Rose","price":12.5,"stock":4,"availableQuantity":9}`), &p))
	n, ok := p.StockCount()
	require.True(t, ok)
	assert.Equal(t, 4, n)
	assert.Equal(t, "12.5", p.Price.String())

	var none Plant
	_, ok = none.StockCount()
	assert.False(t, ok)
}

func TestParseSort(t *testing.T) {
	t.Parallel()
	s, err := ParseSort("soldAt,desc")
	require.NoError(t, err)
	assert.Equal(t, Sort{Field: "soldAt", Desc: true}, s)
	assert.Equal(t, "soldAt,desc", s.String())

	s, err = ParseSort("quantity")
	require.NoError(t, err)
	assert.Equal(t, "quantity,asc", s.String())

	_, err = ParseSort("soldAt,sideways")
	assert.Error(t, err)
	_, err = ParseSort(" ,desc")
	assert.Error(t, err)
}

type recordingDoer struct {
	reqs []apiclient.Request
}

func (d *recordingDoer) Do(_ context.Context, req apiclient.Request) (*apiclient.Response, error) {
	d.reqs = append(d.reqs, req)
	return &apiclient.Response{Method: req.Method, Path: req.Path, Status: http.StatusOK, Body: []byte(`{}`)}, nil
}

func TestAPI_BuildsRequests(t *testing.T) {
	t.Parallel()
	d := &recordingDoer{}
	api := NewAPI(d)
	ctx := context.Background()

	_, _ = api.SalesPage(ctx, "tok", 0, 5, Sort{Field: "soldAt", Desc: true})
	_, _ = api.SellPlant(ctx, "tok", IntID(3), 1)
	parent := IntID(9)
	_, _ = api.CreateCategory(ctx, "tok", NewCategoryInput("Ferns", &parent))

	require.Len(t, d.reqs, 3)
	assert.Equal(t, PathSalesPage, d.reqs[0].Path)
	assert.Equal(t, "soldAt,desc", d.reqs[0].Query.Get("sort"))
	assert.Equal(t, "/api/sales/plant/3", d.reqs[1].Path)
	assert.Equal(t, "1", d.reqs[1].Query.Get("quantity"))
	assert.Equal(t, http.MethodPost, d.reqs[1].Method)

	body, err := json.Marshal(d.reqs[2].Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":0,"name":"Ferns","parent":{"id":9,"name":""},"subCategories":[]}`, string(body))
}
