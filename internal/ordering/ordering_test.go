package ordering

import (
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/nursery-suite/internal/errs"
)

func TestVerify_Numeric(t *testing.T) {
	t.Parallel()
	require.NoError(t, Verify([]string{"$9.50", "$10.00", "$1,250.00"}, Numeric, Ascending))
	require.NoError(t, Verify([]string{"12", "12", "3"}, Numeric, Descending))

	err := Verify([]string{"10", "9"}, Numeric, Ascending)
	require.Error(t, err)
	assert.Equal(t, errs.Assertion, errs.CodeOf(err))
	assert.Contains(t, err.Error(), "position 1")

	err = Verify([]string{"10", "n/a"}, Numeric, Ascending)
	require.Error(t, err)
	assert.Equal(t, errs.Assertion, errs.CodeOf(err))
}

func TestVerify_TextIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	require.NoError(t, Verify([]string{"aloe", "Basil", "cactus", "Daisy"}, Text, Ascending))
	require.Error(t, Verify([]string{"Basil", "aloe"}, Text, Ascending))
	require.NoError(t, Verify([]string{"Zinnia", "rose", "Aloe"}, Text, Descending))
}

func TestVerify_Dates(t *testing.T) {
	t.Parallel()
	require.NoError(t, Verify([]string{
		"2026-03-02T10:00:00Z",
		"2026-03-01T23:59:59.5",
		"2026-02-28",
	}, Date, Descending))
	require.Error(t, Verify([]string{"2026-02-28", "2026-03-01"}, Date, Descending))
}

func TestParseDate_Layouts(t *testing.T) {
	t.Parallel()
	for _, s := range []string{
		"2026-10-16T08:15:00.123456Z",
		"2026-10-16T08:15:00+02:00",
		"2026-10-16T08:15:00.123",
		"2026-10-16 08:15:00",
		"2026-10-16",
	} {
		_, ok := ParseDate(s)
		assert.True(t, ok, s)
	}
	_, ok := ParseDate("yesterday")
	assert.False(t, ok)
}

func TestKindForColumn(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Numeric, KindForColumn("Total Price"))
	assert.Equal(t, Numeric, KindForColumn(" Stock "))
	assert.Equal(t, Date, KindForColumn("Sold At"))
	assert.Equal(t, Text, KindForColumn("Plant"))
}

func TestParseDirection(t *testing.T) {
	t.Parallel()
	d, err := ParseDirection("DESC")
	require.NoError(t, err)
	assert.Equal(t, Descending, d)
	_, err = ParseDirection("up")
	assert.Equal(t, errs.Configuration, errs.CodeOf(err))
}

func testSorted_AlwaysVerifies(t *rapid.T) {
	ns := rapid.SliceOfN(rapid.IntRange(-500, 500), 0, 25).Draw(t, "ns")
	dir := Direction(rapid.IntRange(0, 1).Draw(t, "dir"))
	values := make([]string, len(ns))
	for i, n := range ns {
		values[i] = strconv.Itoa(n)
	}
	sorted := Sorted(values, Numeric, dir)
	if err := Verify(sorted, Numeric, dir); err != nil {
		t.Fatalf("Sorted output failed Verify: %v", err)
	}
}

func TestSorted_AlwaysVerifies(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testSorted_AlwaysVerifies)
}

func testVerify_DetectsAnyInversion(t *rapid.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	offsets := rapid.SliceOfNDistinct(rapid.IntRange(0, 100000), 2, 20, rapid.ID[int]).Draw(t, "offsets")
	sort.Sort(sort.Reverse(sort.IntSlice(offsets)))
	values := make([]string, len(offsets))
	for i, o := range offsets {
		values[i] = base.Add(time.Duration(o) * time.Minute).Format(time.RFC3339)
	}
	if err := Verify(values, Date, Descending); err != nil {
		t.Fatalf("descending dates rejected: %v", err)
	}
	i := rapid.IntRange(0, len(values)-2).Draw(t, "swap")
	values[i], values[i+1] = values[i+1], values[i]
	if err := Verify(values, Date, Descending); err == nil {
		t.Fatalf("inversion at %d not detected: %v", i, values)
	}
}

func TestVerify_DetectsAnyInversion(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testVerify_DetectsAnyInversion)
}
