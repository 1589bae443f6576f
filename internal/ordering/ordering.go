// Package ordering checks that a column of rendered values is sorted, comparing
// the values as numbers, dates or case-insensitive text.
package ordering

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/kuitang/nursery-suite/internal/errs"
)

// Kind selects how values are compared.
type Kind int

const (
	Text Kind = iota
	Numeric
	Date
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Date:
		return "date"
	default:
		return "text"
	}
}

// Direction is the expected sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// ParseDirection accepts asc/ascending and desc/descending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	}
	return Ascending, errs.Newf(errs.Configuration, "unknown sort direction %q", s)
}

func (d Direction) String() string {
	if d == Descending {
		return "descending"
	}
	return "ascending"
}

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// dateLayouts are tried in order; the first that parses wins.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"Jan 2, 2006, 3:04:05 PM",
	"Jan 2, 2006 3:04 PM",
	"1/2/2006, 3:04:05 PM",
	"1/2/2006",
}

// ParseDate parses the date formats the application renders in JSON and HTML.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseNumber strips everything except digits, '.' and '-' and parses the rest.
// "$1,250.00" yields 1250.
func ParseNumber(s string) (float64, bool) {
	cleaned := nonNumeric.ReplaceAllString(s, "")
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	return f, err == nil
}

var (
	collatorMu sync.Mutex
	collator   = collate.New(language.Und, collate.IgnoreCase)
)

func compareText(a, b string) int {
	collatorMu.Lock()
	defer collatorMu.Unlock()
	return collator.CompareString(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Compare orders two rendered values of the given kind. Values that fail to
// parse as numbers or dates are an assertion failure.
func Compare(kind Kind, a, b string) (int, error) {
	switch kind {
	case Numeric:
		x, okA := ParseNumber(a)
		y, okB := ParseNumber(b)
		if !okA || !okB {
			return 0, errs.Newf(errs.Assertion, "cannot compare %q and %q as numbers", a, b)
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	case Date:
		x, okA := ParseDate(a)
		y, okB := ParseDate(b)
		if !okA || !okB {
			return 0, errs.Newf(errs.Assertion, "cannot compare %q and %q as dates", a, b)
		}
		return x.Compare(y), nil
	default:
		return compareText(a, b), nil
	}
}

// Verify checks that values are sorted in direction under kind. Equal
// neighbours are allowed in either direction.
func Verify(values []string, kind Kind, dir Direction) error {
	for i := 1; i < len(values); i++ {
		c, err := Compare(kind, values[i-1], values[i])
		if err != nil {
			return err
		}
		if (dir == Ascending && c > 0) || (dir == Descending && c < 0) {
			return errs.Newf(errs.Assertion,
				"values are not in %s %s order at position %d: %q before %q (all: %s)",
				dir, kind, i, values[i-1], values[i], preview(values))
		}
	}
	return nil
}

// Sorted returns a stably sorted copy of values. Unparseable values sort last.
func Sorted(values []string, kind Kind, dir Direction) []string {
	out := append([]string(nil), values...)
	sort.SliceStable(out, func(i, j int) bool {
		c, err := Compare(kind, out[i], out[j])
		if err != nil {
			return false
		}
		if dir == Descending {
			return c > 0
		}
		return c < 0
	})
	return out
}

// KindForColumn picks the comparison for a table header.
func KindForColumn(header string) Kind {
	switch strings.ToLower(strings.TrimSpace(header)) {
	case "quantity", "stock", "price", "total price", "totalprice", "total":
		return Numeric
	case "sold at", "soldat", "date", "created at":
		return Date
	default:
		return Text
	}
}

func preview(values []string) string {
	const max = 10
	if len(values) <= max {
		return fmt.Sprintf("%q", values)
	}
	return fmt.Sprintf("%q ... (%d more)", values[:max], len(values)-max)
}
