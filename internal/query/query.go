// Package query builds parameterized Cypher statements and classifies them as
// read-only or mutating before they reach the graph client.
package query

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
)

// TimeLayout is the canonical string form for timestamps sent as parameters.
const TimeLayout = time.RFC3339Nano

var mutatingKeywords = regexp.MustCompile(`(?i)\b(CREATE|MERGE|DELETE|REMOVE|SET|DETACH)\b`)

// Query is an immutable statement plus its sanitized parameters.
type Query struct {
	Text     string
	Params   map[string]any
	ReadOnly bool
}

// New validates text, sanitizes params and classifies the statement.
func New(text string, params map[string]any) (Query, error) {
	if strings.TrimSpace(text) == "" {
		return Query{}, domain.NewValidationError("query", "query text is required")
	}
	return Query{
		Text:     text,
		Params:   SanitizeParams(params),
		ReadOnly: IsReadOnly(text),
	}, nil
}

// MustNew is New for statically known statements; it panics on empty text.
func MustNew(text string, params map[string]any) Query {
	q, err := New(text, params)
	if err != nil {
		panic(err)
	}
	return q
}

// IsReadOnly reports whether text contains none of the mutating clause keywords.
func IsReadOnly(text string) bool {
	return !mutatingKeywords.MatchString(text)
}

// WithPagination returns a copy of q with SKIP and LIMIT appended.
// Negative skip is treated as 0 and a non-positive limit leaves LIMIT off.
func (q Query) WithPagination(skip, limit int) Query {
	if skip < 0 {
		skip = 0
	}
	out := q.clone()
	out.Text = strings.TrimRight(out.Text, " \n\t") + "\nSKIP $skip"
	out.Params["skip"] = int64(skip)
	if limit > 0 {
		out.Text += " LIMIT $limit"
		out.Params["limit"] = int64(limit)
	}
	return out
}

// WithOrdering returns a copy of q with an ORDER BY clause appended.
// field must be a property reference such as "t.amount"; anything else is rejected.
// Ordering must come before WithPagination, so a statement already ending in SKIP or LIMIT is rejected.
func (q Query) WithOrdering(field string, descending bool) (Query, error) {
	if !orderField.MatchString(field) {
		return Query{}, domain.NewValidationError("orderBy", "invalid ordering field %q", field)
	}
	if paginated.MatchString(q.Text) {
		return Query{}, domain.NewValidationError("orderBy", "ordering must be applied before pagination")
	}
	dir := "ASC"
	if descending {
		dir = "DESC"
	}
	out := q.clone()
	out.Text = strings.TrimRight(out.Text, " \n\t") + fmt.Sprintf("\nORDER BY %s %s", field, dir)
	return out, nil
}

var (
	orderField = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	paginated  = regexp.MustCompile(`(?i)\b(SKIP|LIMIT)\s+\S+\s*$`)
)

// Equal compares statements structurally: same text and same serialized parameters.
func (q Query) Equal(other Query) bool {
	if q.Text != other.Text {
		return false
	}
	a, errA := json.Marshal(q.Params)
	b, errB := json.Marshal(other.Params)
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}

func (q Query) clone() Query {
	params := make(map[string]any, len(q.Params)+2)
	for k, v := range q.Params {
		params[k] = v
	}
	return Query{Text: q.Text, Params: params, ReadOnly: q.ReadOnly}
}

// SanitizeParams drops nil values, formats timestamps with TimeLayout and
// recurses into nested maps. Slices pass through unchanged.
func SanitizeParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if clean, ok := sanitizeValue(v); ok {
			out[k] = clean
		}
	}
	return out
}

func sanitizeValue(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case time.Time:
		return FormatTime(val), true
	case *time.Time:
		if val == nil {
			return nil, false
		}
		return FormatTime(*val), true
	case map[string]any:
		if val == nil {
			return nil, false
		}
		return SanitizeParams(val), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map:
		if rv.IsNil() {
			return nil, false
		}
	}
	return v, true
}

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
