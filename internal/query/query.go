package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit is the granularity of a recency bound, using Gmail's newer_than suffixes.
type Unit byte

const (
	Days   Unit = 'd'
	Months Unit = 'm'
	Years  Unit = 'y'
)

// dateLayout is the format Gmail expects for after:/before: clauses.
const dateLayout = "2006/01/02"

// TimeWindow bounds a search to messages newer than Amount units.
// The zero value means "no recency bound".
type TimeWindow struct {
	Amount int
	Unit   Unit
}

// IsZero reports whether the window imposes no bound.
func (w TimeWindow) IsZero() bool {
	return w.Amount <= 0
}

// String returns the compact form used by newer_than, e.g. "30d".
func (w TimeWindow) String() string {
	if w.IsZero() {
		return ""
	}
	unit := w.Unit
	if unit == 0 {
		unit = Days
	}
	return strconv.Itoa(w.Amount) + string(rune(unit))
}

// ParseTimeWindow parses "30d", "6m", "1y" or their long forms
// ("30 days", "6 months", "1 year"). An empty string yields the zero window.
func ParseTimeWindow(s string) (TimeWindow, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TimeWindow{}, nil
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return TimeWindow{}, fmt.Errorf("invalid time window %q: missing amount", s)
	}
	amount, err := strconv.Atoi(s[:i])
	if err != nil {
		return TimeWindow{}, fmt.Errorf("invalid time window %q: %w", s, err)
	}
	if amount <= 0 {
		return TimeWindow{}, fmt.Errorf("invalid time window %q: amount must be positive", s)
	}

	var unit Unit
	switch strings.TrimSpace(s[i:]) {
	case "d", "day", "days":
		unit = Days
	case "m", "month", "months":
		unit = Months
	case "y", "year", "years":
		unit = Years
	default:
		return TimeWindow{}, fmt.Errorf("invalid time window %q: unit must be one of d, m, y", s)
	}

	return TimeWindow{Amount: amount, Unit: unit}, nil
}

// ParseDate parses a calendar date written as YYYY-MM-DD or YYYY/MM/DD.
// An empty string yields the zero time.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.DateOnly, dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
}

// SearchFilter is a Gmail search predicate. The empty filter matches everything.
type SearchFilter string

// String returns the filter as passed to the mail service.
func (f SearchFilter) String() string {
	return string(f)
}

// IsEmpty reports whether the filter imposes no restriction.
func (f SearchFilter) IsEmpty() bool {
	return strings.TrimSpace(string(f)) == ""
}

// Options describes the search intent.
type Options struct {
	// Predicate is a raw Gmail query, used verbatim. When set, Keywords and
	// RequireAttachment are ignored.
	Predicate string

	// Keywords are OR-ed together when no Predicate is given.
	Keywords []string

	// RequireAttachment scopes the keyword search to messages with attachments.
	RequireAttachment bool

	// Window adds a newer_than clause when non-zero.
	Window TimeWindow

	// After and Before add explicit date bounds when non-zero.
	After  time.Time
	Before time.Time
}

// DefaultKeywords is the receipt/invoice vocabulary used when nothing else
// is configured. English and Hebrew terms are included.
var DefaultKeywords = []string{
	"invoice",
	"receipt",
	"tax invoice",
	"bill",
	"payment confirmation",
	"חשבונית",
	"קבלה",
	"חשבונית מס",
}

// DefaultOptions returns the "likely an invoice or receipt" search intent.
func DefaultOptions() Options {
	keywords := make([]string, len(DefaultKeywords))
	copy(keywords, DefaultKeywords)
	return Options{
		Keywords:          keywords,
		RequireAttachment: true,
	}
}

// Build composes opts into a single SearchFilter. It never fails: empty
// options produce the empty filter.
func Build(opts Options) SearchFilter {
	var clauses []string

	if p := strings.TrimSpace(opts.Predicate); p != "" {
		clauses = append(clauses, p)
	} else {
		if opts.RequireAttachment {
			clauses = append(clauses, "has:attachment")
		}
		if kw := keywordClause(opts.Keywords); kw != "" {
			clauses = append(clauses, kw)
		}
	}

	if !opts.Window.IsZero() {
		clauses = append(clauses, "newer_than:"+opts.Window.String())
	}
	if !opts.After.IsZero() {
		clauses = append(clauses, "after:"+opts.After.Format(dateLayout))
	}
	if !opts.Before.IsZero() {
		clauses = append(clauses, "before:"+opts.Before.Format(dateLayout))
	}

	return SearchFilter(strings.Join(clauses, " "))
}

// keywordClause builds "(a OR b OR "c d")". Multi-word terms are quoted.
func keywordClause(keywords []string) string {
	terms := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(strings.ReplaceAll(k, `"`, ""))
		if k == "" {
			continue
		}
		if strings.ContainsAny(k, " \t") {
			k = `"` + k + `"`
		}
		terms = append(terms, k)
	}

	switch len(terms) {
	case 0:
		return ""
	case 1:
		return terms[0]
	default:
		return "(" + strings.Join(terms, " OR ") + ")"
	}
}
