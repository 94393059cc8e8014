package query

import (
	"strings"
	"testing"
	"time"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want SearchFilter
	}{
		{
			name: "empty options means no filtering",
			opts: Options{},
			want: "",
		},
		{
			name: "predicate used verbatim",
			opts: Options{Predicate: "  from:billing@example.com  "},
			want: "from:billing@example.com",
		},
		{
			name: "predicate wins over keywords",
			opts: Options{Predicate: "label:finance", Keywords: []string{"invoice"}},
			want: "label:finance",
		},
		{
			name: "predicate is not scoped to attachments",
			opts: Options{
				Predicate:         "from:billing@example.com",
				Keywords:          []string{"invoice"},
				RequireAttachment: true,
				Window:            TimeWindow{Amount: 30, Unit: Days},
			},
			want: "from:billing@example.com newer_than:30d",
		},
		{
			name: "single keyword has no parentheses",
			opts: Options{Keywords: []string{"invoice"}},
			want: "invoice",
		},
		{
			name: "keywords are OR-ed and multi-word terms quoted",
			opts: Options{Keywords: []string{"invoice", "tax invoice", " ", `re"ceipt`}},
			want: `(invoice OR "tax invoice" OR receipt)`,
		},
		{
			name: "attachment scope and window",
			opts: Options{
				Keywords:          []string{"invoice", "receipt"},
				RequireAttachment: true,
				Window:            TimeWindow{Amount: 30, Unit: Days},
			},
			want: "has:attachment (invoice OR receipt) newer_than:30d",
		},
		{
			name: "window without predicate",
			opts: Options{Window: TimeWindow{Amount: 1, Unit: Years}},
			want: "newer_than:1y",
		},
		{
			name: "explicit date bounds",
			opts: Options{
				Predicate: "invoice",
				After:     time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
				Before:    time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
			},
			want: "invoice after:2024/01/02 before:2024/12/31",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Build(tt.opts); got != tt.want {
				t.Errorf("Build() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuild_DefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Window = TimeWindow{Amount: 6, Unit: Months}

	got := Build(opts).String()

	if !strings.HasPrefix(got, "has:attachment (") {
		t.Errorf("default filter should be scoped to attachments, got %q", got)
	}
	if !strings.HasSuffix(got, " newer_than:6m") {
		t.Errorf("default filter should end with the recency clause, got %q", got)
	}
	for _, kw := range []string{"invoice", "receipt", `"tax invoice"`, "חשבונית"} {
		if !strings.Contains(got, kw) {
			t.Errorf("default filter missing keyword %s: %q", kw, got)
		}
	}
}

func TestDefaultOptions_ReturnsCopy(t *testing.T) {
	opts := DefaultOptions()
	opts.Keywords[0] = "changed"

	if DefaultKeywords[0] == "changed" {
		t.Error("DefaultOptions() must not alias DefaultKeywords")
	}
}

func TestSearchFilter_IsEmpty(t *testing.T) {
	if !SearchFilter("").IsEmpty() {
		t.Error("empty filter should be empty")
	}
	if !SearchFilter("   ").IsEmpty() {
		t.Error("whitespace filter should be empty")
	}
	if SearchFilter("invoice").IsEmpty() {
		t.Error("non-empty filter reported empty")
	}
}

func TestParseTimeWindow(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeWindow
		wantErr bool
	}{
		{input: "", want: TimeWindow{}},
		{input: "30d", want: TimeWindow{Amount: 30, Unit: Days}},
		{input: "5m", want: TimeWindow{Amount: 5, Unit: Months}},
		{input: "1y", want: TimeWindow{Amount: 1, Unit: Years}},
		{input: " 2 Years ", want: TimeWindow{Amount: 2, Unit: Years}},
		{input: "14 days", want: TimeWindow{Amount: 14, Unit: Days}},
		{input: "d", wantErr: true},
		{input: "0d", wantErr: true},
		{input: "10w", wantErr: true},
		{input: "10", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeWindow(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimeWindow(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTimeWindow(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestTimeWindow_String(t *testing.T) {
	tests := []struct {
		window TimeWindow
		want   string
	}{
		{TimeWindow{}, ""},
		{TimeWindow{Amount: 30, Unit: Days}, "30d"},
		{TimeWindow{Amount: 3, Unit: Months}, "3m"},
		{TimeWindow{Amount: 7}, "7d"},
	}

	for _, tt := range tests {
		if got := tt.window.String(); got != tt.want {
			t.Errorf("%+v.String() = %q, want %q", tt.window, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{"2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{"2026/03/01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{" 2026-12-31 ", time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), false},
		{"01.03.2026", time.Time{}, true},
		{"yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
