// Package format turns raw record values into display strings.
package format

import (
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"resolution-dashboard/models"
)

const (
	TimeLayout = "2006-01-02 15:04:05 UTC"
	Missing    = "—"
)

// Timestamp renders seconds since epoch in UTC.
func Timestamp(ts models.Timestamp) string {
	if ts.IsZero() {
		return Missing
	}
	return ts.Time().Format(TimeLayout)
}

// RelativeTime renders ts relative to now, e.g. "3 hours ago".
func RelativeTime(ts models.Timestamp, now time.Time) string {
	if ts.IsZero() {
		return Missing
	}
	return humanize.RelTime(ts.Time(), now, "ago", "from now")
}

// Tags joins tags for table cells.
func Tags(tags []string) string {
	if len(tags) == 0 {
		return Missing
	}
	return strings.Join(tags, ", ")
}

// TagBadges renders tags as escaped badge spans.
func TagBadges(tags []string) template.HTML {
	if len(tags) == 0 {
		return template.HTML(Missing)
	}
	var b strings.Builder
	for i, t := range tags {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, `<span class="badge tag">%s</span>`, template.HTMLEscapeString(t))
	}
	return template.HTML(b.String())
}

// ShortHash shortens a hex hash to its first 10 and last 8 characters.
func ShortHash(h string) string {
	return shorten(h, 10, 8)
}

// ShortAddress shortens an address to 0x1234…abcd.
func ShortAddress(a string) string {
	return shorten(a, 6, 4)
}

func shorten(s string, head, tail int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Missing
	}
	if len(s) <= head+tail+1 {
		return s
	}
	return s[:head] + "…" + s[len(s)-tail:]
}

// Bond converts a raw integer amount with the given decimals into a
// human-readable value, e.g. "500000000" with 6 decimals is "500".
func Bond(raw models.Scalar, decimals int32) string {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return Missing
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	return d.Shift(-decimals).StringFixedBank(2)
}

// Outcome labels a recommendation or resolution.
func Outcome(o string) string {
	switch strings.ToLower(strings.TrimSpace(o)) {
	case "":
		return Missing
	case "p1":
		return "P1 (No)"
	case "p2":
		return "P2 (Yes)"
	case "p3":
		return "P3 (50-50)"
	case "p4":
		return "P4 (Too early)"
	}
	return o
}

// Correctness renders the tri-state correctness of a record.
func Correctness(c *bool) string {
	switch {
	case c == nil:
		return "Unresolved"
	case *c:
		return "Correct"
	}
	return "Incorrect"
}

func Bool(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// Percent renders a percentage with one decimal.
func Percent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

// Truncate cuts s to n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// Nested renders a nested bag as indented "key: value" lines with sorted keys.
func Nested(v any) string {
	var b strings.Builder
	writeNested(&b, v, 0)
	return strings.TrimRight(b.String(), "\n")
}

func writeNested(b *strings.Builder, v any, depth int) {
	indent := strings.Repeat("  ", depth)
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch child := val[k].(type) {
			case map[string]any, []any:
				fmt.Fprintf(b, "%s%s:\n", indent, k)
				writeNested(b, child, depth+1)
			default:
				fmt.Fprintf(b, "%s%s: %s\n", indent, k, scalarText(child))
			}
		}
	case []any:
		for _, item := range val {
			switch child := item.(type) {
			case map[string]any, []any:
				fmt.Fprintf(b, "%s-\n", indent)
				writeNested(b, child, depth+1)
			default:
				fmt.Fprintf(b, "%s- %s\n", indent, scalarText(child))
			}
		}
	default:
		fmt.Fprintf(b, "%s%s\n", indent, scalarText(val))
	}
}

func scalarText(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case float64:
		return decimal.NewFromFloat(val).String()
	case json.Number:
		return val.String()
	}
	return fmt.Sprint(v)
}

// NestedJSON decodes a struct into a generic bag and renders it with Nested.
func NestedJSON(v any) string {
	if v == nil {
		return Missing
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Missing
	}
	var bag any
	if err := json.Unmarshal(data, &bag); err != nil || bag == nil {
		return Missing
	}
	return Nested(bag)
}

// PrettyJSON indents raw JSON for the raw-data section.
func PrettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// FuncMap exposes the formatters to html/template.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"fmtTime":      Timestamp,
		"fmtRelative":  func(ts models.Timestamp) string { return RelativeTime(ts, time.Now()) },
		"fmtTags":      Tags,
		"tagBadges":    TagBadges,
		"shortHash":    ShortHash,
		"shortAddress": ShortAddress,
		"outcome":      Outcome,
		"percent":      Percent,
		"truncate":     Truncate,
		"add":          func(a, b int) int { return a + b },
	}
}
