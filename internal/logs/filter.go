package logs

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Filter selects JSON log records. Zero fields match everything. Lines that
// are not JSON only pass an empty filter.
type Filter struct {
	RunID     string
	Component string
	MinLevel  string
}

var levelRank = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

func (f Filter) empty() bool {
	return f.RunID == "" && f.Component == "" && f.MinLevel == ""
}

// Match reports whether line passes the filter. Run ids match by prefix so
// the short form shown by `docintake history` works.
func (f Filter) Match(line string) bool {
	if f.empty() {
		return true
	}
	if !gjson.Valid(line) {
		return false
	}
	fields := gjson.GetMany(line, "run_id", "component", "level")
	if f.RunID != "" && !strings.HasPrefix(fields[0].String(), f.RunID) {
		return false
	}
	if f.Component != "" && !strings.EqualFold(fields[1].String(), f.Component) {
		return false
	}
	if f.MinLevel != "" {
		want, ok := levelRank[strings.ToUpper(f.MinLevel)]
		got, known := levelRank[strings.ToUpper(fields[2].String())]
		if ok && known && got < want {
			return false
		}
	}
	return true
}

// Apply returns the lines that match.
func (f Filter) Apply(lines []string) []string {
	if f.empty() {
		return lines
	}
	out := lines[:0:0]
	for _, line := range lines {
		if f.Match(line) {
			out = append(out, line)
		}
	}
	return out
}

// Format renders a JSON record as "ts LEVEL component: msg key=value ...".
// Non-JSON lines are returned unchanged.
func Format(line string) string {
	if !gjson.Valid(line) {
		return line
	}
	doc := gjson.Parse(line)
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s", doc.Get("ts").String(), doc.Get("level").String())
	if component := doc.Get("component").String(); component != "" {
		b.WriteString(" " + component + ":")
	}
	b.WriteString(" " + doc.Get("msg").String())
	doc.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "ts", "level", "msg", "component", "source":
			return true
		}
		fmt.Fprintf(&b, " %s=%s", key.String(), value.String())
		return true
	})
	return b.String()
}
