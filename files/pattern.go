package files

import (
	"strconv"
	"strings"
	"time"
)

// Pattern is an output path that may contain {iteration}, {id}, {entity},
// {substance} and {datetime} tokens.
type Pattern string

// Vars holds the values substituted into a Pattern. Empty string fields leave
// their token untouched, except Datetime which is always available.
type Vars struct {
	Iteration *int
	ID        *int
	Entity    string
	Substance string
	Datetime  string
}

// Expand substitutes all known tokens.
func (p Pattern) Expand(v Vars) string {
	pairs := make([]string, 0, 10)
	if v.Iteration != nil {
		pairs = append(pairs, "{iteration}", strconv.Itoa(*v.Iteration))
	}
	if v.ID != nil {
		pairs = append(pairs, "{id}", strconv.Itoa(*v.ID))
	}
	if v.Entity != "" {
		pairs = append(pairs, "{entity}", v.Entity)
	}
	if v.Substance != "" {
		pairs = append(pairs, "{substance}", v.Substance)
	}
	pairs = append(pairs, "{datetime}", v.Datetime)
	return strings.NewReplacer(pairs...).Replace(string(p))
}

// Timestamp formats t as RFC 3339 with colons replaced, which keeps it usable
// as a path component on every filesystem.
func Timestamp(t time.Time) string {
	return strings.ReplaceAll(t.Format(time.RFC3339), ":", "_")
}
