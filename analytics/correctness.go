// Package analytics scores result records against resolved market outcomes
// and aggregates accuracy statistics.
package analytics

import (
	"strings"

	"resolution-dashboard/models"
)

// Outcome labels.
const (
	P1 = "p1"
	P2 = "p2"
	P3 = "p3"
	P4 = "p4"
)

// Numeric resolution values that p1/p2 map onto. These mappings and the
// p3/p4 catch-all below are business policy.
var numericEquivalent = map[string]string{
	P1: "1",
	P2: "0",
}

// binaryOutcomes are the resolutions that are not the "other" bucket.
var binaryOutcomes = map[string]bool{"0": true, "1": true, P1: true, P2: true}

// Correctness is the tri-state result of scoring a record.
type Correctness int

const (
	Unresolved Correctness = iota
	Incorrect
	Correct
)

func (c Correctness) String() string {
	switch c {
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	}
	return "unresolved"
}

// IsCorrect reports whether the record's recommendation matches its resolved
// outcome. It returns nil when the market is not resolved.
func IsCorrect(r *models.Record) *bool {
	res, ok := r.Resolution()
	if !ok {
		return nil
	}
	v := matches(normalize(r.Recommendation()), normalize(res))
	return &v
}

// Classify is IsCorrect folded into a Correctness value.
func Classify(r *models.Record) Correctness {
	c := IsCorrect(r)
	switch {
	case c == nil:
		return Unresolved
	case *c:
		return Correct
	}
	return Incorrect
}

func matches(rec, res string) bool {
	if rec == "" {
		return false
	}
	if rec == res {
		return true
	}
	if numericEquivalent[rec] == res || numericEquivalent[res] == rec {
		return true
	}
	if rec == P3 || rec == P4 {
		return !binaryOutcomes[res]
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
