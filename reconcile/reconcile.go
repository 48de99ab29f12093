// Package reconcile collapses multiple runs of the same query into one
// canonical record per query.
package reconcile

import (
	"regexp"
	"sort"
	"strconv"

	"resolution-dashboard/models"
)

var runPattern = regexp.MustCompile(`_run-(\d+)`)

type member struct {
	rec   *models.Record
	order int
}

// Reconcile groups records by logical id and returns one canonical record per
// group, in order of first appearance. The canonical record is the one with
// the highest run number, ties going to the latest timestamp. Every canonical
// record gets AllRuns (the whole group, ascending by run) and RunCount.
//
// Reconciling an already reconciled set returns the same records with the
// same runs.
func Reconcile(records []*models.Record) []*models.Record {
	groups := map[string][]member{}
	var keys []string
	seen := map[*models.Record]bool{}
	order := 0

	add := func(key string, r *models.Record) {
		if seen[r] {
			return
		}
		seen[r] = true
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], member{rec: r, order: order})
		order++
	}

	for i, r := range records {
		if r == nil {
			continue
		}
		key := r.LogicalID()
		if key == "" {
			// records without any id are never merged
			key = "\x00" + strconv.Itoa(i)
		}
		// previously reconciled runs keep their relative order
		for _, sibling := range r.AllRuns {
			if sibling != nil {
				add(key, sibling)
			}
		}
		add(key, r)
	}

	out := make([]*models.Record, 0, len(keys))
	for _, key := range keys {
		out = append(out, reconcileGroup(groups[key]))
	}
	return out
}

func reconcileGroup(group []member) *models.Record {
	assignRuns(group)

	runs := make([]member, len(group))
	copy(runs, group)
	sort.SliceStable(runs, func(i, j int) bool {
		return compareRuns(runs[i], runs[j]) < 0
	})

	canonical := runs[len(runs)-1].rec
	all := make([]*models.Record, len(runs))
	for i, m := range runs {
		all[i] = m.rec
	}
	canonical.AllRuns = all
	canonical.RunCount = len(all)
	return canonical
}

// compareRuns orders by run number, then timestamp, then file name, and
// finally by position so the record seen last wins a full tie.
func compareRuns(a, b member) int {
	if a.rec.Run != b.rec.Run {
		return cmpInt(a.rec.Run, b.rec.Run)
	}
	ta, tb := a.rec.Timestamp(), b.rec.Timestamp()
	if ta != tb {
		if ta < tb {
			return -1
		}
		return 1
	}
	fa, fb := a.rec.FileName(), b.rec.FileName()
	if fa != fb {
		if fa < fb {
			return -1
		}
		return 1
	}
	return cmpInt(a.order, b.order)
}

// assignRuns sets Run on every member: explicit run_iteration, then the
// _run-N marker in the file name, then chronological rank within the group,
// then 1.
func assignRuns(group []member) {
	for _, m := range group {
		ts := m.rec.Timestamp()
		rank := 0
		if !ts.IsZero() {
			// equal timestamps share a rank
			rank = 1
			for _, other := range group {
				if ot := other.rec.Timestamp(); !ot.IsZero() && ot < ts {
					rank++
				}
			}
		}
		m.rec.Run = RunNumber(m.rec, rank)
	}
}

// RunNumber resolves the run number of a single record. chronoRank is the
// record's 1-based chronological position in its group, or 0 if unknown.
func RunNumber(r *models.Record, chronoRank int) int {
	if r.RunIteration.Valid && r.RunIteration.N > 0 {
		return r.RunIteration.N
	}
	if n, ok := runFromFilename(r); ok {
		return n
	}
	if chronoRank > 0 {
		return chronoRank
	}
	return 1
}

func runFromFilename(r *models.Record) (int, bool) {
	names := []string{r.FileName()}
	if r.ProposalMetadata != nil {
		names = append(names, r.ProposalMetadata.Filename)
	}
	for _, name := range names {
		if m := runPattern.FindStringSubmatch(name); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
