package pathengine

import (
	"fmt"

	"slicectl/internal/topology"
	"slicectl/pkg/apperror"
)

// Selection is the outcome of applying least-segmentation to a candidate
// set: the chosen path plus the residual capacity each of its links will
// have left after rate is subtracted, for callers that want to log it.
type Selection struct {
	Path             []string
	MinResidualAfter int
}

// LeastSegmentation implements the "least segmentation" best-fit rule:
// discard every candidate with a link whose residual capacity is below
// rate, then among the survivors pick the one whose tightest remaining
// link (after subtracting rate) is smallest — consolidating onto
// already-busy links rather than spreading load onto idle ones. Ties break
// by pre-allocation path cost, then by lexicographic path order.
func LeastSegmentation(snap *topology.Snapshot, candidates []Candidate, rate int) (Selection, error) {
	type scored struct {
		cand    Candidate
		minLeft int
	}

	var survivors []scored
	for _, c := range candidates {
		fits := true
		minLeft := 1 << 30
		for i := 0; i+1 < len(c.Path); i++ {
			residual, ok := snap.Residual(c.Path[i], c.Path[i+1])
			if !ok || residual < rate {
				fits = false
				break
			}
			if left := residual - rate; left < minLeft {
				minLeft = left
			}
		}
		if !fits {
			continue
		}
		survivors = append(survivors, scored{cand: c, minLeft: minLeft})
	}

	if len(survivors) == 0 {
		return Selection{}, apperror.New(apperror.CodeInsufficientCapacity,
			fmt.Sprintf("no candidate path has residual capacity >= %d on every link", rate))
	}

	best := survivors[0]
	for _, s := range survivors[1:] {
		switch {
		case s.minLeft < best.minLeft:
			best = s
		case s.minLeft == best.minLeft && s.cand.Cost < best.cand.Cost:
			best = s
		case s.minLeft == best.minLeft && s.cand.Cost == best.cand.Cost && lessLex(s.cand.Path, best.cand.Path):
			best = s
		}
	}

	return Selection{Path: best.cand.Path, MinResidualAfter: best.minLeft}, nil
}
