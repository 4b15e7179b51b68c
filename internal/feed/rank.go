package feed

import (
	"sort"
	"strconv"
)

// numericRank returns the rank as an integer when it is made only of ASCII
// digits. Anything else (N/A, EL, WD, signs, blanks) is not a placing.
func numericRank(rank string) (int, bool) {
	if rank == "" {
		return 0, false
	}
	for i := 0; i < len(rank); i++ {
		if rank[i] < '0' || rank[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(rank)
	if err != nil {
		// Digits only but too large for int: still a placing, just last among them.
		return int(^uint(0) >> 1), true
	}
	return n, true
}

// SortCompetitors orders competitors by numeric rank ascending. Unplaced
// competitors follow in their original order.
func SortCompetitors(cs []Competitor) {
	sort.SliceStable(cs, func(i, j int) bool {
		ri, oki := numericRank(cs[i].Rank)
		rj, okj := numericRank(cs[j].Rank)
		switch {
		case oki && okj:
			return ri < rj
		case oki:
			return true
		default:
			return false
		}
	})
}
