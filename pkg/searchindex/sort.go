package searchindex

import "sort"

// sortByScoreThenID sorts items by descending score, tiebroken by
// ascending id — never by insertion order, so rankings stay
// deterministic across runs.
func sortByScoreThenID[T any](items []T, key func(i int) (float64, string)) {
	sort.SliceStable(items, func(i, j int) bool {
		si, idi := key(i)
		sj, idj := key(j)
		if si != sj {
			return si > sj
		}
		return idi < idj
	})
}
