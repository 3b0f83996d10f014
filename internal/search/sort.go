package search

import "sort"

// SortResults sorts results by score (descending), then by chunk ID (ascending).
func SortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ChunkID < results[j].ChunkID
		}
		return results[i].Score > results[j].Score
	})
}
