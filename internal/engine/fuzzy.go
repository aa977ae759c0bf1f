package engine

import "strings"

// fuzzyMatch reports whether query fuzzy-matches target: an exact substring
// match, or a Levenshtein distance under a threshold scaled to query length,
// checked against each delimiter-separated word of target. Used as Attach's
// fallback candidate source when the Vector Store's hybrid search comes back
// empty or errors, so a query still resolves against names already known to
// the tool cache.
func fuzzyMatch(query, target string) bool {
	if query == "" {
		return true
	}

	queryLower := strings.ToLower(query)
	targetLower := strings.ToLower(target)

	if strings.Contains(targetLower, queryLower) {
		return true
	}

	maxDistance := len(queryLower) / 3
	if maxDistance < 1 {
		maxDistance = 1
	}
	if maxDistance > 3 {
		maxDistance = 3
	}

	words := strings.FieldsFunc(targetLower, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	})

	for _, word := range words {
		if levenshteinDistance(queryLower, word) <= maxDistance {
			return true
		}
	}

	return false
}

func levenshteinDistance(s1, s2 string) int {
	len1, len2 := len(s1), len(s2)

	matrix := make([][]int, len1+1)
	for i := range matrix {
		matrix[i] = make([]int, len2+1)
	}
	for i := 0; i <= len1; i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len2; j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len1; i++ {
		for j := 1; j <= len2; j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			matrix[i][j] = minInt(
				matrix[i-1][j]+1,
				matrix[i][j-1]+1,
				matrix[i-1][j-1]+cost,
			)
		}
	}

	return matrix[len1][len2]
}

func minInt(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}
