package cli

import "github.com/agnivade/levenshtein"

// closestName returns the candidate within edit distance 2 of name, or ""
// when nothing is close enough to be a plausible typo.
func closestName(name string, candidates []string) string {
	best, bestDist := "", 3
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
