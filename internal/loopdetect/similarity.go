package loopdetect

// similarity returns a ratio in [0, 1] based on the longest common
// subsequence of the two strings: 2*LCS / (len(a)+len(b)). Identical
// strings score 1, disjoint strings 0.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	ra, rb := []rune(a), []rune(b)

	// Two-row DP keeps memory linear in the shorter string.
	if len(rb) > len(ra) {
		ra, rb = rb, ra
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}
