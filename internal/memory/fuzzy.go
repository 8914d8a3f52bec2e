package memory

// similarityRatio returns a [0,1] similarity between two strings: twice the
// length of their longest common subsequence over the total length. Equal
// strings score 1.0, disjoint strings 0.0.
func similarityRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	ra := []rune(a)
	rb := []rune(b)

	// Single-row LCS table.
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}

	lcs := prev[len(rb)]
	return 2.0 * float64(lcs) / float64(len(ra)+len(rb))
}
