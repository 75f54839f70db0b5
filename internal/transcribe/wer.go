package transcribe

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// WERResult is the word-level alignment of a transcript against a reference.
type WERResult struct {
	WER           float64 // (S + I + D) / RefWords; 0 is a perfect match
	Substitutions int
	Insertions    int
	Deletions     int
	RefWords      int
}

// Accuracy returns 1 - WER, floored at zero.
func (r WERResult) Accuracy() float64 {
	return max(0, 1-r.WER)
}

func (r WERResult) String() string {
	return fmt.Sprintf("WER %.2f%% (S=%d I=%d D=%d, %d reference words)",
		r.WER*100, r.Substitutions, r.Insertions, r.Deletions, r.RefWords)
}

// ComputeWER aligns hypothesis against reference by minimum edit distance
// over words. Both sides go through werTokens first, so casing, punctuation
// and the contraction repairs made by Clean do not count as errors.
func ComputeWER(reference, hypothesis string) WERResult {
	ref := werTokens(reference)
	hyp := werTokens(hypothesis)
	if len(ref) == 0 {
		return WERResult{}
	}

	cost := editTable(ref, hyp)
	res := WERResult{RefWords: len(ref)}

	i, j := len(ref), len(hyp)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && ref[i-1] == hyp[j-1]:
			i, j = i-1, j-1
		case i > 0 && j > 0 && cost[i][j] == cost[i-1][j-1]+1:
			res.Substitutions++
			i, j = i-1, j-1
		case i > 0 && cost[i][j] == cost[i-1][j]+1:
			res.Deletions++
			i--
		default:
			res.Insertions++
			j--
		}
	}

	res.WER = float64(res.Substitutions+res.Insertions+res.Deletions) / float64(res.RefWords)
	return res
}

// editTable returns the Levenshtein cost matrix; cost[i][j] is the distance
// between ref[:i] and hyp[:j].
func editTable(ref, hyp []string) [][]int {
	cost := make([][]int, len(ref)+1)
	for i := range cost {
		cost[i] = make([]int, len(hyp)+1)
		cost[i][0] = i
	}
	for j := range cost[0] {
		cost[0][j] = j
	}

	for i := 1; i <= len(ref); i++ {
		for j := 1; j <= len(hyp); j++ {
			if ref[i-1] == hyp[j-1] {
				cost[i][j] = cost[i-1][j-1]
				continue
			}
			cost[i][j] = 1 + min(cost[i-1][j-1], cost[i-1][j], cost[i][j-1])
		}
	}
	return cost
}

// werTokens lowercases s in NFC form, drops punctuation (apostrophes too, so
// "don't" and "dont" compare equal) and splits on whitespace.
func werTokens(s string) []string {
	s = strings.ToLower(norm.NFC.String(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, s)
	return strings.Fields(s)
}
