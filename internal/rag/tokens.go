package rag

import (
	"unicode"
)

// TokenCounter reports how many tokenizer units a text occupies. The counter
// must be deterministic: the same text always yields the same count, so the
// same text always yields the same chunk boundaries.
type TokenCounter interface {
	CountTokens(text string) int
}

// Estimator is the default TokenCounter. It approximates a BPE tokenizer
// locally instead of shelling out to a provider: each run of letters or
// digits counts as one token per four runes (rounded up), and every other
// non-space rune counts as one token. The estimate runs a little high for
// English prose, which errs on the safe side of the embedding limit.
type Estimator struct{}

func (Estimator) CountTokens(text string) int {
	tokens := 0
	run := 0
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			run++
		case unicode.IsSpace(r):
			tokens += tokensInRun(run)
			run = 0
		default:
			tokens += tokensInRun(run) + 1
			run = 0
		}
	}
	return tokens + tokensInRun(run)
}

func tokensInRun(n int) int {
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
