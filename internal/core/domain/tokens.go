package domain

import (
	"math"
	"unicode"
)

// EstimateTokens approximates token usage by language mix: CJK runes at
// 1.5 chars/token, Latin letters and digits at 4, everything else at 2.
func EstimateTokens(s string) int {
	var cjk, latin, other int
	for _, r := range s {
		switch {
		case isCJK(r):
			cjk++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			latin++
		default:
			other++
		}
	}
	est := float64(cjk)/1.5 + float64(latin)/4.0 + float64(other)/2.0
	return int(math.Ceil(est))
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hangul, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r)
}
