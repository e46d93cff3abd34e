package service

import (
	"strings"
	"unicode/utf8"
)

// softFloorRatio is the fraction of the character limit below which a
// natural break point is not accepted.
const softFloorRatio = 0.55

var sentenceEnders = []string{". ", "! ", "? "}

// SplitChain cuts text into at most maxParts parts of at most limit
// characters each, preferring natural break points (newline, sentence
// end, space) at or after the soft floor over exact-limit packing.
// Limits are measured in runes, so a hard cut never lands inside a
// multibyte character. Text within the limit comes back as a single
// trimmed part.
func SplitChain(text string, limit, maxParts int) ([]string, error) {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return []string{string(runes)}, nil
	}

	floor := int(float64(limit) * softFloorRatio)

	var parts []string
	remaining := runes
	for len(remaining) > limit {
		if len(parts) == maxParts-1 {
			break
		}

		window := string(remaining[:limit+1])
		cut := -1

		if idx := strings.LastIndex(window, "\n"); idx >= 0 {
			if r := utf8.RuneCountInString(window[:idx]); r >= floor {
				cut = r
			}
		}
		if cut < 0 {
			for _, end := range sentenceEnders {
				idx := strings.LastIndex(window, end)
				if idx < 0 {
					continue
				}
				if r := utf8.RuneCountInString(window[:idx]); r >= floor && r+1 > cut {
					cut = r + 1
				}
			}
		}
		if cut < 0 {
			if idx := strings.LastIndex(window, " "); idx >= 0 {
				if r := utf8.RuneCountInString(window[:idx]); r >= floor {
					cut = r
				}
			}
		}
		if cut < 0 {
			cut = limit
		}

		parts = append(parts, strings.TrimSpace(string(remaining[:cut])))
		remaining = []rune(strings.TrimSpace(string(remaining[cut:])))
	}

	if len(remaining) > 0 {
		parts = append(parts, string(remaining))
	}

	if len(parts) > maxParts {
		return nil, ErrChainTooLong
	}
	for _, p := range parts {
		if utf8.RuneCountInString(p) > limit {
			return nil, ErrChainTooLong
		}
	}
	return parts, nil
}
