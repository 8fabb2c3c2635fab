// Package mention implements the pure text-analysis routing used by
// meetings: it maps free text containing "@name" markers to the ordered set
// of participants that should respond.
package mention

import (
	"regexp"
	"strings"

	"github.com/hupe1980/crmflow/core"
)

// tokenRe captures the word following an '@' marker. Matching against the
// roster is case-insensitive.
var tokenRe = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)

// groupAliases address every participant at once.
var groupAliases = map[string]bool{
	"all":      true,
	"everyone": true,
	"team":     true,
}

// minNameWordLen filters out connective words ("of", "&") when matching
// against participant display names.
const minNameWordLen = 3

// Parse extracts @mentions from text and resolves them against the roster.
//
// Resolution rules:
//   - A token matches a participant by ID or by a significant word of its
//     display name, case-insensitively.
//   - @all, @everyone and @team expand to the whole roster.
//   - The result is ordered by the roster's canonical order, not by order of
//     appearance in the text, and duplicates collapse to one entry.
//
// Parse returns nil (not an empty slice) when the text contains no
// recognizable mention, so callers can distinguish "no mention" from
// "mentioned but filtered to empty".
func Parse(text string, roster []core.Participant) []string {
	matches := tokenRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	mentioned := map[string]bool{}
	for _, m := range matches {
		token := strings.ToLower(m[1])
		if groupAliases[token] {
			for _, p := range roster {
				mentioned[p.ID] = true
			}
			continue
		}
		for _, p := range roster {
			if matchesParticipant(token, p) {
				mentioned[p.ID] = true
			}
		}
	}
	if len(mentioned) == 0 {
		return nil
	}

	// Canonical order is the roster order.
	out := make([]string, 0, len(mentioned))
	for _, p := range roster {
		if mentioned[p.ID] {
			out = append(out, p.ID)
		}
	}
	return out
}

func matchesParticipant(token string, p core.Participant) bool {
	if token == strings.ToLower(p.ID) {
		return true
	}
	for _, word := range strings.Fields(p.Name) {
		word = strings.ToLower(strings.Trim(word, ".,!?"))
		if len(word) >= minNameWordLen && word == token {
			return true
		}
	}
	return false
}
