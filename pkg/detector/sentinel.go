package detector

import "strings"

// sentinelPunct are the characters that may cling to a sentinel token without
// breaking the match: terminal punctuation and common markdown wrappers.
const sentinelPunct = ".,!?:;\"'()[]{}*_`"

// Sentinels holds the marker tokens the remote agent is instructed to emit:
// Done on its own when the answer is finished, Error when it cannot answer.
type Sentinels struct {
	Done  string
	Error string
}

// DefaultSentinels returns the tokens used in the standard prompt suffix.
func DefaultSentinels() Sentinels {
	return Sentinels{Done: "END", Error: "ERROR"}
}

// IsComplete reports whether text contains the completion sentinel as a
// standalone token. The token must be bounded by whitespace, line boundaries,
// or punctuation; a substring of a longer word (e.g. "APPEND") never matches.
func (s Sentinels) IsComplete(text string) bool {
	return containsToken(text, s.Done)
}

// IsError reports whether text contains the error sentinel as a standalone
// token.
func (s Sentinels) IsError(text string) bool {
	return containsToken(text, s.Error)
}

// Strip removes every standalone occurrence of the completion sentinel from
// text. Lines that carried only the sentinel are dropped; all other content
// is preserved. Stripping twice equals stripping once.
func (s Sentinels) Strip(text string) string {
	if !containsToken(text, s.Done) {
		return strings.TrimSpace(text)
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if !containsToken(line, s.Done) {
			out = append(out, line)
			continue
		}

		fields := strings.Fields(line)
		kept := make([]string, 0, len(fields))
		for _, field := range fields {
			if strings.Trim(field, sentinelPunct) != s.Done {
				kept = append(kept, field)
			}
		}
		if len(kept) == 0 {
			// The whole line was the sentinel.
			continue
		}
		out = append(out, strings.Join(kept, " "))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// containsToken reports whether token appears in text as a whole
// whitespace-delimited word, allowing clinging punctuation.
func containsToken(text, token string) bool {
	if token == "" {
		return false
	}
	for _, field := range strings.Fields(text) {
		if field == token {
			return true
		}
		if strings.Trim(field, sentinelPunct) == token {
			return true
		}
	}
	return false
}
