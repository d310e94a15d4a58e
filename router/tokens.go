package router

import (
	"strconv"
	"strings"

	"github.com/shivam-kaushik/co-investigator/checkpoint"
)

// executionTokens are exact utterances that mean "run the next step".
var executionTokens = map[string]struct{}{
	"yes":      {},
	"y":        {},
	"ok":       {},
	"okay":     {},
	"continue": {},
	"proceed":  {},
	"go ahead": {},
	"go on":    {},
	"next":     {},
	"run it":   {},
	"do it":    {},
	"sure":     {},
}

// exitTokens close a follow-up conversation.
var exitTokens = map[string]struct{}{
	"exit":   {},
	"done":   {},
	"quit":   {},
	"stop":   {},
	"bye":    {},
	"end":    {},
	"finish": {},
}

// questionPrefixes are leading interrogatives. A turn starting with one
// of these is a question even when it also contains an execution token.
var questionPrefixes = []string{
	"what", "why", "how", "which", "who", "when", "where",
	"explain", "tell me",
}

func isExecutionToken(s string) bool {
	_, ok := executionTokens[s]
	return ok
}

func isExitToken(s string) bool {
	_, ok := exitTokens[s]
	return ok
}

// isQuestion reports whether the normalized input reads as a question:
// a trailing question mark or a leading interrogative word.
func isQuestion(s string) bool {
	if strings.HasSuffix(s, "?") {
		return true
	}
	for _, prefix := range questionPrefixes {
		if s == prefix {
			return true
		}
		if strings.HasPrefix(s, prefix) {
			rest := s[len(prefix):]
			if strings.HasPrefix(rest, " ") || strings.HasPrefix(rest, "'") ||
				strings.HasPrefix(rest, ",") {
				return true
			}
		}
	}
	return false
}

// matchOption matches the normalized input against a pending
// checkpoint's options: an exact label, a bare ordinal ("2"), or
// "option 2". Returns nil when nothing matches.
func matchOption(cp *checkpoint.Checkpoint, s string) *checkpoint.Option {
	if cp == nil {
		return nil
	}

	for i := range cp.Options {
		if strings.EqualFold(strings.TrimSpace(cp.Options[i].Label), s) {
			return &cp.Options[i]
		}
	}

	ordinal := s
	if rest, ok := strings.CutPrefix(s, "option "); ok {
		ordinal = rest
	}
	if n, err := strconv.Atoi(ordinal); err == nil && n >= 1 && n <= len(cp.Options) {
		return &cp.Options[n-1]
	}

	return nil
}
