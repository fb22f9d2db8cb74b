package dispatch

import "strings"

// minPrefixLen is the shortest token allowed to match by prefix. Shorter
// tokens must match exactly, which keeps fragments like "id" from matching
// unrelated capabilities.
const minPrefixLen = 4

// tokenize splits a task type or capability tag into lower-case word tokens.
// Hyphens, underscores, dots, and spaces all delimit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		switch r {
		case '-', '_', '.', ' ', '/':
			return true
		}
		return false
	})
}

// tokensMatch reports whether two tokens refer to the same concept: either
// exact equality, or one is a prefix of the other and the shorter token is at
// least minPrefixLen runes. The prefix rule lets "pattern" cover "patterns"
// without letting "id" cover "video".
func tokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < minPrefixLen {
		return false
	}
	return strings.HasPrefix(longer, shorter)
}

// capabilityMatches reports whether a capability tag covers a task type.
// Both sides are tokenized; a single token-level match is enough, so a small
// agent pool can cover many task-type variants without an exact taxonomy.
func capabilityMatches(capability, taskType string) bool {
	taskTokens := tokenize(taskType)
	for _, capToken := range tokenize(capability) {
		for _, taskToken := range taskTokens {
			if tokensMatch(capToken, taskToken) {
				return true
			}
		}
	}
	return false
}

// agentMatches reports whether any of the agent's capability tags covers
// the task type
func agentMatches(capabilities []string, taskType string) bool {
	for _, capability := range capabilities {
		if capabilityMatches(capability, taskType) {
			return true
		}
	}
	return false
}
