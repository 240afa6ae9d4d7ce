package detect

import "strings"

// lexiconEntry pairs a scam category with its trigger keywords. Entries are
// evaluated in order; the first category with any hit wins.
type lexiconEntry struct {
	Category string
	Keywords []string
}

var scamLexicon = []lexiconEntry{
	{"Financial", []string{
		"kyc", "pan card", "block", "suspend", "debit card", "credit card",
		"reward points", "redeem", "otp", "one time password", "verify", "verification",
	}},
	{"Urgency", []string{
		"immediately", "urgent", "24 hours", "today only", "legal action",
		"arrest", "police", "cbi", "illegal",
	}},
	{"Tech Support", []string{
		"apk", "teamviewer", "anydesk", "quicksupport", "screen share", "remote access",
	}},
	{"Utilities", []string{
		"electricity", "power", "bill", "disconnect", "connection",
	}},
	{"Money", []string{
		"lottery", "winner", "refund", "cashback", "prize", "upi", "pay",
	}},
}

// injectionPhrases flag attempts to manipulate the persona rather than run a
// scam: instructions to drop the role, reveal internals, or impersonate
// another system.
var injectionPhrases = []string{
	"ignore all",
	"ignore previous",
	"ignore your",
	"previous instructions",
	"disregard",
	"system prompt",
	"reveal your",
	"your instructions",
	"your programming",
	"you are an ai",
	"act as a",
	"act as the",
	"jailbreak",
	"openai",
	"chatgpt",
	"gemini",
}

// MatchLexicon scans text case-insensitively against the category keyword
// lists and returns the first category with a hit.
func MatchLexicon(text string) (bool, string) {
	lower := strings.ToLower(text)
	for _, entry := range scamLexicon {
		for _, kw := range entry.Keywords {
			if strings.Contains(lower, kw) {
				return true, entry.Category
			}
		}
	}
	return false, "Safe"
}

// IsInjection reports whether text contains known prompt-manipulation
// phrasing. Callers must short-circuit to a canned reply without running
// classification or the responder.
func IsInjection(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range injectionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
