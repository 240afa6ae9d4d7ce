package intel

import (
	"regexp"
	"strings"

	"honeypot-agent/internal/models"
)

var (
	linkRe  = regexp.MustCompile(`https?://[^\s<>"']+`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	upiRe   = regexp.MustCompile(`\b[a-zA-Z0-9._-]{2,256}@[a-zA-Z]{2,64}\b`)
	panRe   = regexp.MustCompile(`\b[A-Z]{5}[0-9]{4}[A-Z]\b`)

	caseRe   = regexp.MustCompile(`(?i)\b(?:case|complaint|fir|ticket)\s*(?:id|no|number|#)?[\s:#.-]*([A-Z]{0,5}[-/]?\d[A-Z0-9/-]{3,19})`)
	policyRe = regexp.MustCompile(`(?i)\bpolicy\s*(?:id|no|number|#)?[\s:#.-]*([A-Z0-9][A-Z0-9/-]{4,19})`)
	orderRe  = regexp.MustCompile(`(?i)\border\s*(?:id|no|number|#)?[\s:#.-]*([A-Z0-9][A-Z0-9/-]{3,19})`)

	// Separators scammers use to break up digit sequences.
	separatorRe = regexp.MustCompile(`[\s-]`)
	digitRunRe  = regexp.MustCompile(`\+?\d+`)
)

// Extract pulls every recognizable identifier out of a single message text.
// Pure and side-effect-free; the returned map only holds non-empty
// categories and each value list is deduplicated in order of appearance.
func Extract(text string) map[string][]string {
	out := newAccumulator()

	emails := emailRe.FindAllString(text, -1)
	for _, e := range emails {
		out.add(models.CategoryEmailAddresses, e)
	}

	for _, u := range upiRe.FindAllString(text, -1) {
		if isEmailFragment(u, emails) {
			continue
		}
		out.add(models.CategoryUPIIDs, u)
	}

	for _, l := range linkRe.FindAllString(text, -1) {
		out.add(models.CategoryPhishingLinks, strings.TrimRight(l, ".,;"))
	}

	for _, p := range panRe.FindAllString(strings.ToUpper(text), -1) {
		out.add(models.CategoryPANNumbers, p)
	}

	// Labeled reference numbers claim their digits so the digit-run pass
	// below does not re-report them as bank accounts.
	claimed := map[string]bool{}
	for re, category := range map[*regexp.Regexp]string{
		caseRe:   models.CategoryCaseIDs,
		policyRe: models.CategoryPolicyNumbers,
		orderRe:  models.CategoryOrderNumbers,
	} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			id := strings.ToUpper(m[1])
			out.add(category, id)
			claimed[onlyDigits(id)] = true
		}
	}

	extractDigitRuns(text, out, claimed)

	return out.result()
}

// extractDigitRuns strips separator characters, then classifies each maximal
// digit run. First match wins: phone, card, aadhaar, bank account. A token
// classified as a phone number is never also reported as a bank account.
func extractDigitRuns(text string, out *accumulator, claimed map[string]bool) {
	normalized := separatorRe.ReplaceAllString(text, "")

	for _, run := range digitRunRe.FindAllString(normalized, -1) {
		digits := strings.TrimPrefix(run, "+")
		hadCountryCode := false
		if strings.HasPrefix(run, "+") && strings.HasPrefix(digits, "91") && len(digits) == 12 {
			digits = digits[2:]
			hadCountryCode = true
		}

		switch {
		case len(digits) == 10 && digits[0] >= '6' && digits[0] <= '9':
			out.add(models.CategoryPhoneNumbers, digits)
		case hadCountryCode:
			// A +91 prefix that did not yield a valid mobile is noise.
		case len(digits) >= 13 && len(digits) <= 19 && digits[0] >= '3' && digits[0] <= '6' && luhnValid(digits):
			out.add(models.CategoryCreditCards, digits)
		case len(digits) == 12 && digits[0] >= '2' && digits[0] <= '9' && aadhaarGrouped(text, digits):
			out.add(models.CategoryAadhaarNumbers, digits)
		case len(digits) >= 9 && len(digits) <= 18 && !claimed[digits]:
			out.add(models.CategoryBankAccounts, digits)
		}
	}
}

// AggregateFromHistory replays extraction over every counterpart-authored
// message plus the current text and returns the union.
func AggregateFromHistory(history []models.Message, currentText string) map[string][]string {
	out := newAccumulator()
	for _, msg := range history {
		if !msg.FromScammer() || msg.Text == "" {
			continue
		}
		out.merge(Extract(msg.Text))
	}
	out.merge(Extract(currentText))
	return out.result()
}

// HasFindings reports whether any category holds at least one value.
func HasFindings(m map[string][]string) bool {
	for _, values := range m {
		if len(values) > 0 {
			return true
		}
	}
	return false
}

// isEmailFragment reports whether a UPI candidate is really the local part
// of an extracted email address (user@domain from user@domain.com).
func isEmailFragment(candidate string, emails []string) bool {
	for _, e := range emails {
		if strings.HasPrefix(e, candidate) {
			return true
		}
	}
	return false
}

// aadhaarGrouped checks that the digits appeared in the conventional
// 4-4-4 grouping somewhere in the source text.
func aadhaarGrouped(text, digits string) bool {
	for _, sep := range []string{" ", "-"} {
		grouped := digits[:4] + sep + digits[4:8] + sep + digits[8:]
		if strings.Contains(text, grouped) {
			return true
		}
	}
	return false
}

func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// accumulator keeps per-category insertion order while deduplicating.
type accumulator struct {
	values map[string][]string
	seen   map[string]map[string]bool
}

func newAccumulator() *accumulator {
	return &accumulator{
		values: make(map[string][]string),
		seen:   make(map[string]map[string]bool),
	}
}

func (a *accumulator) add(category, value string) {
	if value == "" {
		return
	}
	if a.seen[category] == nil {
		a.seen[category] = make(map[string]bool)
	}
	if a.seen[category][value] {
		return
	}
	a.seen[category][value] = true
	a.values[category] = append(a.values[category], value)
}

func (a *accumulator) merge(m map[string][]string) {
	for category, values := range m {
		for _, v := range values {
			a.add(category, v)
		}
	}
}

func (a *accumulator) result() map[string][]string {
	return a.values
}
