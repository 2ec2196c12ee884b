package policy

import "regexp"

type redactionRule struct {
	kind    string
	pattern *regexp.Regexp
}

// Applied in order: card numbers must be masked before the phone rule sees
// their digit runs.
var redactionRules = []redactionRule{
	{"EMAIL", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"CARD", regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)},
	{"PHONE", regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)},
}

// RedactPII masks emails, card numbers and phone numbers in utterances
// before they reach the logs.
func RedactPII(input string) (string, bool) {
	out := input
	for _, r := range redactionRules {
		out = r.pattern.ReplaceAllString(out, "[REDACTED_"+r.kind+"]")
	}
	return out, out != input
}
