package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ActionDecision is the policy verdict on a model-proposed client action.
// Policy never drops an action; it only asks the client to confirm first.
type ActionDecision struct {
	Risk                 string
	RequiresConfirmation bool
	Reason               string
}

const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

var (
	// Parameters touching credentials or destructive shell commands.
	sensitivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\brm\s+-rf\s+/(?:\s|$)`),
		regexp.MustCompile(`(?i)(?:\bid_rsa\b|\bid_ed25519\b|\.env\b|\bauth\.json\b)`),
		regexp.MustCompile(`(?i)\b(?:exfiltrate|dump credentials|leak secrets?)\b`),
	}
	highRiskKeywords = regexp.MustCompile(`(?i)\b(?:delete|remove|wipe|erase|format|factory reset|` +
		`shut ?down|power off|reboot|restart|uninstall|disable)\b`)
	// Skills whose effect leaves the device on the user's behalf.
	outboundSkills = map[string]bool{
		"sms": true,
	}
)

// DecideAction reviews a parsed client action. RequiresConfirmation means
// the client should ask the user before acting.
func DecideAction(name string, params map[string]any) ActionDecision {
	text := flatten(params)

	for _, re := range sensitivePatterns {
		if re.MatchString(text) {
			return ActionDecision{
				Risk:                 RiskHigh,
				RequiresConfirmation: true,
				Reason:               "Action parameters reference credentials or destructive commands.",
			}
		}
	}

	if kw := highRiskKeywords.FindString(text); kw != "" {
		return ActionDecision{
			Risk:                 RiskHigh,
			RequiresConfirmation: true,
			Reason:               fmt.Sprintf("Action %q contains %q.", name, strings.ToLower(kw)),
		}
	}

	if outboundSkills[strings.ToLower(name)] {
		return ActionDecision{Risk: RiskMedium, RequiresConfirmation: true}
	}
	return ActionDecision{Risk: RiskLow}
}

// flatten renders params as "key=value" pairs in key order.
func flatten(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		switch v := params[k].(type) {
		case map[string]any:
			fmt.Fprintf(&b, "%s=(%s) ", k, flatten(v))
		default:
			fmt.Fprintf(&b, "%s=%v ", k, v)
		}
	}
	return strings.TrimSpace(b.String())
}
