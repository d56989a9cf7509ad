package recovery

import (
	"strings"

	"github.com/clauderelay/clauderelay/pkg/types"
)

// rule pairs a predicate over the lowercased error message with the
// classification it produces. Rules are evaluated strictly in order;
// the first match wins. Keeping the order explicit in a slice makes
// the tie-breaks testable on their own ("session timeout" is network
// because the network rule runs first).
type rule struct {
	name     string
	keywords []string
	classify func(msg string) types.ErrorClassification
}

var rules = []rule{
	{
		name:     "network",
		keywords: []string{"fetch", "network", "connection", "timeout", "http 5", "http 4"},
		classify: func(msg string) types.ErrorClassification {
			severity := types.SeverityHigh
			if strings.Contains(msg, "timeout") {
				severity = types.SeverityMedium
			}
			return types.ErrorClassification{
				Type:        types.ErrorTypeNetwork,
				Severity:    severity,
				Recoverable: true,
				Retryable:   true,
			}
		},
	},
	{
		name:     "session",
		keywords: []string{"session", "resume", "continuation", "not found", "invalid session"},
		classify: func(string) types.ErrorClassification {
			return types.ErrorClassification{
				Type:        types.ErrorTypeSession,
				Severity:    types.SeverityMedium,
				Recoverable: true,
				Retryable:   false,
			}
		},
	},
	{
		name:     "system",
		keywords: []string{"claude cli", "command", "spawn", "permission", "file system"},
		classify: func(string) types.ErrorClassification {
			return types.ErrorClassification{
				Type:        types.ErrorTypeSystem,
				Severity:    types.SeverityHigh,
				Recoverable: true,
				Retryable:   true,
			}
		},
	},
	{
		name:     "user",
		keywords: []string{"validation", "required", "invalid", "malformed"},
		classify: func(string) types.ErrorClassification {
			return types.ErrorClassification{
				Type:      types.ErrorTypeUser,
				Severity:  types.SeverityLow,
				Permanent: true,
			}
		},
	},
}

// Classify derives an ErrorClassification from nothing but the error's
// message text. It is pure and stateless; the recovery engine layers
// context-dependent policy on top.
func Classify(err error) types.ErrorClassification {
	msg := ""
	if err != nil {
		msg = strings.ToLower(err.Error())
	}

	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(msg, kw) {
				return r.classify(msg)
			}
		}
	}

	return types.ErrorClassification{
		Type:        types.ErrorTypeUnknown,
		Severity:    types.SeverityMedium,
		Recoverable: true,
		Retryable:   true,
	}
}
