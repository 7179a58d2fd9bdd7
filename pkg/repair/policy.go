package repair

import (
	"strings"

	"github.com/jihwankim/telesim/pkg/event"
)

// infraTypes is the fixed set of issue-type tags recognized as
// infrastructure.
var infraTypes = map[string]bool{
	"fiber_cut":           true,
	"tower_outage":        true,
	"backhaul_congestion": true,
	"cable_damage":        true,
}

// infraTokens is the fallback substring heuristic for issue types written by
// builds with a different variant set.
var infraTokens = []string{"fiber", "tower", "outage", "cable", "backhaul", "infra"}

// isInfrastructure reports whether an issue falls under the infrastructure
// repair policy: exact category or type match first, substring heuristic as
// fallback.
func isInfrastructure(issue event.Issue) bool {
	if issue.Category == event.CategoryInfrastructure {
		return true
	}
	if infraTypes[issue.Type] {
		return true
	}
	t := strings.ToLower(issue.Type)
	for _, tok := range infraTokens {
		if strings.Contains(t, tok) {
			return true
		}
	}
	return false
}
