package council

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// challengeLine matches LOKI's output contract:
// CHALLENGE <MEMBER> <SEVERITY>: <objection>
var challengeLine = regexp.MustCompile(
	`(?m)^\s*CHALLENGE\s+([A-Z]+)\s+(LOW|MEDIUM|HIGH|CRITICAL)\s*:\s*(.+)$`)

// parseChallenges extracts structured challenges from LOKI's raw output.
// Lines targeting unknown members are dropped; a literal NONE yields no
// challenges.
func parseChallenges(raw string) []types.LokiChallenge {
	var challenges []types.LokiChallenge
	for _, m := range challengeLine.FindAllStringSubmatch(raw, -1) {
		target := types.CouncilMember(m[1])
		if target.OrderIndex() >= len(types.MemberOrder) {
			continue
		}
		challenges = append(challenges, types.LokiChallenge{
			ID:           uuid.NewString(),
			TargetMember: target,
			Text:         strings.TrimSpace(m[3]),
			Severity:     types.Severity(m[2]),
			Resolved:     false,
			Timestamp:    time.Now(),
		})
	}
	return challenges
}
