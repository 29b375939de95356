package types

import "time"

// CouncilMember is a named deliberation role backed by one model adapter.
// The enum order below is the stable ordering used when assembling a
// deliberation record; identical response sets must always serialize in the
// same order so that arbitration is deterministic.
type CouncilMember string

const (
	MemberKvasir CouncilMember = "KVASIR"
	MemberBragi  CouncilMember = "BRAGI"
	MemberNornes CouncilMember = "NORNES"
	MemberSaga   CouncilMember = "SAGA"
	MemberSyn    CouncilMember = "SYN"
	MemberLoki   CouncilMember = "LOKI"
	MemberTyr    CouncilMember = "TYR"
)

// MemberOrder is the canonical council ordering. LOKI challenges and TYR
// arbitrates; they never contribute ordinary responses.
var MemberOrder = []CouncilMember{
	MemberKvasir, MemberBragi, MemberNornes, MemberSaga, MemberSyn, MemberLoki, MemberTyr,
}

// OrderIndex returns the member's position in the canonical ordering, or
// len(MemberOrder) for unknown members so they sort last.
func (m CouncilMember) OrderIndex() int {
	for i, member := range MemberOrder {
		if member == m {
			return i
		}
	}
	return len(MemberOrder)
}

// MemberResponse is one model's answer to a council prompt.
type MemberResponse struct {
	Member     CouncilMember `json:"member"`
	Content    string        `json:"content"`
	Confidence int           `json:"confidence"`
	Reasoning  string        `json:"reasoning,omitempty"`
	Model      string        `json:"model,omitempty"`
	DurationMs int64         `json:"durationMs"`
	Timestamp  time.Time     `json:"ts"`
}

// Severity grades a challenge or an alert.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// LokiChallenge is an adversarial objection raised against one member's
// response during the challenge phase.
type LokiChallenge struct {
	ID           string        `json:"id"`
	TargetMember CouncilMember `json:"targetMember"`
	Text         string        `json:"text"`
	Severity     Severity      `json:"severity"`
	Resolved     bool          `json:"resolved"`
	Timestamp    time.Time     `json:"ts"`
}

// VerdictKind is the arbitration outcome class.
type VerdictKind string

const (
	VerdictConsensus VerdictKind = "CONSENSUS"
	VerdictMajority  VerdictKind = "MAJORITY"
	VerdictSplit     VerdictKind = "SPLIT"
	VerdictDeadlock  VerdictKind = "DEADLOCK"
)

// VoteCounts is the multiset of derived votes.
type VoteCounts struct {
	Yes     int `json:"yes"`
	Partial int `json:"partial"`
	No      int `json:"no"`
}

// Verdict is TYR's arbitration over the collected responses.
type Verdict struct {
	Kind       VerdictKind     `json:"kind"`
	VoteCounts VoteCounts      `json:"voteCounts"`
	Reasoning  string          `json:"reasoning"`
	Dissent    []CouncilMember `json:"dissent,omitempty"`
}

// CouncilDeliberation is the full record of one deliberation: who answered,
// what LOKI objected to, how TYR ruled, and what was proposed.
type CouncilDeliberation struct {
	ID            string           `json:"id"`
	RequestID     string           `json:"requestId"`
	Query         string           `json:"query"`
	Responses     []MemberResponse `json:"responses"`
	Challenges    []LokiChallenge  `json:"challenges"`
	Verdict       Verdict          `json:"verdict"`
	FinalProposal string           `json:"finalProposal"`
	TotalDuration int64            `json:"totalDurationMs"`
	Timestamp     time.Time        `json:"ts"`
}
