package types

import "time"

// SourceType identifies the provider class a source came from.
type SourceType string

const (
	SourceArxiv  SourceType = "ARXIV"
	SourcePubmed SourceType = "PUBMED"
	SourceWeb    SourceType = "WEB"
)

// Source is a literal citation attached to evidence or to a node. Identity
// is (Type, Identifier); two sources with the same pair are the same source.
type Source struct {
	ID          string     `json:"id"`
	Type        SourceType `json:"type"`
	Identifier  string     `json:"identifier"`
	URL         string     `json:"url,omitempty"`
	Title       string     `json:"title,omitempty"`
	Authors     []string   `json:"authors,omitempty"`
	TrustScore  int        `json:"trustScore"`
	RetrievedAt time.Time  `json:"retrievedAt"`
}

// AnchorTrustThreshold is the minimum trust score a source needs to anchor a
// VERIFIED transition (I3) or to satisfy the validator's anchor check.
const AnchorTrustThreshold = 80

// Anchored reports whether the source is strong enough to anchor a
// verification.
func (s Source) Anchored() bool {
	return s.TrustScore >= AnchorTrustThreshold
}

// AuditAction names the kind of change an audit entry records.
type AuditAction string

const (
	AuditCreate      AuditAction = "CREATE"
	AuditTransition  AuditAction = "TRANSITION"
	AuditQueueChange AuditAction = "QUEUE_CHANGE"
	AuditCascade     AuditAction = "CASCADE_INVALIDATE"
	AuditRollback    AuditAction = "ROLLBACK"
)

// AuditEntry is one immutable line in a node's append-only history.
// Entries are ordered by append time and never mutated (I2).
type AuditEntry struct {
	Timestamp       time.Time   `json:"ts"`
	Action          AuditAction `json:"action"`
	FromState       NodeState   `json:"fromState,omitempty"`
	ToState         NodeState   `json:"toState,omitempty"`
	Trigger         string      `json:"trigger"`
	Agent           string      `json:"agent"`
	Reason          string      `json:"reason"`
	ConfidenceDelta *int        `json:"confidenceDelta,omitempty"`
	VoteRecord      string      `json:"voteRecord,omitempty"`
}

// KnowledgeNode is the central entity of the ledger.
type KnowledgeNode struct {
	ID         string    `json:"id"`
	Statement  string    `json:"statement"`
	Domain     string    `json:"domain,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Branch     Branch    `json:"branch"`
	State      NodeState `json:"state"`
	Confidence int       `json:"confidence"`

	Velocity      float64       `json:"velocity"`
	PriorityQueue PriorityQueue `json:"priorityQueue"`
	LastScan      *time.Time    `json:"lastScan,omitempty"`
	NextScan      *time.Time    `json:"nextScan,omitempty"`
	IdleCycles    int           `json:"idleCycles"`

	AuditTrail         []AuditEntry              `json:"auditTrail"`
	ShapleyAttribution map[CouncilMember]float64 `json:"shapleyAttribution,omitempty"`
	Sources            []Source                  `json:"sources,omitempty"`
	CreatedAt          time.Time                 `json:"createdAt"`
	UpdatedAt          time.Time                 `json:"updatedAt"`
	LastTransitionAt   time.Time                 `json:"lastTransitionAt"`
}

// MaxStatementBytes bounds a node statement after normalization.
const MaxStatementBytes = 4096

// Relation classifies a dependency edge between two nodes.
type Relation string

const (
	RelationDerivedFrom Relation = "DERIVED_FROM"
	RelationAssumes     Relation = "ASSUMES"
	RelationSupports    Relation = "SUPPORTS"
	RelationContradicts Relation = "CONTRADICTS"
)

// DependencyEdge links a source node to a target node that depends on it.
// Cascade invalidation traverses source -> target: deprecating the source
// deprecates or reviews its dependents. Unique per (SourceID, TargetID).
type DependencyEdge struct {
	SourceID string   `json:"sourceId"`
	TargetID string   `json:"targetId"`
	Relation Relation `json:"relation"`
	Strength float64  `json:"strength"`
}

// CascadeStrengthThreshold splits dependents into direct invalidation
// (>= threshold) and HOT-queue review (< threshold).
const CascadeStrengthThreshold = 0.8

// CascadeResult reports the outcome of one cascade invalidation.
type CascadeResult struct {
	RootID           string   `json:"rootId"`
	InvalidatedIDs   []string `json:"invalidatedIds"`
	ReviewIDs        []string `json:"reviewIds"`
	InvalidatedCount int      `json:"invalidatedCount"`
	ReviewCount      int      `json:"reviewCount"`
	DurationMs       int64    `json:"durationMs"`
}

// CheckpointSnapshot captures the restorable slice of one node.
type CheckpointSnapshot struct {
	NodeID           string        `json:"nodeId"`
	State            NodeState     `json:"state"`
	Branch           Branch        `json:"branch"`
	Confidence       int           `json:"confidence"`
	Velocity         float64       `json:"velocity"`
	PriorityQueue    PriorityQueue `json:"priorityQueue"`
	AuditTrailLength int           `json:"auditTrailLength"`
}

// Checkpoint is a labeled, restorable snapshot of selected nodes.
// StateHash is a stable hash over the sorted member-id set.
type Checkpoint struct {
	ID            string               `json:"id"`
	UserID        string               `json:"userId"`
	Label         string               `json:"label"`
	Description   string               `json:"description,omitempty"`
	StateHash     string               `json:"stateHash"`
	MemberNodeIDs []string             `json:"memberNodeIds"`
	Snapshots     []CheckpointSnapshot `json:"snapshots"`
	CreatedAt     time.Time            `json:"createdAt"`
}

// RollbackResult reports what a checkpoint rollback touched.
type RollbackResult struct {
	InvalidatedCount int `json:"invalidatedCount"`
	RestoredCount    int `json:"restoredCount"`
}

// AlertKind names a watcher alert condition.
type AlertKind string

const (
	AlertVelocitySpike  AlertKind = "VELOCITY_SPIKE"
	AlertContradiction  AlertKind = "CONTRADICTION"
	AlertConfidenceDrop AlertKind = "CONFIDENCE_DROP"
)

// Alert is one watcher-emitted event, persisted and kept in the in-process
// ring buffer.
type Alert struct {
	ID        string    `json:"id"`
	NodeID    string    `json:"nodeId"`
	Kind      AlertKind `json:"kind"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
