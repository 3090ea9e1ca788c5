package domain

// ConflictPolicy resolves opposing signals on the same token.
type ConflictPolicy string

const (
	ConflictFirstWins        ConflictPolicy = "first_wins"
	ConflictPrioritizeLatest ConflictPolicy = "prioritize_latest"
	ConflictRiskBased        ConflictPolicy = "risk_based"
	ConflictSeparate         ConflictPolicy = "separate"
)

// MergePolicy controls what happens when a token is at its position ceiling.
type MergePolicy string

const (
	MergeSimilar MergePolicy = "merge_similar"
	MergeNever   MergePolicy = "never"
)

// DecisionKind names an admission outcome.
type DecisionKind string

const (
	DecisionCancel     DecisionKind = "cancel"
	DecisionMerge      DecisionKind = "merge"
	DecisionSeparate   DecisionKind = "separate"
	DecisionPrioritize DecisionKind = "prioritize"
)

// AdmissionDecision is the result of admission control. The concrete type
// is one of Cancel, Merge, Separate or Prioritize.
type AdmissionDecision interface {
	Kind() DecisionKind
	admission()
}

// Cancel rejects the signal.
type Cancel struct {
	Reason string
}

// Merge folds the signal into an existing position.
type Merge struct {
	PositionID string
}

// Separate opens an independent position.
type Separate struct{}

// Prioritize opens the new position after fully exiting the conflicting ones.
type Prioritize struct {
	Priority    float64
	Conflicting []string
}

func (Cancel) Kind() DecisionKind     { return DecisionCancel }
func (Merge) Kind() DecisionKind      { return DecisionMerge }
func (Separate) Kind() DecisionKind   { return DecisionSeparate }
func (Prioritize) Kind() DecisionKind { return DecisionPrioritize }

func (Cancel) admission()     {}
func (Merge) admission()      {}
func (Separate) admission()   {}
func (Prioritize) admission() {}

// Outcome is the structured result of a lifecycle operation.
type Outcome struct {
	Success    bool         `json:"success"`
	Message    string       `json:"message"`
	PositionID string       `json:"positionId,omitempty"`
	Decision   DecisionKind `json:"decision,omitempty"`
}
