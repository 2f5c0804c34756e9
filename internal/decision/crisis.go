package decision

const (
	LabelDepression = "depression"
	LabelSuicidal   = "suicidal"

	DefaultDominanceMargin   = 0.4
	DefaultCombinedThreshold = 0.95
)

// CrisisPolicy holds the two constants of the crisis rule.
type CrisisPolicy struct {
	// DominanceMargin is how far the suicidal score must exceed the depression score.
	DominanceMargin float64
	// CombinedThreshold must be strictly exceeded by depression+suicidal.
	CombinedThreshold float64
}

// DefaultCrisisPolicy returns the policy with a 0.4 margin and a 0.95 threshold.
func DefaultCrisisPolicy() CrisisPolicy {
	return CrisisPolicy{
		DominanceMargin:   DefaultDominanceMargin,
		CombinedThreshold: DefaultCombinedThreshold,
	}
}

// CrisisResult is the decision for one text.
type CrisisResult struct {
	Scores   ScoreMap `json:"scores"`
	IsCrisis bool     `json:"isCrisis"`
}

// Decide flags a crisis only when the combined severity is high and the suicidal
// signal dominates depression by the margin.
func (p CrisisPolicy) Decide(scores ScoreMap) bool {
	depression := scores.Get(LabelDepression)
	suicidal := scores.Get(LabelSuicidal)

	combined := depression + suicidal
	dominant := suicidal >= depression+p.DominanceMargin

	return combined > p.CombinedThreshold && dominant
}

// Assess wraps Decide with the scores it was computed from.
func (p CrisisPolicy) Assess(scores ScoreMap) CrisisResult {
	if scores == nil {
		scores = ScoreMap{}
	}
	return CrisisResult{Scores: scores, IsCrisis: p.Decide(scores)}
}
