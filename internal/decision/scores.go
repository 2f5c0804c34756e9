package decision

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidScore is returned when a classifier emits a score that is not a probability.
var ErrInvalidScore = errors.New("invalid score")

// ScoreMap maps a classifier label to its probability.
type ScoreMap map[string]float64

// NewScoreMap validates raw classifier output and returns it as a ScoreMap.
func NewScoreMap(raw map[string]float64) (ScoreMap, error) {
	scores := make(ScoreMap, len(raw))
	for label, value := range raw {
		if label == "" {
			return nil, fmt.Errorf("%w: empty label", ErrInvalidScore)
		}
		if math.IsNaN(value) || value < 0 || value > 1 {
			return nil, fmt.Errorf("%w: %s=%v", ErrInvalidScore, label, value)
		}
		scores[label] = value
	}
	return scores, nil
}

// Get returns the score for label, or 0 when the label is absent.
func (s ScoreMap) Get(label string) float64 {
	return s[label]
}

// Labels returns the labels in sorted order.
func (s ScoreMap) Labels() []string {
	labels := make([]string, 0, len(s))
	for label := range s {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Top returns the highest scoring label. Ties resolve to the label that sorts first.
func (s ScoreMap) Top() (string, float64, bool) {
	var (
		best  string
		score float64
		found bool
	)
	for _, label := range s.Labels() {
		if value := s[label]; !found || value > score {
			best, score, found = label, value, true
		}
	}
	return best, score, found
}
