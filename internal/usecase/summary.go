package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/example/mood-check/internal/logging"
	"github.com/example/mood-check/internal/repository"
)

const (
	// DefaultSummaryDays is the window used when a caller does not pick one.
	DefaultSummaryDays = 7
	// DefaultEntriesLimit and MaxEntriesLimit bound ListMoodEntries.
	DefaultEntriesLimit = 30
	MaxEntriesLimit     = 200
)

// MoodSummary aggregates a user's recorded emotions over a window of days.
// Days == 0 means the whole history.
type MoodSummary struct {
	Days              int              `json:"days"`
	TotalRecords      int64            `json:"total_records"`
	Distribution      map[string]int64 `json:"distribution"`
	AverageConfidence float64          `json:"average_confidence"`
	DominantEmotion   string           `json:"dominant_emotion,omitempty"`
}

// GetMoodSummary aggregates emotion records persisted for userID in the last days days.
func (uc *InferenceUseCase) GetMoodSummary(ctx context.Context, userID string, days int) (*MoodSummary, error) {
	if days < 0 {
		return nil, logging.NewOperationError("usecase.get_mood_summary", "", fmt.Errorf("%w: days must not be negative", ErrValidation))
	}

	var since time.Time
	if days > 0 {
		since = uc.now().AddDate(0, 0, -days)
	}

	rows, err := uc.recorder.AggregateEmotions(ctx, userID, since)
	if err != nil {
		return nil, logging.NewOperationError("usecase.get_mood_summary", "", fmt.Errorf("%w: %w", ErrPersistence, err))
	}

	summary := &MoodSummary{Days: days, Distribution: make(map[string]int64, len(rows))}
	var (
		weighted float64
		topCount int64
	)
	for _, row := range rows {
		summary.Distribution[row.Label] = row.Count
		summary.TotalRecords += row.Count
		weighted += row.AverageConfidence * float64(row.Count)
		if row.Count > topCount {
			summary.DominantEmotion, topCount = row.Label, row.Count
		}
	}

	if summary.TotalRecords > 0 {
		summary.AverageConfidence = weighted / float64(summary.TotalRecords)
	}

	return summary, nil
}

// ListMoodEntries returns the user's most recent emotion records. limit <= 0 selects
// DefaultEntriesLimit; larger values are capped at MaxEntriesLimit.
func (uc *InferenceUseCase) ListMoodEntries(ctx context.Context, userID string, limit int) ([]repository.EmotionRecord, error) {
	switch {
	case limit <= 0:
		limit = DefaultEntriesLimit
	case limit > MaxEntriesLimit:
		limit = MaxEntriesLimit
	}

	records, err := uc.recorder.ListEmotions(ctx, userID, limit)
	if err != nil {
		return nil, logging.NewOperationError("usecase.list_mood_entries", "", fmt.Errorf("%w: %w", ErrPersistence, err))
	}
	return records, nil
}
