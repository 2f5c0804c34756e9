package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/mood-check/internal/logging"
)

// EmotionRecord is the persisted outcome of one image request.
type EmotionRecord struct {
	ID         uint      `gorm:"primaryKey"`
	RequestID  string    `gorm:"column:request_id;uniqueIndex;size:64"`
	UserID     string    `gorm:"column:user_id;index;size:64"`
	Label      string    `gorm:"column:label;size:32"`
	Confidence float64   `gorm:"column:confidence"`
	SHA1Hash   string    `gorm:"column:sha1_hash;size:40"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (EmotionRecord) TableName() string {
	return "emotion_records"
}

// AssessmentRecord is the persisted outcome of one text request. The text itself is never stored.
type AssessmentRecord struct {
	ID         uint      `gorm:"primaryKey"`
	RequestID  string    `gorm:"column:request_id;uniqueIndex;size:64"`
	UserID     string    `gorm:"column:user_id;index;size:64"`
	IsCrisis   bool      `gorm:"column:is_crisis"`
	Depression float64   `gorm:"column:depression"`
	Suicidal   float64   `gorm:"column:suicidal"`
	Scores     string    `gorm:"column:scores;type:text"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (AssessmentRecord) TableName() string {
	return "crisis_assessments"
}

// SetScores stores scores as JSON.
func (r *AssessmentRecord) SetScores(scores map[string]float64) error {
	data, err := json.Marshal(scores)
	if err != nil {
		return err
	}
	r.Scores = string(data)
	return nil
}

// EmotionCount is one row of the per-label aggregation.
type EmotionCount struct {
	Label             string  `gorm:"column:label"`
	Count             int64   `gorm:"column:count"`
	AverageConfidence float64 `gorm:"column:average_confidence"`
}

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("record not found")

// ResultRepository persists decision records.
type ResultRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewResultRepository creates a new repository instance.
func NewResultRepository(db *gorm.DB, logger *zap.Logger) *ResultRepository {
	return &ResultRepository{
		db:             db,
		logger:         logger.Named("result_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ResultRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&EmotionRecord{}, &AssessmentRecord{})
}

// SaveEmotion appends an emotion record.
func (r *ResultRepository) SaveEmotion(ctx context.Context, record *EmotionRecord) error {
	return r.executeWithRetry(ctx, "repository.save_emotion", record.RequestID, func() error {
		return r.db.WithContext(ctx).Create(record).Error
	})
}

// SaveAssessment appends a crisis assessment record.
func (r *ResultRepository) SaveAssessment(ctx context.Context, record *AssessmentRecord) error {
	return r.executeWithRetry(ctx, "repository.save_assessment", record.RequestID, func() error {
		return r.db.WithContext(ctx).Create(record).Error
	})
}

// FindEmotion retrieves an emotion record matching the request and owner.
func (r *ResultRepository) FindEmotion(ctx context.Context, requestID, userID string) (*EmotionRecord, error) {
	var record EmotionRecord
	err := r.db.WithContext(ctx).First(&record, "request_id = ? AND user_id = ?", requestID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, logging.NewOperationError("repository.find_emotion", requestID, ErrNotFound)
	}
	if err != nil {
		return nil, logging.NewOperationError("repository.find_emotion", requestID, err)
	}
	return &record, nil
}

// AggregateEmotions counts records per label for a user. A zero since covers the
// whole history.
func (r *ResultRepository) AggregateEmotions(ctx context.Context, userID string, since time.Time) ([]EmotionCount, error) {
	query := r.db.WithContext(ctx).
		Model(&EmotionRecord{}).
		Select("label, COUNT(*) AS count, COALESCE(AVG(confidence), 0) AS average_confidence").
		Where("user_id = ?", userID)
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}

	var rows []EmotionCount
	if err := query.Group("label").Order("label").Scan(&rows).Error; err != nil {
		return nil, logging.NewOperationError("repository.aggregate_emotions", "", err)
	}
	return rows, nil
}

// ListEmotions returns a user's most recent records, newest first.
func (r *ResultRepository) ListEmotions(ctx context.Context, userID string, limit int) ([]EmotionRecord, error) {
	var records []EmotionRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, logging.NewOperationError("repository.list_emotions", "", err)
	}
	return records, nil
}

func (r *ResultRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == attempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}
