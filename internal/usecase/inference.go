package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/mood-check/internal/decision"
	"github.com/example/mood-check/internal/inference"
	"github.com/example/mood-check/internal/logging"
	"github.com/example/mood-check/internal/preprocess"
	"github.com/example/mood-check/internal/repository"
)

// Recorder defines the persistence operations needed by the use case.
type Recorder interface {
	SaveEmotion(ctx context.Context, record *repository.EmotionRecord) error
	SaveAssessment(ctx context.Context, record *repository.AssessmentRecord) error
	FindEmotion(ctx context.Context, requestID, userID string) (*repository.EmotionRecord, error)
	AggregateEmotions(ctx context.Context, userID string, since time.Time) ([]repository.EmotionCount, error)
	ListEmotions(ctx context.Context, userID string, limit int) ([]repository.EmotionRecord, error)
}

// Options tunes the decision policies and preprocessing.
type Options struct {
	Emotion            decision.EmotionDecider
	Crisis             decision.CrisisPolicy
	InputSize          int
	Normalization      preprocess.Normalization
	MaxImagePixels     int
	MaxTextLength      int
	PersistAssessments bool
	ResultTTL          time.Duration
	ScoresTTL          time.Duration
}

// DefaultOptions matches the behaviour the models were tuned against.
func DefaultOptions() Options {
	return Options{
		Emotion:        decision.NewEmotionDecider(),
		Crisis:         decision.DefaultCrisisPolicy(),
		InputSize:      preprocess.DefaultInputSize,
		Normalization:  preprocess.NormalizeEfficientNet,
		MaxImagePixels: preprocess.DefaultMaxPixels,
		MaxTextLength:  5000,
		ResultTTL:      10 * time.Minute,
		ScoresTTL:      10 * time.Minute,
	}
}

// MoodPrediction is the outcome of an image request.
type MoodPrediction struct {
	RequestID string
	Result    decision.EmotionResult
	Face      decision.BoundingBox
	Persisted bool
}

// CrisisAssessment is the outcome of a text request.
type CrisisAssessment struct {
	RequestID string
	decision.CrisisResult
	Cached    bool
	Persisted bool
}

// InferenceUseCase runs both decision paths against injected model collaborators.
// It holds no per-request state and is safe for concurrent use as long as its
// collaborators are.
type InferenceUseCase struct {
	detector       inference.FaceDetector
	emotion        inference.EmotionClassifier
	text           inference.TextClassifier
	recorder       Recorder
	cache          Cache
	logger         *zap.Logger
	opts           Options
	now            func() time.Time
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

type cachedEmotion struct {
	RequestID  string    `json:"request_id"`
	UserID     string    `json:"user_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Hash       string    `json:"sha1_hash"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewInferenceUseCase constructs a new use case instance. A nil cache disables caching.
func NewInferenceUseCase(
	detector inference.FaceDetector,
	emotion inference.EmotionClassifier,
	text inference.TextClassifier,
	recorder Recorder,
	cache Cache,
	logger *zap.Logger,
	opts Options,
) *InferenceUseCase {
	if cache == nil {
		cache = nopCache{}
	}
	return &InferenceUseCase{
		detector:       detector,
		emotion:        emotion,
		text:           text,
		recorder:       recorder,
		cache:          cache,
		logger:         logger.Named("inference_usecase"),
		opts:           opts,
		now:            time.Now,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// PredictMood decodes payload, locates the largest face, classifies it and records the result.
func (uc *InferenceUseCase) PredictMood(ctx context.Context, userID, payload string) (*MoodPrediction, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.predict_mood", requestID)

	img, err := preprocess.DecodeImage(payload, uc.opts.MaxImagePixels)
	if err != nil {
		opLogger.Info("rejected image payload", zap.Error(err))
		kind := ErrValidation
		if errors.Is(err, preprocess.ErrImageTooLarge) {
			kind = ErrImageTooLarge
		}
		return nil, logging.NewOperationError("usecase.decode_image", requestID, fmt.Errorf("%w: %w", kind, err))
	}

	detections, err := uc.detector.Detect(ctx, img)
	if err != nil {
		opLogger.Error("face detection failed", zap.Error(err))
		return nil, logging.NewOperationError("usecase.detect_faces", requestID, fmt.Errorf("%w: %w", ErrClassifierUnavailable, err))
	}

	crop, ok := decision.Locate(img.Bounds(), detections)
	if !ok {
		opLogger.Info("no usable face", zap.Int("detections", len(detections)))
		return nil, logging.NewOperationError("usecase.locate_face", requestID, ErrNoSubjectDetected)
	}

	tensor := preprocess.ToTensor(preprocess.CropFace(img, crop.Rect), uc.opts.InputSize, uc.opts.Normalization)
	raw, err := uc.emotion.Classify(ctx, tensor)
	if err != nil {
		opLogger.Error("emotion classification failed", zap.Error(err))
		return nil, logging.NewOperationError("usecase.classify_emotion", requestID, fmt.Errorf("%w: %w", ErrClassifierUnavailable, err))
	}

	result, err := uc.opts.Emotion.Decide(raw)
	if err != nil {
		opLogger.Error("emotion classifier broke its output contract", zap.Error(err), zap.Int("scores", len(raw)))
		return nil, logging.NewOperationError("usecase.decide_emotion", requestID, fmt.Errorf("%w: %w", ErrClassifierUnavailable, err))
	}

	prediction := &MoodPrediction{RequestID: requestID, Result: result, Face: crop.Box}

	hash := sha1.Sum([]byte(payload))
	record := &repository.EmotionRecord{
		RequestID:  requestID,
		UserID:     userID,
		Label:      result.Label,
		Confidence: result.Confidence,
		SHA1Hash:   hex.EncodeToString(hash[:]),
		CreatedAt:  uc.now().UTC(),
	}
	if err := uc.recorder.SaveEmotion(ctx, record); err != nil {
		wrapped := logging.NewOperationError("usecase.save_emotion", requestID, fmt.Errorf("%w: %w", ErrPersistence, err))
		opLogger.Error("failed to persist emotion record", zap.Error(wrapped))
	} else {
		prediction.Persisted = true
	}

	uc.cacheEmotion(ctx, record)

	opLogger.Info("mood predicted",
		zap.String("emotion", result.Label),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("persisted", prediction.Persisted),
	)
	return prediction, nil
}

// AssessText scores text and applies the crisis policy. Blank text is rejected before
// the classifier is called; text longer than MaxTextLength runes is truncated, not rejected.
func (uc *InferenceUseCase) AssessText(ctx context.Context, userID, text string) (*CrisisAssessment, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.assess_text", requestID)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, logging.NewOperationError("usecase.validate_text", requestID, ErrTextRequired)
	}
	if truncated, ok := truncateRunes(text, uc.opts.MaxTextLength); ok {
		opLogger.Debug("truncated long text", zap.Int("max_runes", uc.opts.MaxTextLength))
		text = truncated
	}

	hash := sha1.Sum([]byte(text))
	key := scoresCacheKey(hex.EncodeToString(hash[:]))

	assessment := &CrisisAssessment{RequestID: requestID}
	scores, ok := uc.cachedScores(ctx, requestID, key)
	if ok {
		assessment.Cached = true
	} else {
		var err error
		scores, err = uc.text.Classify(ctx, text)
		if err != nil {
			opLogger.Error("text classification failed", zap.Error(err))
			return nil, logging.NewOperationError("usecase.classify_text", requestID, fmt.Errorf("%w: %w", ErrClassifierUnavailable, err))
		}
		if serialized, err := json.Marshal(scores); err == nil {
			if err := uc.withRedisRetry(ctx, requestID, "cache.set.scores", func() error {
				return uc.cache.Set(ctx, key, string(serialized), uc.opts.ScoresTTL)
			}); err != nil {
				opLogger.Warn("failed to cache text scores", zap.Error(err))
			}
		}
	}

	assessment.CrisisResult = uc.opts.Crisis.Assess(scores)

	if uc.opts.PersistAssessments {
		record := &repository.AssessmentRecord{
			RequestID:  requestID,
			UserID:     userID,
			IsCrisis:   assessment.IsCrisis,
			Depression: scores.Get(decision.LabelDepression),
			Suicidal:   scores.Get(decision.LabelSuicidal),
			CreatedAt:  uc.now().UTC(),
		}
		err := record.SetScores(scores)
		if err == nil {
			err = uc.recorder.SaveAssessment(ctx, record)
		}
		if err != nil {
			wrapped := logging.NewOperationError("usecase.save_assessment", requestID, fmt.Errorf("%w: %w", ErrPersistence, err))
			opLogger.Error("failed to persist crisis assessment", zap.Error(wrapped))
		} else {
			assessment.Persisted = true
		}
	}

	opLogger.Info("text assessed",
		zap.Bool("is_crisis", assessment.IsCrisis),
		zap.Bool("cached", assessment.Cached),
	)
	return assessment, nil
}

// GetRecord returns a stored emotion record, preferring the cache.
func (uc *InferenceUseCase) GetRecord(ctx context.Context, userID, requestID string) (*repository.EmotionRecord, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_record", requestID)

	if cached, err := uc.withRedisGet(ctx, requestID, "cache.get.emotion", emotionCacheKey(requestID)); err == nil {
		var payload cachedEmotion
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			opLogger.Warn("failed to decode cached record", zap.Error(err))
		} else if payload.UserID == userID {
			return &repository.EmotionRecord{
				RequestID:  payload.RequestID,
				UserID:     payload.UserID,
				Label:      payload.Label,
				Confidence: payload.Confidence,
				SHA1Hash:   payload.Hash,
				CreatedAt:  payload.CreatedAt,
			}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	record, err := uc.recorder.FindEmotion(ctx, requestID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, logging.NewOperationError("usecase.get_record", requestID, ErrNotFound)
	}
	if err != nil {
		return nil, logging.NewOperationError("usecase.get_record", requestID, fmt.Errorf("%w: %w", ErrPersistence, err))
	}
	return record, nil
}

// truncateRunes cuts s to at most limit runes. limit <= 0 means no limit.
func truncateRunes(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

func (uc *InferenceUseCase) cacheEmotion(ctx context.Context, record *repository.EmotionRecord) {
	serialized, err := json.Marshal(cachedEmotion{
		RequestID:  record.RequestID,
		UserID:     record.UserID,
		Label:      record.Label,
		Confidence: record.Confidence,
		Hash:       record.SHA1Hash,
		CreatedAt:  record.CreatedAt,
	})
	if err != nil {
		return
	}
	if err := uc.withRedisRetry(ctx, record.RequestID, "cache.set.emotion", func() error {
		return uc.cache.Set(ctx, emotionCacheKey(record.RequestID), string(serialized), uc.opts.ResultTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "usecase.cache_emotion", record.RequestID).Warn("failed to cache emotion record", zap.Error(err))
	}
}

func (uc *InferenceUseCase) cachedScores(ctx context.Context, requestID, key string) (decision.ScoreMap, bool) {
	cached, err := uc.withRedisGet(ctx, requestID, "cache.get.scores", key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.WithOperation(uc.logger, "usecase.assess_text", requestID).Warn("failed to read cache", zap.Error(err))
		}
		return nil, false
	}

	var raw map[string]float64
	if err := json.Unmarshal([]byte(cached), &raw); err != nil {
		return nil, false
	}
	scores, err := decision.NewScoreMap(raw)
	if err != nil {
		return nil, false
	}
	return scores, true
}

func (uc *InferenceUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			if !errors.Is(err, redis.Nil) {
				opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			}
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *InferenceUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
