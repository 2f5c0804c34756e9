package inference

import (
	"context"
	"image"

	"golang.org/x/sync/semaphore"

	"github.com/example/mood-check/internal/decision"
)

// Limiter bounds how many calls may be in flight against a shared model.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter returns a limiter admitting n concurrent calls. n <= 0 disables the limit.
func NewLimiter(n int64) *Limiter {
	if n <= 0 {
		return &Limiter{}
	}
	return &Limiter{sem: semaphore.NewWeighted(n)}
}

func (l *Limiter) acquire(ctx context.Context) (func(), error) {
	if l == nil || l.sem == nil {
		return func() {}, nil
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { l.sem.Release(1) }, nil
}

type limitedDetector struct {
	next    FaceDetector
	limiter *Limiter
}

// LimitDetector guards next with limiter.
func LimitDetector(next FaceDetector, limiter *Limiter) FaceDetector {
	return &limitedDetector{next: next, limiter: limiter}
}

func (l *limitedDetector) Detect(ctx context.Context, img image.Image) ([]decision.Detection, error) {
	release, err := l.limiter.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Detect(ctx, img)
}

type limitedEmotion struct {
	next    EmotionClassifier
	limiter *Limiter
}

// LimitEmotion guards next with limiter.
func LimitEmotion(next EmotionClassifier, limiter *Limiter) EmotionClassifier {
	return &limitedEmotion{next: next, limiter: limiter}
}

func (l *limitedEmotion) Classify(ctx context.Context, input Tensor) ([]float64, error) {
	release, err := l.limiter.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Classify(ctx, input)
}

type limitedText struct {
	next    TextClassifier
	limiter *Limiter
}

// LimitText guards next with limiter.
func LimitText(next TextClassifier, limiter *Limiter) TextClassifier {
	return &limitedText{next: next, limiter: limiter}
}

func (l *limitedText) Classify(ctx context.Context, text string) (decision.ScoreMap, error) {
	release, err := l.limiter.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Classify(ctx, text)
}
