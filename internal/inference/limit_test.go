package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/mood-check/internal/decision"
)

type blockingText struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	release  chan struct{}
}

func (b *blockingText) Classify(ctx context.Context, text string) (decision.ScoreMap, error) {
	current := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		peak := b.peak.Load()
		if current <= peak || b.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	<-b.release
	return decision.ScoreMap{"suicidal": 0.1}, nil
}

func TestLimitTextBoundsConcurrency(t *testing.T) {
	inner := &blockingText{release: make(chan struct{})}
	limited := LimitText(inner, NewLimiter(2))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := limited.Classify(context.Background(), "hello"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	if peak := inner.peak.Load(); peak > 2 {
		t.Fatalf("expected at most 2 concurrent calls, got %d", peak)
	}
}

type stubEmotion struct{}

func (stubEmotion) Classify(ctx context.Context, input Tensor) ([]float64, error) {
	return []float64{1}, nil
}

func TestLimitEmotionRespectsContext(t *testing.T) {
	limiter := NewLimiter(1)
	release, err := limiter.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = LimitEmotion(stubEmotion{}, limiter).Classify(ctx, Tensor{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewLimiterWithoutBound(t *testing.T) {
	scores, err := LimitEmotion(stubEmotion{}, NewLimiter(0)).Classify(context.Background(), Tensor{})
	if err != nil || len(scores) != 1 {
		t.Fatalf("expected passthrough, got %v %v", scores, err)
	}
}
