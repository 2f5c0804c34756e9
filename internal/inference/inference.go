package inference

import (
	"context"
	"image"

	"github.com/example/mood-check/internal/decision"
)

// Tensor is a single normalized image laid out as height x width x channels.
// Each request owns its tensor; implementations must not retain Data after returning.
type Tensor struct {
	Width    int
	Height   int
	Channels int
	Data     []float32
}

// FaceDetector finds candidate faces. An empty result is not an error.
type FaceDetector interface {
	Detect(ctx context.Context, img image.Image) ([]decision.Detection, error)
}

// EmotionClassifier returns one raw score per decision.EmotionLabels entry, in that order.
type EmotionClassifier interface {
	Classify(ctx context.Context, input Tensor) ([]float64, error)
}

// TextClassifier scores text against the mental state labels it was trained on.
type TextClassifier interface {
	Classify(ctx context.Context, text string) (decision.ScoreMap, error)
}
