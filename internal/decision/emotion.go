package decision

import (
	"errors"
	"fmt"
	"math"
)

// NoFaceDetected is the label reported when no usable face was found.
const NoFaceDetected = "no_face_detected"

const (
	// DefaultTemperature sharpens the classifier distribution towards its top class.
	DefaultTemperature = 0.5
	sharpenEpsilon     = 1e-8
)

// EmotionLabels is the index order of the emotion classifier output. It must match
// the order the model was trained with.
var EmotionLabels = [...]string{"angry", "disgust", "fear", "happy", "neutral", "sad", "surprise"}

// ErrScoreLength is returned when a classifier vector does not line up with EmotionLabels.
var ErrScoreLength = errors.New("score vector length mismatch")

// EmotionResult is the decision for one image.
type EmotionResult struct {
	Label      string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
}

// NoFaceResult is returned when the image path short-circuits before classification.
func NoFaceResult() EmotionResult {
	return EmotionResult{Label: NoFaceDetected}
}

// EmotionDecider turns raw classifier output into a label and confidence.
type EmotionDecider struct {
	Temperature float64
}

// NewEmotionDecider returns a decider using DefaultTemperature.
func NewEmotionDecider() EmotionDecider {
	return EmotionDecider{Temperature: DefaultTemperature}
}

// Sharpen rescales raw as exp(ln(p+eps)/T) and renormalizes the result. The
// exponent is shifted by its maximum so small temperatures do not underflow.
// raw must be finite and non-negative; Decide checks that before calling.
func (d EmotionDecider) Sharpen(raw []float64) []float64 {
	t := d.Temperature
	if t <= 0 {
		t = DefaultTemperature
	}

	out := make([]float64, len(raw))
	if len(raw) == 0 {
		return out
	}

	maxLogit := math.Inf(-1)
	for i, p := range raw {
		out[i] = math.Log(p+sharpenEpsilon) / t
		if out[i] > maxLogit {
			maxLogit = out[i]
		}
	}

	var sum float64
	for i := range out {
		out[i] = math.Exp(out[i] - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Decide sharpens raw and returns the first argmax label with its sharpened score.
// A vector holding NaN, an infinity or a negative value is rejected with
// ErrInvalidScore rather than mapped to a label.
func (d EmotionDecider) Decide(raw []float64) (EmotionResult, error) {
	if len(raw) != len(EmotionLabels) {
		return EmotionResult{}, fmt.Errorf("%w: got %d, want %d", ErrScoreLength, len(raw), len(EmotionLabels))
	}
	for i, p := range raw {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return EmotionResult{}, fmt.Errorf("%w: %s=%v", ErrInvalidScore, EmotionLabels[i], p)
		}
	}

	sharpened := d.Sharpen(raw)
	best := 0
	for i := 1; i < len(sharpened); i++ {
		if sharpened[i] > sharpened[best] {
			best = i
		}
	}

	return EmotionResult{
		Label:      EmotionLabels[best],
		Confidence: math.Min(1, math.Max(0, sharpened[best])),
	}, nil
}
