package preprocess

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/example/mood-check/internal/inference"
)

const (
	// DefaultInputSize is the square input resolution of the emotion model.
	DefaultInputSize = 224
	// DefaultMaxPixels bounds decoded image area, checked from the header before decoding.
	DefaultMaxPixels = 25_000_000
)

var (
	// ErrEmptyPayload is returned when no image data was supplied.
	ErrEmptyPayload = errors.New("image payload is empty")
	// ErrInvalidEncoding is returned when the payload is not valid base64.
	ErrInvalidEncoding = errors.New("image payload is not valid base64")
	// ErrUnsupportedImage is returned when the bytes do not decode as a known format.
	ErrUnsupportedImage = errors.New("image format is not supported")
	// ErrImageTooLarge is returned when the declared dimensions exceed the pixel budget.
	ErrImageTooLarge = errors.New("image dimensions exceed the pixel budget")
)

// Normalization selects how pixel values are scaled before inference.
type Normalization string

const (
	// NormalizeEfficientNet keeps raw [0,255] values; EfficientNet rescales inside the graph.
	NormalizeEfficientNet Normalization = "efficientnet"
	// NormalizeUnit scales to [0,1].
	NormalizeUnit Normalization = "unit"
	// NormalizeImageNet scales to [0,1] then standardizes with ImageNet channel statistics.
	NormalizeImageNet Normalization = "imagenet"
)

var (
	imageNetMean = [3]float32{0.485, 0.456, 0.406}
	imageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// ParseNormalization validates a configured normalization mode.
func ParseNormalization(s string) (Normalization, error) {
	switch n := Normalization(strings.ToLower(strings.TrimSpace(s))); n {
	case "":
		return NormalizeEfficientNet, nil
	case NormalizeEfficientNet, NormalizeUnit, NormalizeImageNet:
		return n, nil
	default:
		return "", fmt.Errorf("unknown normalization %q", s)
	}
}

// DecodeImage decodes a data URL ("data:image/png;base64,...") or bare base64 string.
// Images whose header declares more than maxPixels pixels are rejected before any
// pixel data is allocated; maxPixels <= 0 disables the check.
func DecodeImage(payload string, maxPixels int) (image.Image, error) {
	payload = strings.TrimSpace(payload)
	if i := strings.IndexByte(payload, ','); i >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[i+1:]
	}
	if payload == "" {
		return nil, ErrEmptyPayload
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return img, nil
}

// CropFace cuts rect out of img. The result is rebased to a (0,0) origin.
func CropFace(img image.Image, rect image.Rectangle) image.Image {
	return imaging.Crop(img, rect)
}

// ToTensor resizes img to size x size and returns a freshly allocated RGB tensor.
func ToTensor(img image.Image, size int, norm Normalization) inference.Tensor {
	if size <= 0 {
		size = DefaultInputSize
	}
	resized := imaging.Resize(img, size, size, imaging.CatmullRom)

	tensor := inference.Tensor{
		Width:    size,
		Height:   size,
		Channels: 3,
		Data:     make([]float32, size*size*3),
	}
	i := 0
	for y := 0; y < size; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < size; x++ {
			px := row[x*4 : x*4+3]
			for c := 0; c < 3; c++ {
				tensor.Data[i] = normalize(float32(px[c]), c, norm)
				i++
			}
		}
	}
	return tensor
}

func normalize(v float32, channel int, norm Normalization) float32 {
	switch norm {
	case NormalizeUnit:
		return v / 255
	case NormalizeImageNet:
		return (v/255 - imageNetMean[channel]) / imageNetStd[channel]
	default:
		return v
	}
}
