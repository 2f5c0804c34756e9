package preprocess

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestDecodeImageAcceptsDataURL(t *testing.T) {
	encoded := encodePNG(t, solid(12, 8, color.NRGBA{R: 200, A: 255}))

	img, err := DecodeImage("data:image/png;base64,"+encoded, DefaultMaxPixels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Bounds().Dx() != 12 || img.Bounds().Dy() != 8 {
		t.Fatalf("unexpected bounds: %v", img.Bounds())
	}
}

func TestDecodeImageAcceptsBareBase64(t *testing.T) {
	encoded := encodePNG(t, solid(3, 3, color.NRGBA{G: 10, A: 255}))
	if _, err := DecodeImage(encoded, DefaultMaxPixels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeImageErrors(t *testing.T) {
	if _, err := DecodeImage("  ", DefaultMaxPixels); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
	if _, err := DecodeImage("data:image/png;base64,", DefaultMaxPixels); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload for empty data URL, got %v", err)
	}
	if _, err := DecodeImage("***", DefaultMaxPixels); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
	notImage := base64.StdEncoding.EncodeToString([]byte("plain text"))
	if _, err := DecodeImage(notImage, DefaultMaxPixels); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("expected ErrUnsupportedImage, got %v", err)
	}
}

// pngHeader returns a PNG signature and IHDR chunk declaring w x h RGBA pixels,
// with no image data behind it.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecodeImageRejectsOversizedHeader(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString(pngHeader(20000, 20000))

	_, err := DecodeImage("data:image/png;base64,"+payload, DefaultMaxPixels)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
}

func TestDecodeImagePixelBudgetIsConfigurable(t *testing.T) {
	encoded := encodePNG(t, solid(10, 10, color.NRGBA{R: 1, A: 255}))

	if _, err := DecodeImage(encoded, 99); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge for 100 pixels over a 99 budget, got %v", err)
	}
	if _, err := DecodeImage(encoded, 100); err != nil {
		t.Fatalf("expected image at the budget to decode, got %v", err)
	}
	if _, err := DecodeImage(encoded, 0); err != nil {
		t.Fatalf("expected a zero budget to disable the check, got %v", err)
	}
}

func TestCropFaceRebasesRegion(t *testing.T) {
	img := solid(50, 40, color.NRGBA{B: 255, A: 255})
	cropped := CropFace(img, image.Rect(10, 5, 30, 25))
	if cropped.Bounds() != image.Rect(0, 0, 20, 20) {
		t.Fatalf("unexpected bounds: %v", cropped.Bounds())
	}
}

func TestToTensorShapeAndNormalization(t *testing.T) {
	img := solid(10, 20, color.NRGBA{R: 255, G: 0, B: 51, A: 255})

	raw := ToTensor(img, 4, NormalizeEfficientNet)
	if raw.Width != 4 || raw.Height != 4 || raw.Channels != 3 || len(raw.Data) != 48 {
		t.Fatalf("unexpected tensor shape: %dx%dx%d len=%d", raw.Width, raw.Height, raw.Channels, len(raw.Data))
	}
	if raw.Data[0] != 255 || raw.Data[1] != 0 || raw.Data[2] != 51 {
		t.Fatalf("unexpected raw pixel: %v", raw.Data[:3])
	}

	unit := ToTensor(img, 4, NormalizeUnit)
	if math.Abs(float64(unit.Data[2])-0.2) > 1e-6 {
		t.Fatalf("expected unit scaling, got %v", unit.Data[2])
	}

	imagenet := ToTensor(img, 4, NormalizeImageNet)
	want := (1 - 0.485) / 0.229
	if math.Abs(float64(imagenet.Data[0])-want) > 1e-4 {
		t.Fatalf("expected imagenet standardization %v, got %v", want, imagenet.Data[0])
	}
}

func TestToTensorAllocatesPerCall(t *testing.T) {
	img := solid(4, 4, color.NRGBA{R: 1, A: 255})
	a := ToTensor(img, 2, NormalizeEfficientNet)
	b := ToTensor(img, 2, NormalizeEfficientNet)
	a.Data[0] = 99
	if b.Data[0] == 99 {
		t.Fatal("expected independent buffers")
	}
}

func TestParseNormalization(t *testing.T) {
	if n, err := ParseNormalization(""); err != nil || n != NormalizeEfficientNet {
		t.Fatalf("expected default efficientnet, got %v %v", n, err)
	}
	if n, err := ParseNormalization("ImageNet"); err != nil || n != NormalizeImageNet {
		t.Fatalf("expected imagenet, got %v %v", n, err)
	}
	if _, err := ParseNormalization("zscore"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
