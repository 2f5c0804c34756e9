package grpcclient

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/mood-check/internal/decision"
	"github.com/example/mood-check/internal/inference"
	"github.com/example/mood-check/internal/logging"
)

const (
	serviceName = "moodcheck.inference.v1.ModelService"

	methodDetectFaces     = "/" + serviceName + "/DetectFaces"
	methodClassifyEmotion = "/" + serviceName + "/ClassifyEmotion"
	methodClassifyText    = "/" + serviceName + "/ClassifyText"

	// TensorShapeKey carries "height,width,channels" alongside a raw tensor payload.
	TensorShapeKey = "x-tensor-shape"
)

// ModelServer talks to the model-serving process. The underlying connection is safe
// for concurrent use; admission control is left to inference.Limiter.
type ModelServer struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

var (
	_ inference.FaceDetector      = (*ModelServer)(nil)
	_ inference.EmotionClassifier = (*ModelServer)(nil)
	_ inference.TextClassifier    = textClassifier{}
)

// DialModelServer returns a ready-to-use client for the model server.
func DialModelServer(ctx context.Context, addr string, logger *zap.Logger) (*ModelServer, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_model_server", "", err)
		logger.Error("failed to dial model server", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewModelServer(conn, logger), conn, nil
}

// NewModelServer wraps an existing connection.
func NewModelServer(conn grpc.ClientConnInterface, logger *zap.Logger) *ModelServer {
	return &ModelServer{conn: conn, logger: logger.Named("model_server")}
}

// Detect sends the image as PNG and returns the detector's boxes in pixel coordinates.
func (m *ModelServer) Detect(ctx context.Context, img image.Image) ([]decision.Detection, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, logging.NewOperationError("grpcclient.encode_image", "", err)
	}

	resp := &structpb.ListValue{}
	if err := m.conn.Invoke(ctx, methodDetectFaces, wrapperspb.Bytes(buf.Bytes()), resp); err != nil {
		return nil, m.fail("grpcclient.detect_faces", err)
	}
	detections, err := detectionsFromList(resp)
	if err != nil {
		return nil, m.fail("grpcclient.decode_detections", err)
	}
	return detections, nil
}

// Classify sends the tensor as little-endian float32 and returns raw class scores.
func (m *ModelServer) Classify(ctx context.Context, input inference.Tensor) ([]float64, error) {
	payload := make([]byte, 4*len(input.Data))
	for i, v := range input.Data {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(v))
	}
	shape := strconv.Itoa(input.Height) + "," + strconv.Itoa(input.Width) + "," + strconv.Itoa(input.Channels)
	ctx = metadata.AppendToOutgoingContext(ctx, TensorShapeKey, shape)

	resp := &structpb.ListValue{}
	if err := m.conn.Invoke(ctx, methodClassifyEmotion, wrapperspb.Bytes(payload), resp); err != nil {
		return nil, m.fail("grpcclient.classify_emotion", err)
	}
	scores := make([]float64, 0, len(resp.GetValues()))
	for _, v := range resp.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, m.fail("grpcclient.decode_emotion_scores", fmt.Errorf("non-numeric score %v", v))
		}
		scores = append(scores, n.NumberValue)
	}
	return scores, nil
}

// TextClassifier exposes the text model. ModelServer cannot implement both
// Classify signatures directly.
func (m *ModelServer) TextClassifier() inference.TextClassifier {
	return textClassifier{m}
}

type textClassifier struct{ m *ModelServer }

func (t textClassifier) Classify(ctx context.Context, text string) (decision.ScoreMap, error) {
	return t.m.ClassifyText(ctx, text)
}

// ClassifyText returns the label scores for text.
func (m *ModelServer) ClassifyText(ctx context.Context, text string) (decision.ScoreMap, error) {
	resp := &structpb.Struct{}
	if err := m.conn.Invoke(ctx, methodClassifyText, wrapperspb.String(text), resp); err != nil {
		return nil, m.fail("grpcclient.classify_text", err)
	}
	raw := make(map[string]float64, len(resp.GetFields()))
	for label, v := range resp.GetFields() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, m.fail("grpcclient.decode_text_scores", fmt.Errorf("non-numeric score for %q", label))
		}
		raw[label] = n.NumberValue
	}
	scores, err := decision.NewScoreMap(raw)
	if err != nil {
		return nil, m.fail("grpcclient.decode_text_scores", err)
	}
	return scores, nil
}

func (m *ModelServer) fail(operation string, err error) error {
	wrapped := logging.NewOperationError(operation, "", err)
	m.logger.Error("model server call failed", zap.Error(wrapped))
	return wrapped
}

func detectionsFromList(list *structpb.ListValue) ([]decision.Detection, error) {
	detections := make([]decision.Detection, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("detection %d is not an object", i)
		}
		fields := s.GetFields()
		detections = append(detections, decision.Detection{
			Box: decision.BoundingBox{
				X:      int(fields["x"].GetNumberValue()),
				Y:      int(fields["y"].GetNumberValue()),
				Width:  int(fields["width"].GetNumberValue()),
				Height: int(fields["height"].GetNumberValue()),
			},
			Score: fields["score"].GetNumberValue(),
		})
	}
	return detections, nil
}
