package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"agriguardian/internal/config"
	"agriguardian/internal/models"
)

const (
	InputSize       = 224
	PlaceholderName = "placeholder"
)

var ErrEmptyImage = errors.New("empty image body")

// Tensor is one HWC image with channels scaled to [0,1].
type Tensor [][][]float32

// Model scores a tensor over the disease label set.
type Model interface {
	Predict(ctx context.Context, input Tensor) ([]float32, error)
	Name() string
}

type Prediction struct {
	Label      string  `json:"label"`
	Index      int     `json:"index"`
	Confidence float32 `json:"confidence"`
	Model      string  `json:"model"`
	Stub       bool    `json:"stub"`
}

type Classifier struct {
	model Model
	stub  bool
}

// New probes the served model and falls back to the random stub when it is unreachable.
func New(ctx context.Context, cfg *config.ClassifierConfig) *Classifier {
	if cfg.URL == "" {
		log.Warn().Msg("No classifier url configured, using placeholder model")
		return NewWithModel(NewRandomModel(), true)
	}
	served := NewTFServing(cfg.URL, cfg.Model)
	if err := served.Probe(ctx); err != nil {
		log.Error().Err(err).Str("url", cfg.URL).Msg("Error loading disease classification model")
		return NewWithModel(NewRandomModel(), true)
	}
	log.Info().Str("model", cfg.Model).Msg("Disease classification model ready")
	return NewWithModel(served, false)
}

func NewWithModel(model Model, stub bool) *Classifier {
	return &Classifier{model: model, stub: stub}
}

// Stub reports whether predictions come from the placeholder model.
func (c *Classifier) Stub() bool {
	return c.stub
}

func (c *Classifier) Classify(ctx context.Context, img image.Image) (Prediction, error) {
	scores, err := c.model.Predict(ctx, Preprocess(img))
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	if len(scores) != len(models.DiseaseLabels) {
		return Prediction{}, fmt.Errorf("predict: got %d scores, want %d", len(scores), len(models.DiseaseLabels))
	}

	best := argmax(scores)
	return Prediction{
		Label:      models.DiseaseLabels[best],
		Index:      best,
		Confidence: scores[best],
		Model:      c.model.Name(),
		Stub:       c.stub,
	}, nil
}

// argmax returns the first index of the highest score.
func argmax(scores []float32) int {
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	return best
}

// Decode reads a JPEG, PNG or WebP image.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Preprocess resizes to InputSize square and scales RGB channels to [0,1]. Alpha is
// dropped without premultiplying.
func Preprocess(img image.Image) Tensor {
	dst := image.NewNRGBA(image.Rect(0, 0, InputSize, InputSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	t := make(Tensor, InputSize)
	for y := 0; y < InputSize; y++ {
		row := make([][]float32, InputSize)
		for x := 0; x < InputSize; x++ {
			i := dst.PixOffset(x, y)
			row[x] = []float32{
				float32(dst.Pix[i]) / 255,
				float32(dst.Pix[i+1]) / 255,
				float32(dst.Pix[i+2]) / 255,
			}
		}
		t[y] = row
	}
	return t
}

// EncodeDataURL re-encodes img as a base64 JPEG data URL.
func EncodeDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// TFServing calls a model hosted by TensorFlow Serving over its REST API.
type TFServing struct {
	client *resty.Client
	model  string
}

func NewTFServing(baseURL, model string) *TFServing {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)
	return &TFServing{client: client, model: model}
}

func (m *TFServing) Name() string { return m.model }

// Probe checks the model status endpoint.
func (m *TFServing) Probe(ctx context.Context) error {
	resp, err := m.client.R().SetContext(ctx).Get("/v1/models/" + url.PathEscape(m.model))
	if err != nil {
		return fmt.Errorf("probe model: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("probe model: status %d", resp.StatusCode())
	}
	return nil
}

func (m *TFServing) Predict(ctx context.Context, input Tensor) ([]float32, error) {
	var body struct {
		Predictions [][]float32 `json:"predictions"`
	}
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"instances": []Tensor{input}}).
		SetResult(&body).
		Post("/v1/models/" + url.PathEscape(m.model) + ":predict")
	if err != nil {
		return nil, fmt.Errorf("tf serving predict: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tf serving predict: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(body.Predictions) == 0 {
		return nil, errors.New("tf serving predict: no predictions")
	}
	return body.Predictions[0], nil
}

// RandomModel returns uniform random scores.
type RandomModel struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomModel() *RandomModel {
	return &RandomModel{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

func (m *RandomModel) Name() string { return PlaceholderName }

func (m *RandomModel) Predict(_ context.Context, _ Tensor) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	scores := make([]float32, len(models.DiseaseLabels))
	for i := range scores {
		scores[i] = m.rng.Float32()
	}
	return scores, nil
}
