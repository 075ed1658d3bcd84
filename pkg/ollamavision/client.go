// Package ollamavision implements the detection backend on top of a local
// Ollama vision model. The model is prompted for a JSON array of boxes;
// useful for experiments without a dedicated inference server, at a
// fraction of the throughput.
package ollamavision

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/ollama/ollama/api"

	"geodetect/pkg/types"
)

// detectPrompt demands machine-readable output; anything else is rejected
// by the parser below.
const detectPrompt = `You are an aerial-imagery object detector.

Return JSON only: an array of detections
[{"box":[x1,y1,x2,y2],"class_id":0,"confidence":0.0}]

HARD RULES
- Coordinates are normalized to [0,1], top-left origin, x2>=x1 and y2>=y1.
- class_id 0 means an abnormal object, 1 means a normal object.
- confidence is in [0,1].
- Return [] when nothing is found.
- JSON only. No markdown, no code fences, no comments.`

type Client struct {
	client *api.Client
	model  string
	labels map[int]string
}

// NewClient creates an Ollama-backed predictor. The labels map stands in
// for the class-name table a trained detector would carry.
func NewClient(ollamaURL, model string, labels map[int]string) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{
		client: api.NewClient(baseURL, http.DefaultClient),
		model:  model,
		labels: labels,
	}, nil
}

// Load verifies the model is present on the Ollama host.
func (c *Client) Load(ctx context.Context) (map[int]string, error) {
	if _, err := c.client.Show(ctx, &api.ShowRequest{Model: c.model}); err != nil {
		return nil, fmt.Errorf("model %s not available: %w", c.model, err)
	}
	return c.labels, nil
}

// Predict sends the raster to the vision model and parses the JSON
// detection array out of its reply, scaling normalized coordinates back to
// pixel space.
func (c *Client) Predict(ctx context.Context, imagePath string, params types.PredictParams) ([]types.Detection, error) {
	imgBytes, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	width, height, err := imageDims(imagePath)
	if err != nil {
		return nil, err
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: detectPrompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream: &streamFalse,
	}

	var responseContent string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent = resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %w", err)
	}

	dets, err := parseDetections(responseContent)
	if err != nil {
		return nil, err
	}

	out := make([]types.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence < params.Conf {
			continue
		}
		out = append(out, types.Detection{
			Box: [4]float64{
				d.Box[0] * float64(width),
				d.Box[1] * float64(height),
				d.Box[2] * float64(width),
				d.Box[3] * float64(height),
			},
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
		})
		if params.MaxDet > 0 && len(out) >= params.MaxDet {
			break
		}
	}
	return out, nil
}

var codeFence = regexp.MustCompile("(?s)```(?:json)?(.*?)```")

// parseDetections extracts the JSON array from a model reply that may wrap
// it in prose or markdown fences.
func parseDetections(raw string) ([]types.Detection, error) {
	raw = strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(raw); m != nil {
		raw = strings.TrimSpace(m[1])
	}
	if start := strings.Index(raw, "["); start >= 0 {
		if end := strings.LastIndex(raw, "]"); end > start {
			raw = raw[start : end+1]
		}
	}

	var dets []types.Detection
	if err := json.Unmarshal([]byte(raw), &dets); err != nil {
		return nil, fmt.Errorf("non-JSON model reply: %w", err)
	}
	return dets, nil
}

func imageDims(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
