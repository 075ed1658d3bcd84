// Package yolosrv talks to a detection inference server over its JSON REST
// API. The server owns the model weights and the GPU; this side only ships
// images and reads boxes back.
package yolosrv

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"geodetect/pkg/types"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// loadRequest asks the server to load (or confirm) a model.
type loadRequest struct {
	Model string `json:"model"`
}

type loadResponse struct {
	Model string            `json:"model"`
	Names map[string]string `json:"names"`
	Error string            `json:"error,omitempty"`
}

type predictRequest struct {
	Model     string  `json:"model"`
	Image     string  `json:"image"` // base64-encoded raster
	ImageSize int     `json:"imgsz"`
	Conf      float64 `json:"conf"`
	IoU       float64 `json:"iou"`
	Classes   []int   `json:"classes,omitempty"`
	MaxDet    int     `json:"max_det"`
}

type predictResponse struct {
	Detections []types.Detection `json:"detections"`
	Error      string            `json:"error,omitempty"`
}

// NewClient creates a client for the given server URL and model identifier.
// Predict calls carry no timeout: inference on very large tiles is a
// blocking step of unbounded duration in the single-worker design.
func NewClient(serverURL, model string) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:8093"
	}
	return &Client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		model:      model,
		httpClient: &http.Client{},
	}, nil
}

// Load asks the server to load the model and returns its class-label map.
func (c *Client) Load(ctx context.Context) (map[int]string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
	}

	respBody, err := c.sendRequest(ctx, "/v1/models/load", loadRequest{Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", c.model, err)
	}

	var resp loadResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse load response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("load model %s: %s", c.model, resp.Error)
	}

	names := make(map[int]string, len(resp.Names))
	for k, v := range resp.Names {
		id, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		names[id] = v
	}
	return names, nil
}

// Predict sends one image for inference and returns the raw detections.
func (c *Client) Predict(ctx context.Context, imagePath string, params types.PredictParams) ([]types.Detection, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	req := predictRequest{
		Model:     c.model,
		Image:     base64.StdEncoding.EncodeToString(data),
		ImageSize: params.ImageSize,
		Conf:      params.Conf,
		IoU:       params.IoU,
		Classes:   params.Classes,
		MaxDet:    params.MaxDet,
	}

	respBody, err := c.sendRequest(ctx, "/v1/predict", req)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	var resp predictResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse predict response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("predict: %s", resp.Error)
	}
	return resp.Detections, nil
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
