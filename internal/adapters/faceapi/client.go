// Package faceapi implements the face comparison and detection primitives as
// a client of an external face service. The service owns the models; this
// client only moves bytes and reads back distances and counts.
package faceapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/echofi/kyc-service/config"
	"github.com/echofi/kyc-service/internal/domain/biometric"
)

// Client calls the face service. It implements biometric.FaceComparer and
// biometric.FaceDetector.
type Client struct {
	compareURL       string
	detectURL        string
	client           *http.Client
	defaultThreshold float64
}

// Options configures a Client.
type Options struct {
	Config config.MLConfig
	Client *http.Client

	// DefaultThreshold is the match cut-off used when the face service
	// reports a distance but no threshold of its own.
	DefaultThreshold float64
}

// NewClient builds a face service client from configuration.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.Config.FaceAPIBase), "/")
	if base == "" {
		return nil, errors.New("face api base url is required")
	}

	timeout := opts.Config.FaceAPITimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc := opts.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		compareURL:       base + "/v1/compare",
		detectURL:        base + "/v1/detect",
		client:           hc,
		defaultThreshold: opts.DefaultThreshold,
	}, nil
}

type compareRequest struct {
	Document string `json:"document"`
	Selfie   string `json:"selfie"`
}

type compareResponse struct {
	Distance  float64 `json:"distance"`
	Threshold float64 `json:"threshold"`
}

// Compare submits the document portrait and the selfie and returns the
// embedding distance reported by the face service.
func (c *Client) Compare(ctx context.Context, document, selfie []byte) (biometric.Comparison, error) {
	req := compareRequest{
		Document: base64.StdEncoding.EncodeToString(document),
		Selfie:   base64.StdEncoding.EncodeToString(selfie),
	}

	var resp compareResponse
	if err := c.post(ctx, c.compareURL, req, &resp); err != nil {
		return biometric.Comparison{}, fmt.Errorf("compare faces: %w", err)
	}
	threshold := resp.Threshold
	if threshold <= 0 {
		threshold = c.defaultThreshold
	}
	if threshold <= 0 {
		return biometric.Comparison{}, errors.New("face service returned no match threshold")
	}

	return biometric.Comparison{Distance: resp.Distance, Threshold: threshold}, nil
}

type detectRequest struct {
	Image string `json:"image"`
}

type detectResponse struct {
	Faces int `json:"faces"`
	Eyes  int `json:"eyes"`
}

// CountFaces returns the number of faces the service finds in the image.
func (c *Client) CountFaces(ctx context.Context, img []byte) (int, error) {
	resp, err := c.detect(ctx, img)
	if err != nil {
		return 0, err
	}
	return resp.Faces, nil
}

// CountEyes returns the number of eyes the service finds in the image.
func (c *Client) CountEyes(ctx context.Context, img []byte) (int, error) {
	resp, err := c.detect(ctx, img)
	if err != nil {
		return 0, err
	}
	return resp.Eyes, nil
}

func (c *Client) detect(ctx context.Context, img []byte) (detectResponse, error) {
	req := detectRequest{Image: base64.StdEncoding.EncodeToString(img)}

	var resp detectResponse
	if err := c.post(ctx, c.detectURL, req, &resp); err != nil {
		return detectResponse{}, fmt.Errorf("detect faces: %w", err)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("face service request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("face service %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var (
	_ biometric.FaceComparer = (*Client)(nil)
	_ biometric.FaceDetector = (*Client)(nil)
)
