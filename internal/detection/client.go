package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kdimtricp/pestscan/internal/models"
)

// Result is the detection function's answer for one uploaded artifact.
type Result struct {
	ReportID        string
	DetectionsCount int
}

// Client invokes the hosted detect-pest function.
type Client struct {
	functionsURL string
	apiKey       string
	httpClient   *http.Client
}

func NewClient(functionsURL, apiKey string) *Client {
	return &Client{
		functionsURL: strings.TrimRight(functionsURL, "/"),
		apiKey:       apiKey,
		// no timeout: a slow detection run is bounded only by the caller
		httpClient: &http.Client{},
	}
}

type detectRequest struct {
	ImageURL string `json:"imageUrl"`
	ScanType string `json:"scanType"`
}

type detectResponse struct {
	ReportID        string            `json:"reportId"`
	DetectionsCount *int              `json:"detectionsCount"`
	Detections      []json.RawMessage `json:"detections"`
	Error           string            `json:"error"`
	Message         string            `json:"message"`
}

func (c *Client) SubmitScan(ctx context.Context, imageURL string, scanType models.ScanType) (*Result, error) {
	jsonData, err := json.Marshal(detectRequest{ImageURL: imageURL, ScanType: string(scanType)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.functionsURL+"/detect-pest", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var dr detectResponse
	jsonErr := json.Unmarshal(body, &dr)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		switch {
		case jsonErr == nil && dr.Error != "":
			return nil, fmt.Errorf("%s", dr.Error)
		case jsonErr == nil && dr.Message != "":
			return nil, fmt.Errorf("%s", dr.Message)
		case len(bytes.TrimSpace(body)) > 0 && jsonErr != nil:
			return nil, fmt.Errorf("%s", strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("detection function returned status %d", resp.StatusCode)
	}

	if jsonErr != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", jsonErr)
	}
	if dr.ReportID == "" {
		return nil, fmt.Errorf("detection response missing reportId")
	}

	result := &Result{ReportID: dr.ReportID, DetectionsCount: len(dr.Detections)}
	if dr.DetectionsCount != nil && *dr.DetectionsCount > 0 {
		result.DetectionsCount = *dr.DetectionsCount
	}
	return result, nil
}
