package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPStorage talks to the hosted object storage REST API.
type HTTPStorage struct {
	baseURL    string
	bucket     string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPStorage(baseURL, bucket, apiKey string) *HTTPStorage {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &HTTPStorage{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bucket:     bucket,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type storageError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func (s *HTTPStorage) Upload(ctx context.Context, key, contentType string, r io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(key), r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	s.authorize(req)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Cache-Control", "max-age=3600")
	req.Header.Set("x-upsert", "false")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeStorageError(resp)
	}
	return nil
}

func (s *HTTPStorage) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, url.PathEscape(key))
}

func (s *HTTPStorage) objectURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, url.PathEscape(key))
}

func (s *HTTPStorage) authorize(req *http.Request) {
	if s.apiKey == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("apikey", s.apiKey)
}

// decodeStorageError returns the storage service's own message untouched so
// it can be shown to the user as-is.
func decodeStorageError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var se storageError
	if err := json.Unmarshal(body, &se); err == nil {
		if se.Message != "" {
			return errors.New(se.Message)
		}
		if se.Error != "" {
			return errors.New(se.Error)
		}
	}
	if len(body) > 0 {
		return errors.New(strings.TrimSpace(string(body)))
	}
	return fmt.Errorf("storage returned status %d", resp.StatusCode)
}
