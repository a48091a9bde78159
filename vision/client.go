package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client talks to the vision and extraction-model services. Both are plain
// HTTP black boxes; all calls are sequential/blocking per statement, with a
// shared rate limiter tick.
type Client struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

func NewClient() (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("EXTRACTION_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("EXTRACTION_API_BASE_URL is required")
	}
	apiKey := strings.TrimSpace(os.Getenv("EXTRACTION_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("EXTRACTION_API_KEY is empty")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("EXTRACTION_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv("EXTRACTION_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 120 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, dest any) error {
	<-c.limiter
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("extraction api error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return json.Unmarshal(respBody, dest)
}

type imageRequest struct {
	Image string `json:"image"`
}

type extractRequest struct {
	Image   string          `json:"image"`
	RawText string          `json:"raw_text,omitempty"`
	Scope   ExtractionScope `json:"scope,omitempty"`
}

// Recognize runs the vision pass: raw text + word bounding boxes.
func (c *Client) Recognize(ctx context.Context, image []byte) (*VisionResult, error) {
	var result VisionResult
	err := c.post(ctx, "/v1/vision/recognize", imageRequest{Image: base64.StdEncoding.EncodeToString(image)}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ExtractDraft runs the primary structured extraction, cross-referencing the
// raw vision text when available.
func (c *Client) ExtractDraft(ctx context.Context, image []byte, rawText string, scope ExtractionScope) (*Draft, error) {
	var draft Draft
	err := c.post(ctx, "/v1/extract/draft", extractRequest{
		Image:   base64.StdEncoding.EncodeToString(image),
		RawText: rawText,
		Scope:   scope,
	}, &draft)
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

// ExtractNumbers is the numbers-only secondary pass: extra order-number
// strings for low-confidence primaries.
func (c *Client) ExtractNumbers(ctx context.Context, image []byte) ([]string, error) {
	var result struct {
		Numbers []string `json:"numbers"`
	}
	err := c.post(ctx, "/v1/extract/numbers", imageRequest{Image: base64.StdEncoding.EncodeToString(image)}, &result)
	if err != nil {
		return nil, err
	}
	return result.Numbers, nil
}

// ExtractBrackets is the bracket-mapping auxiliary pass.
func (c *Client) ExtractBrackets(ctx context.Context, image []byte) ([]BracketMapping, error) {
	var result struct {
		Brackets []BracketMapping `json:"brackets"`
	}
	err := c.post(ctx, "/v1/extract/brackets", imageRequest{Image: base64.StdEncoding.EncodeToString(image)}, &result)
	if err != nil {
		return nil, err
	}
	return result.Brackets, nil
}

// ExtractMarginRanges is the margin-range auxiliary pass.
func (c *Client) ExtractMarginRanges(ctx context.Context, image []byte) ([]MarginRange, error) {
	var result struct {
		Ranges []MarginRange `json:"ranges"`
	}
	err := c.post(ctx, "/v1/extract/margins", imageRequest{Image: base64.StdEncoding.EncodeToString(image)}, &result)
	if err != nil {
		return nil, err
	}
	return result.Ranges, nil
}
