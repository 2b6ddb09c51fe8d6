package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/amara-nwosu/docscan/constants"
	"github.com/amara-nwosu/docscan/internal/entity"
	"github.com/amara-nwosu/docscan/internal/provider"
)

// Config holds remote OCR provider configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the remote OCR service. All provider-specific parsing
// lives here; nothing outside this package sees the wire format.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type analyzeRequest struct {
	Document string `json:"document"` // base64 image bytes
	Kind     string `json:"kind"`
	Filename string `json:"filename,omitempty"`
}

type analyzeField struct {
	Type       string  `json:"type"`
	Value      any     `json:"value"`
	Confidence float32 `json:"confidence"`
}

type analyzeLineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
	Confidence  float32 `json:"confidence"`
}

type analyzeResponse struct {
	Fields    map[string]analyzeField `json:"fields"`
	LineItems []analyzeLineItem       `json:"line_items"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Extract(ctx context.Context, req provider.Request) (*provider.Result, error) {
	body := analyzeRequest{
		Document: base64.StdEncoding.EncodeToString(req.Data),
		Kind:     string(req.Kind),
		Filename: req.Filename,
	}

	raw, status, err := c.post(ctx, "/v1/analyze", body)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, provider.NewError(constants.ErrCodeTimeout, "provider call timed out")
		}
		return nil, provider.NewError(constants.ErrCodeNetwork, err.Error())
	}
	if status/100 != 2 {
		return nil, c.errorFromResponse(status, raw)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, provider.NewError(constants.ErrCodeInternalError, fmt.Sprintf("malformed response: %v", err))
	}
	if err := compiledResponseSchema.Validate(generic); err != nil {
		c.logger.Error("ocr.response.schema_violation", "error", err)
		return nil, provider.NewError(constants.ErrCodeInternalError, "response failed schema validation")
	}

	var resp analyzeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, provider.NewError(constants.ErrCodeInternalError, fmt.Sprintf("decode response: %v", err))
	}
	return c.toResult(resp)
}

// post sends one JSON request to the provider and hands back the raw body
// and status code untouched. Interpretation of both belongs to the caller.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	reqID := uuid.NewString()
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("ocr.http.send_error", "req_id", reqID, "path", path, "error", err)
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("ocr.http.read_error", "req_id", reqID, "path", path, "error", err)
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("ocr.http.roundtrip",
		"req_id", reqID,
		"path", path,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return raw, resp.StatusCode, nil
}

// errorFromResponse prefers the body's error code when it is present; the
// provider speaks the shared vocabulary. Status-based mapping is the
// fallback for proxies and load balancers that answer without a body.
func (c *Client) errorFromResponse(status int, raw []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Code != "" {
		return provider.NewError(env.Error.Code, env.Error.Message)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return provider.NewError(constants.ErrCodeThrottling, "provider throttled the request")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return provider.NewError(constants.ErrCodeAccessDenied, "provider rejected credentials")
	case status == http.StatusRequestEntityTooLarge:
		return provider.NewError(constants.ErrCodeDocumentTooLarge, "document exceeds provider limit")
	case status == http.StatusServiceUnavailable:
		return provider.NewError(constants.ErrCodeServiceUnavailable, "provider unavailable")
	case status/100 == 5:
		return provider.NewError(constants.ErrCodeInternalError, fmt.Sprintf("provider returned status %d", status))
	default:
		return provider.NewError(constants.ErrCodeBadDocument, fmt.Sprintf("provider rejected document with status %d", status))
	}
}

func (c *Client) toResult(resp analyzeResponse) (*provider.Result, error) {
	res := &provider.Result{
		Fields:      make(map[string]entity.FieldValue, len(resp.Fields)),
		Confidences: make(map[string]float32, len(resp.Fields)),
	}
	for name, f := range resp.Fields {
		fv, err := toFieldValue(f)
		if err != nil {
			return nil, provider.NewError(constants.ErrCodeInternalError, fmt.Sprintf("field %q: %v", name, err))
		}
		res.Fields[name] = fv
		res.Confidences[name] = f.Confidence
	}
	for _, li := range resp.LineItems {
		res.LineItems = append(res.LineItems, entity.LineItem{
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			LineTotal:   li.LineTotal,
			Confidence:  li.Confidence,
		})
	}
	return res, nil
}

func toFieldValue(f analyzeField) (entity.FieldValue, error) {
	switch f.Type {
	case "number":
		n, ok := f.Value.(float64)
		if !ok {
			return entity.FieldValue{}, fmt.Errorf("number field holds %T", f.Value)
		}
		return entity.NumberField(n), nil
	case "date":
		s, ok := f.Value.(string)
		if !ok {
			return entity.FieldValue{}, fmt.Errorf("date field holds %T", f.Value)
		}
		fv := entity.FieldValue{Type: entity.FieldDate, Date: s}
		if err := fv.Validate(); err != nil {
			return entity.FieldValue{}, err
		}
		return fv, nil
	default:
		s, ok := f.Value.(string)
		if !ok {
			return entity.FieldValue{}, fmt.Errorf("string field holds %T", f.Value)
		}
		return entity.StringField(s), nil
	}
}

var _ provider.Extractor = (*Client)(nil)
