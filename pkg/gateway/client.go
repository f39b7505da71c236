package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"kb-assistant/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultChatTimeout = 60 * time.Second

	tracerName = "kb-assistant/gateway"
)

// Backend is the set of remote operations offered by the RAG backend
type Backend interface {
	Upload(ctx context.Context, files []File) (*UploadResponse, error)
	CreateKnowledgeBase(ctx context.Context, req CreateKnowledgeBaseRequest) (*CreateKnowledgeBaseResponse, error)
	Recall(ctx context.Context, req RecallRequest) (*RecallResponse, error)
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Health(ctx context.Context) error
	HealthURL() string
}

// Ensure Client implements Backend
var _ Backend = &Client{}

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	ChatTimeout time.Duration
	HTTPClient  *http.Client
}

// Client is the single choke point for network I/O towards the RAG backend
type Client struct {
	baseURL     string
	timeout     time.Duration
	chatTimeout time.Duration
	httpClient  *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = DefaultChatTimeout
	}
	if cfg.HTTPClient == nil {
		// Deadlines come from the per-call context
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		timeout:     cfg.Timeout,
		chatTimeout: cfg.ChatTimeout,
		httpClient:  cfg.HTTPClient,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// HealthURL is the health endpoint, which lives outside the /api prefix
func (c *Client) HealthURL() string {
	return strings.TrimSuffix(c.baseURL, "/api") + "/health"
}

func (c *Client) Upload(ctx context.Context, files []File) (*UploadResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, escapeQuotes(f.Name)))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, &Error{Op: OpUpload, Err: fmt.Errorf("create form part: %w", err)}
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, &Error{Op: OpUpload, Err: fmt.Errorf("write form part: %w", err)}
		}
	}
	if err := writer.Close(); err != nil {
		return nil, &Error{Op: OpUpload, Err: fmt.Errorf("close multipart writer: %w", err)}
	}

	var resp UploadResponse
	err := c.do(ctx, OpUpload, c.timeout, http.MethodPost, c.baseURL+"/upload", writer.FormDataContentType(), buf.Bytes(), &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateKnowledgeBase(ctx context.Context, req CreateKnowledgeBaseRequest) (*CreateKnowledgeBaseResponse, error) {
	var resp CreateKnowledgeBaseResponse
	if err := c.postJSON(ctx, OpCreate, c.timeout, "/kb/create", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Recall(ctx context.Context, req RecallRequest) (*RecallResponse, error) {
	var resp RecallResponse
	if err := c.postJSON(ctx, OpRecall, c.timeout, "/kb/recall", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Chat uses the extended timeout because answer generation is slower than retrieval
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.postJSON(ctx, OpChat, c.chatTimeout, "/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health only looks at the status code; the body is ignored
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, OpHealth, c.timeout, http.MethodGet, c.HealthURL(), "", nil, nil)
}

func (c *Client) postJSON(ctx context.Context, op Op, timeout time.Duration, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}
	return c.do(ctx, op, timeout, http.MethodPost, c.baseURL+path, "application/json", body, out)
}

func (c *Client) do(ctx context.Context, op Op, timeout time.Duration, method, url, contentType string, body []byte, out interface{}) (err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "gateway."+string(op))
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", url),
	)
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
			if IsTimeout(err) {
				outcome = "timeout"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.ObserveGatewayCall(string(op), outcome, time.Since(start))
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Err: transportError(ctx, err)}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: transportError(ctx, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: op, StatusCode: resp.StatusCode, Body: string(respBody), Err: ErrUnexpectedStatus}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// transportError turns a deadline expiry into ErrTimeout and keeps everything else
func transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
