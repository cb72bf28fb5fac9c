package recordclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/measureme/internal/enrollment"
	"github.com/noah-isme/measureme/internal/models"
	"github.com/noah-isme/measureme/pkg/config"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
	"github.com/noah-isme/measureme/pkg/middleware/requestid"
)

const maxErrorBody = 64 << 10

// Client talks to the record service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New builds a client for cfg.BaseURL, e.g. http://host:8000/api.
func New(cfg config.ClientConfig, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListStudents returns the full roster snapshot.
func (c *Client) ListStudents(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	if err := c.do(ctx, http.MethodGet, "/students", nil, "", &students); err != nil {
		return nil, err
	}
	return students, nil
}

// GetStudent fetches one record.
func (c *Client) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := c.do(ctx, http.MethodGet, "/students/"+url.PathEscape(id), nil, "", &student); err != nil {
		return nil, err
	}
	return &student, nil
}

// CreateStudent submits a new registration as one multipart request.
func (c *Client) CreateStudent(ctx context.Context, payload *enrollment.Payload) (*models.Student, error) {
	body, contentType, err := EncodeMultipart(payload)
	if err != nil {
		return nil, err
	}
	var student models.Student
	if err := c.do(ctx, http.MethodPost, "/students", body, contentType, &student); err != nil {
		return nil, err
	}
	return &student, nil
}

// UpdateStudent submits an edit. Only the fields and files present in the
// payload are changed on the server.
func (c *Client) UpdateStudent(ctx context.Context, id string, payload *enrollment.Payload) (*models.Student, error) {
	body, contentType, err := EncodeMultipart(payload)
	if err != nil {
		return nil, err
	}
	var student models.Student
	if err := c.do(ctx, http.MethodPut, "/students/"+url.PathEscape(id), body, contentType, &student); err != nil {
		return nil, err
	}
	return &student, nil
}

// DeleteStudent removes a record with its images and history.
func (c *Client) DeleteStudent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/students/"+url.PathEscape(id), nil, "", nil)
}

// ListMeasurements returns a student's history, oldest first.
func (c *Client) ListMeasurements(ctx context.Context, studentID string) ([]models.Measurement, error) {
	path := "/measurements"
	if studentID != "" {
		path += "?" + url.Values{"student": {studentID}}.Encode()
	}
	var measurements []models.Measurement
	if err := c.do(ctx, http.MethodGet, path, nil, "", &measurements); err != nil {
		return nil, err
	}
	return measurements, nil
}

// CreateMeasurement records one reading.
func (c *Client) CreateMeasurement(ctx context.Context, m models.Measurement) (*models.Measurement, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode measurement: %w", err)
	}
	var created models.Measurement
	if err := c.do(ctx, http.MethodPost, "/measurements", raw, "application/json", &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Warn("record service unreachable", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, appErrors.ErrServiceUnavailable.Message)
	}
	defer resp.Body.Close()

	c.logger.Debug("record service call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "failed to read response")
	}
	return decodeBody(raw, out)
}

// decodeBody accepts either the {"data": ...} envelope or a bare body.
func decodeBody(raw []byte, out interface{}) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 {
		raw = envelope.Data
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "malformed response from record service")
	}
	return nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := remoteMessage(raw)

	var base *appErrors.Error
	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		base = appErrors.ErrValidation
	case resp.StatusCode == http.StatusNotFound:
		base = appErrors.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		base = appErrors.ErrConflict
	default:
		base = appErrors.ErrServiceUnavailable
	}
	if message == "" {
		message = fmt.Sprintf("%s (HTTP %d)", base.Message, resp.StatusCode)
	}
	return appErrors.Clone(base, message)
}

// remoteMessage extracts a readable message from the error envelope or a
// framework-style {"field": ["msg"]} body.
func remoteMessage(raw []byte) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err == nil && len(fields) > 0 {
		parts := make([]string, 0, len(fields))
		for k, v := range fields {
			parts = append(parts, fmt.Sprintf("%s: %v", k, v))
		}
		return strings.Join(sortStrings(parts), "; ")
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// IsUnavailable reports whether err is a transport or server-side failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, appErrors.ErrServiceUnavailable)
}
