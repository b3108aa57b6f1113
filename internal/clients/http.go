package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/voyagehub/tour-booking-backend/internal/models"
)

// TokenSource mints bearer tokens for outgoing calls
type TokenSource interface {
	GenerateServiceToken(serviceName string) (string, error)
}

// errorBody mirrors handlers.ErrorResponse
type errorBody struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// jsonClient is the shared request/response plumbing of the downstream clients
type jsonClient struct {
	service    string
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	callerName string
	logger     *logrus.Logger
}

func newJSONClient(service, baseURL string, timeout time.Duration, tokens TokenSource, callerName string, logger *logrus.Logger) jsonClient {
	return jsonClient{
		service:    service,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		callerName: callerName,
		logger:     logger,
	}
}

// do sends body (if any) as JSON and decodes a 2xx response into out.
// Transport failures and 5xx become ServiceUnavailableError so callers can fail soft.
func (c *jsonClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.New().String())

	if c.tokens != nil {
		token, err := c.tokens.GenerateServiceToken(c.callerName)
		if err != nil {
			return fmt.Errorf("failed to mint service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"service": c.service,
			"method":  method,
			"path":    path,
		}).Warn("Downstream call failed")
		return &models.ServiceUnavailableError{Service: c.service, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &models.ServiceUnavailableError{Service: c.service, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.WithFields(logrus.Fields{
		"service":     c.service,
		"method":      method,
		"path":        path,
		"status_code": resp.StatusCode,
		"latency_ms":  time.Since(start).Milliseconds(),
	}).Debug("Downstream call completed")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse %s response: %w", c.service, err)
		}
		return nil
	}

	return c.mapError(resp.StatusCode, respBody)
}

func (c *jsonClient) mapError(status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	message := eb.Message
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case status >= 500:
		return &models.ServiceUnavailableError{Service: c.service, Err: fmt.Errorf("status %d: %s", status, message)}
	case status == http.StatusNotFound:
		return models.NewNotFoundError(c.service+" resource", message)
	case status == http.StatusConflict && eb.Code == "INSUFFICIENT_CAPACITY":
		return &models.CapacityError{
			Requested: detailInt(eb.Details, "requested"),
			Remaining: detailInt(eb.Details, "remaining"),
		}
	case status == http.StatusConflict:
		return &models.StateTransitionError{Entity: c.service, From: "current", To: message}
	case status == http.StatusBadRequest:
		return models.NewValidationError("", message)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s rejected credentials: %s", c.service, message)
	}
	return fmt.Errorf("%s returned status %d: %s", c.service, status, message)
}

func detailInt(details map[string]interface{}, key string) int {
	if v, ok := details[key].(float64); ok {
		return int(v)
	}
	return 0
}

// IsUnavailable reports whether err means the downstream could not be reached
func IsUnavailable(err error) bool {
	var su *models.ServiceUnavailableError
	return errors.As(err, &su)
}
