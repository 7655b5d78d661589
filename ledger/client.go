// Package ledger talks to the ledger's HTTP surface: unsigned queries and
// transactions, signed commands and transaction status lookups.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"ledger-lists/domain"
)

const maxResponseSize = 4 << 20 // 4 MiB

// Client issues requests against {host}/fdb/{network}/{database}/.
type Client struct {
	baseURL string
	db      string
	http    *http.Client
	logger  *log.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client for one ledger database.
func New(host, network, database string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(host, "/") + "/fdb/" + network + "/" + database + "/",
		db:      network + "/" + database,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DB returns the "network/database" identifier used in signed envelopes.
func (c *Client) DB() string { return c.db }

type ledgerError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) post(ctx context.Context, op, endpoint string, body any, out any) error {
	var payload []byte
	switch b := body.(type) {
	case []byte:
		payload = b
	default:
		var err error
		payload, err = sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.SubmissionError{Op: op, Recoverable: true, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &domain.SubmissionError{Op: op, StatusCode: resp.StatusCode, Recoverable: true, Err: err}
	}
	c.logger.WithFields(log.Fields{
		"op":      op,
		"status":  resp.StatusCode,
		"took_ms": float64(time.Since(start)) / float64(time.Millisecond),
	}).Debug("ledger.request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(op, resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return &domain.SubmissionError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// classifyStatus maps a non-2xx reply onto the error taxonomy. A "not found"
// reply usually means the query peer has not seen the data yet and is
// retryable; other client errors are explicit refusals.
func classifyStatus(op string, status int, body []byte) error {
	msg := errorMessage(body)
	switch {
	case status == http.StatusNotFound:
		return &domain.SubmissionError{Op: op, StatusCode: status, Recoverable: true, Err: errors.New(msg)}
	case status == http.StatusTooManyRequests || status >= 500:
		recoverable := status == http.StatusTooManyRequests || status == http.StatusBadGateway ||
			status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout
		return &domain.SubmissionError{Op: op, StatusCode: status, Recoverable: recoverable, Err: errors.New(msg)}
	default:
		return &domain.RejectedError{Reason: msg}
	}
}

func errorMessage(body []byte) string {
	var le ledgerError
	if err := sonic.Unmarshal(body, &le); err == nil {
		if le.Message != "" {
			return le.Message
		}
		if le.Error != "" {
			return le.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response"
	}
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}
