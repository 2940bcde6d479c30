package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/facilitydesk/chatsync/internal/wire"
)

const (
	// OperationMessages is the plain history operation.
	OperationMessages = "get_message"
	// OperationChatHistory also returns sender/receiver pictures.
	OperationChatHistory = "fetchChatHistory"

	historyPath    = "/fetchMaster.php"
	defaultTimeout = 15 * time.Second
	defaultMaxBody = 32 << 20
	snippetLen     = 200
)

// ErrResponseTooLarge is returned when the history body exceeds Config.MaxBody.
var ErrResponseTooLarge = errors.New("response too large")

// HistoryFetchError is a network, HTTP or payload failure of a history fetch.
// StatusCode is 0 when no response was received.
type HistoryFetchError struct {
	StatusCode int
	Err        error
}

func (e *HistoryFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("history fetch: http %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("history fetch: %v", e.Err)
}

func (e *HistoryFetchError) Unwrap() error { return e.Err }

// Config configures the history client.
type Config struct {
	BaseURL   string
	Token     string
	Operation string
	Location  *time.Location
	Timeout   time.Duration
	// MaxBody caps the response size in bytes. Defaults to 32 MiB.
	MaxBody int64
}

// HistoryClient fetches the full message history of a user.
type HistoryClient struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewHistoryClient creates a client. A nil httpClient gets one with the
// configured timeout.
func NewHistoryClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *HistoryClient {
	if cfg.Operation == "" {
		cfg.Operation = OperationMessages
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = defaultMaxBody
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HistoryClient{cfg: cfg, http: httpClient, logger: logger}
}

type historyRequest struct {
	Operation string `json:"operation"`
	UserID    string `json:"userid"`
}

// Fetch returns every history row visible to selfID.
func (c *HistoryClient) Fetch(ctx context.Context, selfID string) (wire.HistoryPage, error) {
	body, err := json.Marshal(historyRequest{Operation: c.cfg.Operation, UserID: selfID})
	if err != nil {
		return wire.HistoryPage{}, &HistoryFetchError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+historyPath, bytes.NewReader(body))
	if err != nil {
		return wire.HistoryPage{}, &HistoryFetchError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return wire.HistoryPage{}, &HistoryFetchError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBody+1))
	if err != nil {
		return wire.HistoryPage{}, &HistoryFetchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(data)) > c.cfg.MaxBody {
		return wire.HistoryPage{}, &HistoryFetchError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.cfg.MaxBody),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return wire.HistoryPage{}, &HistoryFetchError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", snippet(data)),
		}
	}

	page, err := wire.ParseHistory(data, c.cfg.Location)
	if err != nil {
		return wire.HistoryPage{}, &HistoryFetchError{StatusCode: resp.StatusCode, Err: err}
	}
	c.logger.Debug("history fetched",
		zap.Int("items", len(page.Items)),
		zap.Int("skipped", page.Skipped),
		zap.Duration("took", time.Since(start)),
	)
	return page, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > snippetLen {
		cut := snippetLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	if s == "" {
		return "empty body"
	}
	return s
}
