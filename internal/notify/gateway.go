package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/example/carepulse/internal/application"
)

var (
	// ErrNoPhone is returned when the recipient has no phone on file.
	ErrNoPhone = errors.New("notify: recipient has no phone number")
	// ErrCircuitOpen is returned while the provider breaker is open.
	ErrCircuitOpen = errors.New("notify: sms provider circuit open")
)

// PhoneDirectory resolves a user's E.164 phone number.
type PhoneDirectory interface {
	LookupPhone(ctx context.Context, userID string) (string, error)
}

// PhoneDirectoryFunc adapts a function to PhoneDirectory.
type PhoneDirectoryFunc func(ctx context.Context, userID string) (string, error)

func (f PhoneDirectoryFunc) LookupPhone(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}

// BreakerConfig tunes the circuit breaker around the provider.
type BreakerConfig struct {
	FailureThreshold uint32
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// DefaultBreakerConfig opens after five consecutive failures and lets a trial request through after a minute.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 5,
	MaxRequests:      1,
	Interval:         time.Minute,
	Timeout:          time.Minute,
}

// HTTPGatewayConfig configures HTTPGateway.
type HTTPGatewayConfig struct {
	BaseURL    string
	APIKey     string
	From       string
	HTTPClient *http.Client
	Breaker    BreakerConfig
}

// HTTPGateway posts text messages to an SMS provider's REST API.
type HTTPGateway struct {
	endpoint  string
	apiKey    string
	from      string
	client    *http.Client
	directory PhoneDirectory
	breaker   *gobreaker.CircuitBreaker[application.MessageRef]
	logger    *slog.Logger
}

// providerError is a rejection by the provider that retrying will not fix.
type providerError struct {
	status int
	body   string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("notify: sms provider rejected message: status %d: %s", e.status, e.body)
}

func (e *providerError) Unwrap() error { return application.ErrUndeliverable }

// NewHTTPGateway constructs an HTTPGateway.
func NewHTTPGateway(cfg HTTPGatewayConfig, directory PhoneDirectory, logger *slog.Logger) (*HTTPGateway, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("notify: base url is required")
	}
	if directory == nil {
		return nil, errors.New("notify: phone directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.FailureThreshold == 0 {
		breakerCfg = DefaultBreakerConfig
	}

	g := &HTTPGateway{
		endpoint:  base + "/messages",
		apiKey:    cfg.APIKey,
		from:      cfg.From,
		client:    client,
		directory: directory,
		logger:    logger,
	}
	g.breaker = gobreaker.NewCircuitBreaker[application.MessageRef](gobreaker.Settings{
		Name:        "sms-provider",
		MaxRequests: breakerCfg.MaxRequests,
		Interval:    breakerCfg.Interval,
		Timeout:     breakerCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerCfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			var rejected *providerError
			return err == nil || errors.As(err, &rejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return g, nil
}

type sendRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// SendText resolves the recipient's phone and posts the message.
func (g *HTTPGateway) SendText(ctx context.Context, recipientUserID, body string) (application.MessageRef, error) {
	phone, err := g.directory.LookupPhone(ctx, recipientUserID)
	if err != nil {
		return application.MessageRef{}, fmt.Errorf("notify: resolve recipient %s: %w", recipientUserID, err)
	}
	if strings.TrimSpace(phone) == "" {
		return application.MessageRef{}, ErrNoPhone
	}

	ref, err := g.breaker.Execute(func() (application.MessageRef, error) {
		return g.post(ctx, sendRequest{To: phone, From: g.from, Text: body})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return application.MessageRef{}, ErrCircuitOpen
	}
	if err != nil {
		return application.MessageRef{}, err
	}

	g.logger.DebugContext(ctx, "sms accepted by provider", "message_id", ref.ID, "user_id", recipientUserID)
	return ref, nil
}

func (g *HTTPGateway) post(ctx context.Context, payload sendRequest) (application.MessageRef, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return application.MessageRef{}, fmt.Errorf("notify: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(raw))
	if err != nil {
		return application.MessageRef{}, fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return application.MessageRef{}, fmt.Errorf("notify: send message: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return application.MessageRef{}, fmt.Errorf("notify: sms provider unavailable: status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return application.MessageRef{}, &providerError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}

	var decoded sendResponse
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &decoded); err != nil {
			return application.MessageRef{}, fmt.Errorf("notify: decode provider response: %w", err)
		}
	}
	return application.MessageRef{ID: decoded.ID}, nil
}

// LoggingGateway writes messages to the log instead of sending them.
type LoggingGateway struct {
	logger      *slog.Logger
	idGenerator func() string
}

// NewLoggingGateway constructs a LoggingGateway.
func NewLoggingGateway(logger *slog.Logger, idGenerator func() string) *LoggingGateway {
	if logger == nil {
		logger = slog.Default()
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	return &LoggingGateway{logger: logger, idGenerator: idGenerator}
}

func (g *LoggingGateway) SendText(ctx context.Context, recipientUserID, body string) (application.MessageRef, error) {
	ref := application.MessageRef{ID: g.idGenerator()}
	g.logger.InfoContext(ctx, "sms delivery disabled, message logged",
		"message_id", ref.ID,
		"user_id", recipientUserID,
		"body", body,
	)
	return ref, nil
}
