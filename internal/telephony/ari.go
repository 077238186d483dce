package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ARIConfig configures the REST side of the call-control platform.
type ARIConfig struct {
	// BaseURL is e.g. http://pbx:8088/ari
	BaseURL  string
	Username string
	Password string
	// App is the application name channels are tagged with.
	App string
	// RequestTimeout bounds each operation including transport retries.
	RequestTimeout time.Duration
}

const defaultRequestTimeout = 30 * time.Second

// ARIClient is the Gateway adapter for an ARI-compatible REST API.
//
// IMPORTANT:
// - Keep this adapter free of business logic.
// - Only connection-level failures are retried; once a request reached the
//   platform its answer is final.
type ARIClient struct {
	cfg  ARIConfig
	http *http.Client
}

// APIError is a non-2xx response from the platform.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telephony: ari status %d: %s", e.Status, e.Message)
}

func NewARIClient(cfg ARIConfig) *ARIClient {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ARIClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (c *ARIClient) Name() string { return "ari" }

func (c *ARIClient) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/asterisk/info", nil, nil, nil)
}

type ariChannel struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	State  string `json:"state"`
	Caller struct {
		Number string `json:"number"`
	} `json:"caller"`
	Dialplan struct {
		Context string `json:"context"`
		Exten   string `json:"exten"`
	} `json:"dialplan"`
	CreationTime string `json:"creationtime"`
}

func (ch ariChannel) toChannel() Channel {
	out := Channel{
		ID:           ch.ID,
		Name:         ch.Name,
		State:        ch.State,
		CallerNumber: ch.Caller.Number,
		CreatedAt:    parseTimestamp(ch.CreationTime),
	}
	if ch.Dialplan.Exten != "" {
		out.Dialplan = ch.Dialplan.Exten + "@" + ch.Dialplan.Context
	}
	return out
}

func (c *ARIClient) Originate(ctx context.Context, req OriginateRequest) (OriginateResult, error) {
	if strings.TrimSpace(req.Endpoint) == "" {
		return OriginateResult{}, errors.New("telephony: endpoint required")
	}
	q := url.Values{}
	q.Set("endpoint", req.Endpoint)
	if req.ChannelID != "" {
		q.Set("channelId", req.ChannelID)
	}
	if req.Extension != "" {
		q.Set("extension", req.Extension)
		q.Set("context", req.Context)
		priority := req.Priority
		if priority <= 0 {
			priority = 1
		}
		q.Set("priority", strconv.Itoa(priority))
	} else {
		q.Set("app", c.cfg.App)
	}
	if req.CallerID != "" {
		q.Set("callerId", req.CallerID)
	}
	if req.Timeout > 0 {
		q.Set("timeout", strconv.Itoa(req.Timeout))
	}

	body := map[string]any{}
	if len(req.Variables) > 0 {
		body["variables"] = req.Variables
	}

	var ch ariChannel
	if err := c.do(ctx, http.MethodPost, "/channels", q, body, &ch); err != nil {
		return OriginateResult{}, err
	}
	if ch.ID == "" {
		return OriginateResult{}, ErrNoChannel
	}
	return OriginateResult{ChannelID: ch.ID}, nil
}

func (c *ARIClient) Hangup(ctx context.Context, channelID, reason string) error {
	q := url.Values{}
	if reason != "" {
		q.Set("reason", reason)
	}
	err := c.do(ctx, http.MethodDelete, "/channels/"+url.PathEscape(channelID), q, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return ErrChannelNotFound
	}
	return err
}

func (c *ARIClient) CreateBridge(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("type", "mixing")
	var b struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/bridges", q, nil, &b); err != nil {
		return "", err
	}
	if b.ID == "" {
		return "", errors.New("telephony: bridge create returned no id")
	}
	return b.ID, nil
}

func (c *ARIClient) AddToBridge(ctx context.Context, bridgeID, channelID string) error {
	q := url.Values{}
	q.Set("channel", channelID)
	return c.do(ctx, http.MethodPost, "/bridges/"+url.PathEscape(bridgeID)+"/addChannel", q, nil, nil)
}

func (c *ARIClient) ListChannels(ctx context.Context) ([]Channel, error) {
	var raw []ariChannel
	if err := c.do(ctx, http.MethodGet, "/channels", nil, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Channel, 0, len(raw))
	for _, ch := range raw {
		out = append(out, ch.toChannel())
	}
	return out, nil
}

// do issues one request, retrying connection failures until RequestTimeout.
func (c *ARIClient) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = b
	}

	u := c.cfg.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	op := func() (struct{}, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, body)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if isDialError(err) {
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return struct{}{}, backoff.Permanent(&APIError{Status: resp.StatusCode, Message: parseAPIMessage(msg)})
		}
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return struct{}{}, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("telephony: decode response: %w", err))
		}
		return struct{}{}, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(c.cfg.RequestTimeout),
	)
	if err != nil {
		return fmt.Errorf("telephony: %s %s: %w", method, path, err)
	}
	return nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func parseAPIMessage(b []byte) string {
	var m struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(b, &m); err == nil {
		if m.Message != "" {
			return m.Message
		}
		if m.Error != "" {
			return m.Error
		}
	}
	return strings.TrimSpace(string(b))
}
