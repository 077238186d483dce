package telephony

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/net/websocket"
)

// EventStream is the push-based EventSource: a WebSocket subscription to the
// platform's event feed for the dialer application.
//
// While disconnected no events are delivered; in-flight calls stay frozen
// until the stream reconnects.
type EventStream struct {
	cfg ARIConfig
	log *slog.Logger

	// InitialBackoff and MaxBackoff bound reconnect waits.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// OnState is called with true after each successful connect and with
	// false after each disconnect. Optional.
	OnState func(connected bool)

	dial func(ctx context.Context) (*websocket.Conn, error)
}

func NewEventStream(cfg ARIConfig, log *slog.Logger) *EventStream {
	if log == nil {
		log = slog.Default()
	}
	s := &EventStream{
		cfg:            cfg,
		log:            log,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
	s.dial = s.dialPlatform
	return s
}

// EventsURL derives the WebSocket events URL from the REST base URL.
func EventsURL(baseURL, app string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("telephony: unsupported scheme %q", u.Scheme)
	}
	u.Path += "/events"
	q := url.Values{}
	q.Set("app", app)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *EventStream) dialPlatform(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := EventsURL(s.cfg.BaseURL, s.cfg.App)
	if err != nil {
		return nil, err
	}
	origin := strings.Replace(strings.Replace(wsURL, "wss://", "https://", 1), "ws://", "http://", 1)
	wcfg, err := websocket.NewConfig(wsURL, origin)
	if err != nil {
		return nil, err
	}
	creds := base64.StdEncoding.EncodeToString([]byte(s.cfg.Username + ":" + s.cfg.Password))
	wcfg.Header.Set("Authorization", "Basic "+creds)
	return wcfg.DialContext(ctx)
}

// Run subscribes and forwards decoded events to out until ctx is done.
// It reconnects with exponential backoff on dial or read failures.
func (s *EventStream) Run(ctx context.Context, out chan<- CallEvent) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.InitialBackoff
	b.MaxInterval = s.MaxBackoff

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := s.dial(ctx)
		if err != nil {
			wait := b.NextBackOff()
			s.log.Warn("event stream connect failed", "err", err, "retry_in", wait)
			if !sleepCtx(ctx, wait) {
				return nil
			}
			continue
		}

		b.Reset()
		s.log.Info("event stream connected")
		s.setState(true)

		err = s.consume(ctx, conn, out)
		_ = conn.Close()
		s.setState(false)
		if ctx.Err() != nil {
			return nil
		}
		wait := b.NextBackOff()
		s.log.Warn("event stream disconnected", "err", err, "retry_in", wait)
		if !sleepCtx(ctx, wait) {
			return nil
		}
	}
}

func (s *EventStream) consume(ctx context.Context, conn *websocket.Conn, out chan<- CallEvent) error {
	// Unblock Receive when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			return err
		}
		ev, err := DecodeEvent(data)
		if err != nil {
			s.log.Debug("event dropped", "err", err)
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *EventStream) setState(connected bool) {
	if s.OnState != nil {
		s.OnState(connected)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
