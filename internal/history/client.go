// Package history is the HTTP client for the persistence collaborator: it
// fetches conversation history and appends new messages.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/campusconnect/messaging/internal/domain"
	"github.com/campusconnect/messaging/internal/errs"
)

// Service is what the conversation controller needs from persistence. Tests
// substitute a fake.
type Service interface {
	LoadHistory(ctx context.Context, roomID string) ([]*domain.Message, error)
	SaveMessage(ctx context.Context, m *domain.Message) (*domain.Message, error)
}

type ClientConfig struct {
	BaseURL         string
	AuthToken       string
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
}

// Client talks to the relay's HTTP API. History fetches retry with
// exponential backoff; the send persistence call is single-shot behind a
// circuit breaker — retrying sends is the user's decision, not ours.
type Client struct {
	http    *http.Client
	conf    ClientConfig
	breaker *gobreaker.CircuitBreaker
}

func NewClient(conf ClientConfig) *Client {
	if conf.Timeout == 0 {
		conf.Timeout = 10 * time.Second
	}
	if conf.RetryMaxElapsed == 0 {
		conf.RetryMaxElapsed = 15 * time.Second
	}
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	return &Client{
		http: &http.Client{Transport: tr, Timeout: conf.Timeout},
		conf: conf,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "history-save",
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.conf.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.conf.AuthToken)
	}
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
}

// LoadHistory fetches the full ordered message list of a room. All-or-nothing:
// any failure surfaces as ErrHistoryUnavailable and no partial data escapes.
func (c *Client) LoadHistory(ctx context.Context, roomID string) ([]*domain.Message, error) {
	u := fmt.Sprintf("%s/v1/rooms/%s/messages", c.conf.BaseURL, url.PathEscape(roomID))

	var msgs []*domain.Message
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		c.authorize(req)
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("history responded %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("history responded %d", resp.StatusCode))
		}

		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return err
		}
		msgs = nil
		return json.Unmarshal(env.Data, &msgs)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.conf.RetryMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrHistoryUnavailable, err)
	}
	return msgs, nil
}

// SaveMessage persists a message and returns the server-confirmed copy with
// its final id and timestamp. Multipart when an attachment descriptor rides
// along, plain JSON otherwise.
func (c *Client) SaveMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		return c.saveOnce(ctx, m)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrSendFailed, err)
	}
	return res.(*domain.Message), nil
}

func (c *Client) saveOnce(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	u := c.conf.BaseURL + "/v1/messages"

	var body bytes.Buffer
	contentType := "application/json"
	if m.Attachment != nil {
		w := multipart.NewWriter(&body)
		part, err := w.CreateFormField("message")
		if err != nil {
			return nil, err
		}
		if err := json.NewEncoder(part).Encode(m); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		contentType = w.FormDataContentType()
	} else if err := json.NewEncoder(&body).Encode(m); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("persistence responded %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	var confirmed domain.Message
	if err := json.Unmarshal(env.Data, &confirmed); err != nil {
		return nil, err
	}
	return &confirmed, nil
}
