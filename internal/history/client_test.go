package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusconnect/messaging/internal/domain"
	"github.com/campusconnect/messaging/internal/errs"
)

func newClient(baseURL string) *Client {
	return NewClient(ClientConfig{
		BaseURL:         baseURL,
		Timeout:         2 * time.Second,
		RetryMaxElapsed: 500 * time.Millisecond,
	})
}

func Test_LoadHistory_ReturnsOrderedMessages(t *testing.T) {
	req := require.New(t)

	msgs := []*domain.Message{
		{ID: "m-1", RoomID: "alice:bob", SenderID: "alice", Body: "hey", CreatedAt: time.Unix(10, 0).UTC()},
		{ID: "m-2", RoomID: "alice:bob", SenderID: "bob", Body: "yo", CreatedAt: time.Unix(20, 0).UTC()},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal("/v1/rooms/alice:bob/messages", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "data": msgs})
	}))
	defer srv.Close()

	got, err := newClient(srv.URL).LoadHistory(context.Background(), "alice:bob")
	req.NoError(err)
	req.Len(got, 2)
	req.Equal("m-1", got[0].ID)
	req.Equal("m-2", got[1].ID)
}

func Test_LoadHistory_RetriesServerErrors(t *testing.T) {
	req := require.New(t)

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "data": []*domain.Message{}})
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).LoadHistory(context.Background(), "alice:bob")
	req.NoError(err)
	req.GreaterOrEqual(atomic.LoadInt32(&calls), int32(3))
}

func Test_LoadHistory_FailureIsHistoryUnavailable(t *testing.T) {
	req := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).LoadHistory(context.Background(), "alice:bob")
	req.ErrorIs(err, errs.ErrHistoryUnavailable)
}

func Test_SaveMessage_ReturnsConfirmed(t *testing.T) {
	req := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal(http.MethodPost, r.Method)
		var in domain.Message
		req.NoError(json.NewDecoder(r.Body).Decode(&in))
		req.Equal("hello", in.Body)

		in.ID = "m-77"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "data": in})
	}))
	defer srv.Close()

	confirmed, err := newClient(srv.URL).SaveMessage(context.Background(), &domain.Message{
		ID: "local-1", RoomID: "alice:bob", SenderID: "alice", Body: "hello",
	})
	req.NoError(err)
	req.Equal("m-77", confirmed.ID)
}

func Test_SaveMessage_AttachmentGoesMultipart(t *testing.T) {
	req := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.NoError(r.ParseMultipartForm(1 << 20))
		var in domain.Message
		req.NoError(json.Unmarshal([]byte(r.FormValue("message")), &in))
		req.NotNil(in.Attachment)
		req.Equal("https://cdn.local/pic.png", in.Attachment.URL)

		in.ID = "m-78"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "data": in})
	}))
	defer srv.Close()

	confirmed, err := newClient(srv.URL).SaveMessage(context.Background(), &domain.Message{
		ID: "local-2", RoomID: "alice:bob", SenderID: "alice",
		Attachment: &domain.Attachment{URL: "https://cdn.local/pic.png", Name: "pic.png"},
	})
	req.NoError(err)
	req.Equal("m-78", confirmed.ID)
}

func Test_SaveMessage_FailureIsSendFailed(t *testing.T) {
	req := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).SaveMessage(context.Background(), &domain.Message{Body: "x"})
	req.ErrorIs(err, errs.ErrSendFailed)
}
