package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu       sync.Mutex
	name     string
	err      error
	messages []string
}

func (r *recordingSender) Send(_ context.Context, _, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierPrefixAndFilter(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventOrderFilled, " "}, quietLogger())

	require.NoError(t, n.Notify(context.Background(), EventOrderFilled, "", "filled"))
	require.NoError(t, n.Notify(context.Background(), EventOrderFailed, "", "dropped"))
	require.NoError(t, n.NotifyAll(context.Background(), "", "status"))

	assert.Equal(t, []string{"🧸 filled", "🧸 status"}, s.messages)
	assert.True(t, n.Enabled(EventOrderFilled))
	assert.False(t, n.Enabled(EventError))
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, quietLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "", "x"))
	assert.Len(t, s.messages, 1)
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quietLogger())

	err := n.NotifyAll(context.Background(), "", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.ErrorIs(t, err, bad.err)
	assert.Len(t, good.messages, 1, "a failing sender must not block the others")
}

func TestTelegramSender(t *testing.T) {
	var got struct {
		path   string
		chatID string
		text   string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		got.path = r.URL.Path
		got.chatID = r.FormValue("chat_id")
		got.text = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer srv.Close()

	s := NewTelegramSenderWithEndpoint("TOKEN", "42", srv.URL+"/bot%s/%s")
	require.NoError(t, s.Send(context.Background(), "", "🧸 Grid initialized!"))

	assert.Equal(t, "/botTOKEN/sendMessage", got.path)
	assert.Equal(t, "42", got.chatID)
	assert.Equal(t, "🧸 Grid initialized!", got.text)
	assert.Equal(t, "telegram", s.Name())
}

func TestTelegramSenderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	s := NewTelegramSenderWithEndpoint("TOKEN", "@mychannel", srv.URL+"/bot%s/%s")
	err := s.Send(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramSenderCancelled(t *testing.T) {
	s := NewTelegramSenderWithEndpoint("TOKEN", "1", "http://127.0.0.1:1/bot%s/%s")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Send(ctx, "", "x"), context.Canceled)
}

func TestDiscordSender(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	require.NoError(t, d.Send(context.Background(), "Status", "ok"))
	assert.Equal(t, "**Status**\nok", payload["content"])

	require.NoError(t, d.Send(context.Background(), "", "plain"))
	assert.Equal(t, "plain", payload["content"])
	assert.Equal(t, "CryptoBear", payload["username"])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab…", truncate("abcd", 3))
	assert.Equal(t, "🧸…", truncate("🧸🧸🧸", 2))
}

func TestDiscordSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 429")
}
