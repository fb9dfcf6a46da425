package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewSlackDisabledWithoutCredentials(t *testing.T) {
	require.Nil(t, NewSlack(SlackConfig{Token: "x"}, zap.NewNop()))
	require.Nil(t, NewSlack(SlackConfig{Channel: "#general"}, zap.NewNop()))
	require.Nil(t, NewSlack(SlackConfig{}, zap.NewNop()))
}

func TestSlackPostsBlockMessage(t *testing.T) {
	var got slackMessage
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat.postMessage", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	t.Cleanup(srv.Close)

	s := NewSlack(SlackConfig{
		Token:   "xoxb-token",
		Channel: "#migrations",
		BaseURL: srv.URL,
	}, zap.NewNop())
	require.NotNil(t, s)

	s.ItemMigrated(context.Background(), "Widget", []string{"https://a", "https://b"})

	require.Equal(t, "Bearer xoxb-token", auth)
	require.Equal(t, "#migrations", got.Channel)
	require.Contains(t, got.Text, "Widget")
	require.Contains(t, got.Text, "2 files")
	require.Len(t, got.Blocks, 2)
	require.Contains(t, got.Blocks[1].Text.Text, "https://a")
}

func TestSlackSwallowsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok": false, "error": "channel_not_found"}`))
	}))
	t.Cleanup(srv.Close)

	s := NewSlack(SlackConfig{Token: "t", Channel: "#c", BaseURL: srv.URL}, zap.NewNop())
	// Must not panic or surface anything.
	s.ItemMigrated(context.Background(), "Widget", nil)
}

type recordingNotifier struct {
	calls int
}

func (n *recordingNotifier) ItemMigrated(context.Context, string, []string) {
	n.calls++
}

func TestMultiFansOut(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{}
	m := NewMulti(a, nil, b)

	m.ItemMigrated(context.Background(), "item", nil)
	require.Equal(t, 1, a.calls)
	require.Equal(t, 1, b.calls)
}

func TestNoopDoesNothing(t *testing.T) {
	Noop{}.ItemMigrated(context.Background(), "item", []string{"x"})
}
