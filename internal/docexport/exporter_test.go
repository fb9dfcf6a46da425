package docexport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIsLoginURL(t *testing.T) {
	require.True(t, isLoginURL("https://workspace.monday.com/auth/login"))
	require.True(t, isLoginURL("https://workspace.monday.com/login?next=/docs/7"))
	require.False(t, isLoginURL("https://workspace.monday.com/docs/7"))
	require.False(t, isLoginURL(""))
}

func TestLoadCookiesMissingFileMeansUnauthenticated(t *testing.T) {
	e := &Exporter{
		cfg:    Config{AuthFile: filepath.Join(t.TempDir(), "auth.json")},
		logger: zap.NewNop(),
	}
	_, err := e.loadCookies()
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestLoadCookiesParsesSavedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	state := `[
	  {"name": "session", "value": "abc", "domain": ".monday.com", "path": "/", "expires": 1900000000, "httpOnly": true, "secure": true}
	]`
	require.NoError(t, os.WriteFile(path, []byte(state), 0o600))

	e := &Exporter{cfg: Config{AuthFile: path}, logger: zap.NewNop()}
	cookies, err := e.loadCookies()
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	require.Equal(t, "session", cookies[0].Name)
	require.Equal(t, ".monday.com", cookies[0].Domain)
	require.True(t, cookies[0].HTTPOnly)
}

func TestLoadCookiesRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	e := &Exporter{cfg: Config{AuthFile: path}, logger: zap.NewNop()}
	_, err := e.loadCookies()
	require.ErrorContains(t, err, "parse auth file")
}
