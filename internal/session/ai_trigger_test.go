package session

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igo/pkg/logger"
)

// xsrfServer mimics the AI server's double-submit protection
func xsrfServer(t *testing.T, started chan<- [2]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/start", r.URL.Path)

		switch r.Method {
		case http.MethodGet:
			http.SetCookie(w, &http.Cookie{Name: "_xsrf", Value: "token-1234", Path: "/"})
		case http.MethodPost:
			cookie, err := r.Cookie("_xsrf")
			if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(r.Header.Get("X-Xsrf-Token"))) != 1 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			started <- [2]string{r.PostFormValue("player_key"), r.PostFormValue("ai_secret")}
		}
	}))
}

func TestAIServerClientStartGame(t *testing.T) {
	started := make(chan [2]string, 1)
	srv := xsrfServer(t, started)
	defer srv.Close()

	client, err := NewAIServerClient(srv.URL, logger.TestLogger)
	require.NoError(t, err)

	require.NoError(t, client.StartGame(context.Background(), "AbCdEfGhIj", "s3cret"))

	select {
	case got := <-started:
		assert.Equal(t, [2]string{"AbCdEfGhIj", "s3cret"}, got)
	default:
		t.Fatal("the AI server never saw the start request")
	}
}

func TestAIServerClientReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			http.SetCookie(w, &http.Cookie{Name: "_xsrf", Value: "t", Path: "/"})
			return
		}
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewAIServerClient(srv.URL, logger.TestLogger)
	require.NoError(t, err)

	err = client.StartGame(context.Background(), "AbCdEfGhIj", "s3cret")
	assert.Error(t, err)
}

func TestAIServerClientRequiresCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client, err := NewAIServerClient(srv.URL, logger.TestLogger)
	require.NoError(t, err)

	err = client.StartGame(context.Background(), "AbCdEfGhIj", "s3cret")
	assert.ErrorContains(t, err, "XSRF")
}
