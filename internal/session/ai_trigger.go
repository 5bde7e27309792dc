package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"igo/pkg/logger"
)

// AIServerClient asks the AI server to launch an opponent for a game. The
// AI server protects its start endpoint with a double-submit XSRF cookie,
// so starting a game is a GET to pick up the cookie followed by a POST
// echoing it in a header.
type AIServerClient struct {
	baseURL string
	client  *http.Client
	log     *logger.ColoredLogger
}

// NewAIServerClient creates a client for the AI server at baseURL
func NewAIServerClient(baseURL string, log *logger.ColoredLogger) (*AIServerClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	return &AIServerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Jar: jar, Timeout: 10 * time.Second},
		log:     log,
	}, nil
}

// StartGame tells the AI server to join the game behind playerKey, proving
// itself with aiSecret.
func (c *AIServerClient) StartGame(ctx context.Context, playerKey, aiSecret string) error {
	token, err := c.fetchXSRFToken(ctx)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("player_key", playerKey)
	form.Set("ai_secret", aiSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/start", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building AI start request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Xsrf-Token", token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("starting AI game: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("starting AI game: AI server responded %s", resp.Status)
	}
	c.log.Info("AI server accepted game start for key %s", playerKey)
	return nil
}

func (c *AIServerClient) fetchXSRFToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/start", nil)
	if err != nil {
		return "", fmt.Errorf("building AI token request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching AI server XSRF token: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	for _, ck := range resp.Cookies() {
		if ck.Name == "_xsrf" {
			return ck.Value, nil
		}
	}
	return "", fmt.Errorf("AI server did not set an XSRF cookie")
}
