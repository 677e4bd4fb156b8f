// internal/auth/login.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// Credentials is a wiki account used for the optional login phase.
type Credentials struct {
	Username string
	Password string
}

type tokenResponse struct {
	Query struct {
		Tokens struct {
			LoginToken string `json:"logintoken"`
		} `json:"tokens"`
	} `json:"query"`
}

type loginResponse struct {
	Login struct {
		Result string `json:"result"`
		Reason string `json:"reason"`
	} `json:"login"`
}

// Login performs the MediaWiki bot-login token dance against api.php.
// The client must carry a cookie jar; the session cookie it receives
// authenticates every later request.
func Login(ctx context.Context, client *http.Client, apiURL string, creds Credentials) error {
	if client.Jar == nil {
		return fmt.Errorf("login requires a cookie-jarred http client")
	}

	token, err := fetchLoginToken(ctx, client, apiURL)
	if err != nil {
		return fmt.Errorf("fetching login token: %w", err)
	}

	form := url.Values{}
	form.Set("action", "login")
	form.Set("format", "json")
	form.Set("lgname", creds.Username)
	form.Set("lgpassword", creds.Password)
	form.Set("lgtoken", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	var body loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if body.Login.Result != "Success" {
		return fmt.Errorf("login failed: %s %s", body.Login.Result, body.Login.Reason)
	}

	log.Info().Str("user", creds.Username).Msg("Logged in")
	return nil
}

func fetchLoginToken(ctx context.Context, client *http.Client, apiURL string) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("meta", "tokens")
	params.Set("type", "login")
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if body.Query.Tokens.LoginToken == "" {
		return "", fmt.Errorf("empty login token")
	}
	return body.Query.Tokens.LoginToken, nil
}
