// Package auth provides Google OAuth2 authentication for mailtriage.
//
// Credentials come from one of three places, checked in order: the
// GMAIL_CREDENTIALS environment variable holding an authorized-user JSON
// document, a credentials.json/token.json pair on disk (the format written by
// Python's google-auth library), or the same JSON document stored in the
// system keyring.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// EnvCredentials is the environment variable holding authorized-user JSON.
const EnvCredentials = "GMAIL_CREDENTIALS"

// DefaultTokenURI is used when a credentials document omits token_uri.
const DefaultTokenURI = "https://oauth2.googleapis.com/token"

// DefaultScopes only needs modify: list, read and relabel messages, create labels.
var DefaultScopes = []string{gmail.GmailModifyScope}

// ErrMissingCredentials means no credential source was configured.
var ErrMissingCredentials = errors.New("no Gmail credentials found: set " + EnvCredentials + ", pass --credentials, or run 'mt auth store'")

// MissingFieldsError lists required authorized-user fields that were empty.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required credentials fields: " + strings.Join(e.Fields, ", ")
}

// AuthorizedUser is the authorized-user JSON document, also used for token.json.
type AuthorizedUser struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes,omitempty"`
	Expiry       string   `json:"expiry,omitempty"`
}

// ParseAuthorizedUser decodes and validates an authorized-user document.
func ParseAuthorizedUser(data []byte) (*AuthorizedUser, error) {
	var au AuthorizedUser
	if err := json.Unmarshal(data, &au); err != nil {
		return nil, fmt.Errorf("parse credentials JSON: %w", err)
	}
	if err := au.Validate(); err != nil {
		return nil, err
	}
	return &au, nil
}

// Validate checks that every field needed to refresh the token is present.
func (au *AuthorizedUser) Validate() error {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"token", au.Token},
		{"refresh_token", au.RefreshToken},
		{"token_uri", au.TokenURI},
		{"client_id", au.ClientID},
		{"client_secret", au.ClientSecret},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

// Config returns the OAuth2 config described by the document.
func (au *AuthorizedUser) Config() *oauth2.Config {
	tokenURI := au.TokenURI
	if tokenURI == "" {
		tokenURI = DefaultTokenURI
	}
	return &oauth2.Config{
		ClientID:     au.ClientID,
		ClientSecret: au.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  google.Endpoint.AuthURL,
			TokenURL: tokenURI,
		},
		Scopes: DefaultScopes,
	}
}

// OAuthToken converts the document into an oauth2 token. Without a known
// expiry the token is treated as expired so the first request refreshes it.
func (au *AuthorizedUser) OAuthToken() *oauth2.Token {
	expiry := parseExpiry(au.Expiry)
	if expiry.IsZero() && au.RefreshToken != "" {
		expiry = time.Now().Add(-time.Minute)
	}
	return &oauth2.Token{
		AccessToken:  au.Token,
		RefreshToken: au.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       expiry,
	}
}

// Source describes where to look for credentials.
type Source struct {
	// JSON is an authorized-user document (typically from GMAIL_CREDENTIALS).
	JSON string
	// CredentialsPath points at a credentials.json next to a token.json.
	CredentialsPath string
	// Keyring looks the document up in the system keyring when set.
	Keyring func() (string, error)
}

// SourceFromEnv returns a Source populated from GMAIL_CREDENTIALS.
func SourceFromEnv() Source {
	return Source{JSON: os.Getenv(EnvCredentials)}
}

// LoadGmailService returns an authenticated Gmail API service.
func LoadGmailService(ctx context.Context, src Source) (*gmail.Service, error) {
	client, err := getClient(ctx, src)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

// getClient resolves the first configured credential source.
func getClient(ctx context.Context, src Source) (*http.Client, error) {
	if src.JSON != "" {
		au, err := ParseAuthorizedUser([]byte(src.JSON))
		if err != nil {
			return nil, err
		}
		return clientFromAuthorizedUser(ctx, au)
	}

	if src.CredentialsPath != "" {
		return fileClient(ctx, src.CredentialsPath)
	}

	if src.Keyring != nil {
		doc, err := src.Keyring()
		if err != nil {
			return nil, fmt.Errorf("%w (keyring: %v)", ErrMissingCredentials, err)
		}
		au, err := ParseAuthorizedUser([]byte(doc))
		if err != nil {
			return nil, err
		}
		return clientFromAuthorizedUser(ctx, au)
	}

	return nil, ErrMissingCredentials
}

func clientFromAuthorizedUser(ctx context.Context, au *AuthorizedUser) (*http.Client, error) {
	config := au.Config()
	ts := config.TokenSource(ctx, au.OAuthToken())
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return oauth2.NewClient(ctx, ts), nil
}

// fileClient returns an authenticated HTTP client by loading the OAuth config
// from credentials.json and the token from token.json in the same directory.
func fileClient(ctx context.Context, credentialsPath string) (*http.Client, error) {
	config, err := loadOAuthConfig(credentialsPath)
	if err != nil {
		return nil, err
	}

	tokenPath := filepath.Join(filepath.Dir(credentialsPath), "token.json")
	token, err := loadToken(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("load token from %s: %w", tokenPath, err)
	}

	ts := config.TokenSource(ctx, token)
	newToken, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	// Save a refreshed token back in the same format.
	if newToken.AccessToken != token.AccessToken {
		if saveErr := saveToken(tokenPath, newToken, config); saveErr != nil {
			fmt.Fprintf(os.Stderr, "warning: could not save refreshed token: %v\n", saveErr)
		}
	}

	return oauth2.NewClient(ctx, ts), nil
}

// loadOAuthConfig reads credentials.json and returns an OAuth2 config.
func loadOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w (%s does not exist)", ErrMissingCredentials, credentialsPath)
		}
		return nil, fmt.Errorf("read credentials from %s: %w", credentialsPath, err)
	}

	config, err := google.ConfigFromJSON(data, DefaultScopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return config, nil
}

func loadToken(tokenPath string) (*oauth2.Token, error) {
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var au AuthorizedUser
	if err := json.Unmarshal(data, &au); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return au.OAuthToken(), nil
}

func saveToken(tokenPath string, token *oauth2.Token, config *oauth2.Config) error {
	au := AuthorizedUser{
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenURI:     config.Endpoint.TokenURL,
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       DefaultScopes,
		Expiry:       token.Expiry.UTC().Format("2006-01-02T15:04:05.999999Z"),
	}
	data, err := json.MarshalIndent(au, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath, data, 0o600)
}

// parseExpiry accepts the ISO 8601 variants Python writes.
func parseExpiry(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999Z",
		"2006-01-02T15:04:05Z",
		time.RFC3339,
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
