package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"echotree/domain/model"

	"golang.org/x/oauth2"
)

// Adapter publishes a composed message to one platform and returns the remote post id.
type Adapter interface {
	Publish(ctx context.Context, text, url string, account *model.AccountCredentials) (string, error)
}

// CredentialWriter persists a refreshed plaintext credential back to the account.
type CredentialWriter interface {
	SaveCredential(ctx context.Context, accountID int64, plaintext string) error
}

type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindRemote        ErrorKind = "remote"
	KindProtocol      ErrorKind = "protocol"
)

var ErrUnsupportedPlatform = errors.New("unsupported platform")

// PublishError is the single failure type adapters return.
type PublishError struct {
	Kind       ErrorKind
	Platform   model.Platform
	StatusCode int
	Message    string
}

func (e *PublishError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s error (HTTP %d): %s", e.Platform, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s error: %s", e.Platform, e.Kind, e.Message)
}

func configError(p model.Platform, msg string) error {
	return &PublishError{Kind: KindConfiguration, Platform: p, Message: msg}
}

func protocolError(p model.Platform, msg string) error {
	return &PublishError{Kind: KindProtocol, Platform: p, Message: msg}
}

func remoteError(p model.Platform, status int, body []byte) error {
	return &PublishError{Kind: KindRemote, Platform: p, StatusCode: status, Message: strings.TrimSpace(string(body))}
}

// Config carries per-platform endpoints and secrets.
type Config struct {
	Timeout time.Duration

	TwitterBaseURL   string
	TwitterAPIKey    string
	TwitterAPISecret string

	MastodonBaseURL string

	BlueskyPDS          string
	BlueskyEmbedTimeout time.Duration

	LinkedInBaseURL   string
	LinkedInAuthorURN string

	// HTTPClient is the base transport; nil uses http.DefaultClient.
	HTTPClient *http.Client
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 15 * time.Second
	}
	return c.Timeout
}

func (c Config) baseClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// bearerClient returns a client that sends Authorization: Bearer <token> on every request.
func (c Config) bearerClient(ctx context.Context, token string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.baseClient())
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	client.Timeout = c.timeout()
	return client
}

func (c Config) plainClient() *http.Client {
	base := c.baseClient()
	return &http.Client{Transport: base.Transport, Timeout: c.timeout()}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool { return r.status >= 200 && r.status < 300 }

func doJSON(ctx context.Context, client *http.Client, method, url string, payload any, headers map[string]string) (*response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return do(client, req)
}

func do(client *http.Client, req *http.Request) (*response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: raw}, nil
}

func requestError(p model.Platform, err error) error {
	return &PublishError{Kind: KindRemote, Platform: p, Message: err.Error()}
}
