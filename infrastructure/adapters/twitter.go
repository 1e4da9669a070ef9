package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"echotree/domain/model"
)

type twitterCredential struct {
	Type   string `json:"type"`
	Token  string `json:"token"`
	Secret string `json:"secret"`
}

// TwitterAdapter posts to the X v2 tweets endpoint with either a bearer token or OAuth 1.0a user credentials.
type TwitterAdapter struct {
	cfg Config

	nonce func() string
	now   func() time.Time
}

func NewTwitterAdapter(cfg Config) *TwitterAdapter {
	return &TwitterAdapter{cfg: cfg}
}

func (a *TwitterAdapter) endpoint() string {
	base := a.cfg.TwitterBaseURL
	if base == "" {
		base = "https://api.twitter.com"
	}
	return strings.TrimRight(base, "/") + "/2/tweets"
}

func (a *TwitterAdapter) Publish(ctx context.Context, text, url string, account *model.AccountCredentials) (string, error) {
	if account == nil || strings.TrimSpace(account.Credential) == "" {
		return "", configError(model.PlatformTwitter, "missing Twitter OAuth token")
	}
	endpoint := a.endpoint()

	client, headers, err := a.authorize(ctx, account.Credential, endpoint)
	if err != nil {
		return "", err
	}

	payload := map[string]string{"text": composeLimited(text, url, twitterMaxChars, twitterLinkChars)}
	resp, err := doJSON(ctx, client, http.MethodPost, endpoint, payload, headers)
	if err != nil {
		return "", requestError(model.PlatformTwitter, err)
	}
	if !resp.ok() {
		return "", remoteError(model.PlatformTwitter, resp.status, resp.body)
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil || out.Data.ID == "" {
		return "", protocolError(model.PlatformTwitter, "Twitter response missing id")
	}
	return out.Data.ID, nil
}

// authorize picks the auth scheme from the credential shape.
func (a *TwitterAdapter) authorize(ctx context.Context, credential, endpoint string) (*http.Client, map[string]string, error) {
	var cred twitterCredential
	if json.Unmarshal([]byte(credential), &cred) != nil || cred.Type != "oauth1" {
		return a.cfg.bearerClient(ctx, credential), nil, nil
	}

	if a.cfg.TwitterAPIKey == "" || a.cfg.TwitterAPISecret == "" {
		return nil, nil, configError(model.PlatformTwitter, "missing ECHOTREE_X_API_KEY or ECHOTREE_X_API_SECRET")
	}
	if cred.Token == "" || cred.Secret == "" {
		return nil, nil, configError(model.PlatformTwitter, "missing OAuth 1.0a token or secret")
	}
	signer := oauth1Signer{
		consumerKey:    a.cfg.TwitterAPIKey,
		consumerSecret: a.cfg.TwitterAPISecret,
		token:          cred.Token,
		tokenSecret:    cred.Secret,
		nonce:          a.nonce,
		now:            a.now,
	}
	headers := map[string]string{"Authorization": signer.header(http.MethodPost, endpoint)}
	return a.cfg.plainClient(), headers, nil
}
