package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"echotree/domain/model"
	"echotree/infrastructure/logger"
)

var linkPattern = regexp.MustCompile(`https?://[^\s]+`)

// BlueskySession is the structured credential stored for refresh-capable accounts.
type BlueskySession struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Did        string `json:"did,omitempty"`
	Handle     string `json:"handle,omitempty"`
}

// ParseBlueskyCredential accepts a session JSON or a bare access token.
func ParseBlueskyCredential(credential string) BlueskySession {
	var s BlueskySession
	if err := json.Unmarshal([]byte(credential), &s); err == nil && s.AccessJwt != "" {
		return s
	}
	return BlueskySession{AccessJwt: strings.TrimSpace(credential)}
}

type BlueskyAdapter struct {
	cfg    Config
	writer CredentialWriter
	now    func() time.Time
}

func NewBlueskyAdapter(cfg Config, writer CredentialWriter) *BlueskyAdapter {
	return &BlueskyAdapter{cfg: cfg, writer: writer, now: time.Now}
}

func (a *BlueskyAdapter) pds() string {
	if a.cfg.BlueskyPDS == "" {
		return "https://bsky.social"
	}
	return strings.TrimRight(a.cfg.BlueskyPDS, "/")
}

func (a *BlueskyAdapter) Publish(ctx context.Context, text, url string, account *model.AccountCredentials) (string, error) {
	if account == nil || strings.TrimSpace(account.Credential) == "" {
		return "", configError(model.PlatformBluesky, "missing Bluesky OAuth token")
	}
	session := ParseBlueskyCredential(account.Credential)
	repo := account.Handle
	if repo == "" {
		repo = session.Did
	}
	if repo == "" {
		repo = session.Handle
	}
	if repo == "" {
		return "", configError(model.PlatformBluesky, "missing Bluesky handle for repo")
	}

	record := a.buildRecord(ctx, text, url)

	uri, expired, err := a.createRecord(ctx, session.AccessJwt, repo, record)
	if !expired || session.RefreshJwt == "" {
		return uri, err
	}

	refreshed, rErr := a.refreshSession(ctx, session.RefreshJwt)
	if rErr != nil {
		return "", rErr
	}
	a.persist(ctx, account.ID, refreshed)

	uri, _, err = a.createRecord(ctx, refreshed.AccessJwt, repo, record)
	return uri, err
}

func (a *BlueskyAdapter) buildRecord(ctx context.Context, text, url string) map[string]any {
	body := composeLimited(text, url, blueskyMaxChars, utf8.RuneCountInString(url))
	record := map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      body,
		"createdAt": a.now().UTC().Format(time.RFC3339),
	}
	if facet := linkFacet(body); facet != nil {
		record["facets"] = []any{facet}
	}
	if card := fetchCard(ctx, a.cfg.plainClient(), url, a.cfg.BlueskyEmbedTimeout); card != nil {
		record["embed"] = map[string]any{
			"$type":    "app.bsky.embed.external",
			"external": card,
		}
	}
	return record
}

// linkFacet marks the first http(s) URL in text. Offsets are UTF-8 byte positions.
func linkFacet(text string) map[string]any {
	loc := linkPattern.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	return map[string]any{
		"index": map[string]int{"byteStart": loc[0], "byteEnd": loc[1]},
		"features": []map[string]string{{
			"$type": "app.bsky.richtext.facet#link",
			"uri":   text[loc[0]:loc[1]],
		}},
	}
}

// createRecord reports expired=true when the PDS rejected the access token as expired.
func (a *BlueskyAdapter) createRecord(ctx context.Context, token, repo string, record map[string]any) (string, bool, error) {
	payload := map[string]any{
		"repo":       repo,
		"collection": "app.bsky.feed.post",
		"record":     record,
	}
	resp, err := doJSON(ctx, a.cfg.bearerClient(ctx, token), http.MethodPost,
		a.pds()+"/xrpc/com.atproto.repo.createRecord", payload, nil)
	if err != nil {
		return "", false, requestError(model.PlatformBluesky, err)
	}
	if !resp.ok() {
		return "", isExpiredToken(resp), remoteError(model.PlatformBluesky, resp.status, resp.body)
	}

	var out struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil || out.URI == "" {
		return "", false, protocolError(model.PlatformBluesky, "Bluesky response missing uri")
	}
	return out.URI, false, nil
}

func isExpiredToken(resp *response) bool {
	if resp.status != http.StatusBadRequest && resp.status != http.StatusUnauthorized {
		return false
	}
	var xrpcErr struct {
		Error string `json:"error"`
	}
	return json.Unmarshal(resp.body, &xrpcErr) == nil && xrpcErr.Error == "ExpiredToken"
}

func (a *BlueskyAdapter) refreshSession(ctx context.Context, refreshJwt string) (*BlueskySession, error) {
	resp, err := doJSON(ctx, a.cfg.bearerClient(ctx, refreshJwt), http.MethodPost,
		a.pds()+"/xrpc/com.atproto.server.refreshSession", nil, nil)
	if err != nil {
		return nil, requestError(model.PlatformBluesky, err)
	}
	if !resp.ok() {
		return nil, remoteError(model.PlatformBluesky, resp.status, resp.body)
	}
	var s BlueskySession
	if err := json.Unmarshal(resp.body, &s); err != nil || s.AccessJwt == "" || s.RefreshJwt == "" {
		return nil, protocolError(model.PlatformBluesky, "Bluesky refresh response missing tokens")
	}
	return &s, nil
}

// persist stores the rotated session. The old refresh token is already spent, so a
// failed write is logged and the retry still goes ahead with the new access token.
func (a *BlueskyAdapter) persist(ctx context.Context, accountID int64, s *BlueskySession) {
	if a.writer == nil {
		logger.GetLogger().WithField("account_id", accountID).Warn("bluesky session refreshed but no credential writer configured")
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := a.writer.SaveCredential(ctx, accountID, string(raw)); err != nil {
		logger.GetLogger().WithField("account_id", accountID).WithField("error", err).Error("failed persisting refreshed bluesky session")
	}
}
