package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"echotree/domain/model"

	"github.com/google/go-querystring/query"
)

type mastodonStatus struct {
	Status string `url:"status"`
}

type MastodonAdapter struct {
	cfg Config
}

func NewMastodonAdapter(cfg Config) *MastodonAdapter {
	return &MastodonAdapter{cfg: cfg}
}

func (a *MastodonAdapter) Publish(ctx context.Context, text, url string, account *model.AccountCredentials) (string, error) {
	if account == nil || strings.TrimSpace(account.Credential) == "" {
		return "", configError(model.PlatformMastodon, "missing Mastodon OAuth token")
	}
	if a.cfg.MastodonBaseURL == "" {
		return "", configError(model.PlatformMastodon, "missing ECHOTREE_MASTODON_BASE_URL")
	}

	form, err := query.Values(mastodonStatus{Status: joinText(text, url)})
	if err != nil {
		return "", protocolError(model.PlatformMastodon, err.Error())
	}
	endpoint := strings.TrimRight(a.cfg.MastodonBaseURL, "/") + "/api/v1/statuses"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", requestError(model.PlatformMastodon, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := do(a.cfg.bearerClient(ctx, account.Credential), req)
	if err != nil {
		return "", requestError(model.PlatformMastodon, err)
	}
	if !resp.ok() {
		return "", remoteError(model.PlatformMastodon, resp.status, resp.body)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil || out.ID == "" {
		return "", protocolError(model.PlatformMastodon, "Mastodon response missing id")
	}
	return out.ID, nil
}
