package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"echotree/domain/model"
)

type LinkedInAdapter struct {
	cfg Config
}

func NewLinkedInAdapter(cfg Config) *LinkedInAdapter {
	return &LinkedInAdapter{cfg: cfg}
}

func (a *LinkedInAdapter) Publish(ctx context.Context, text, url string, account *model.AccountCredentials) (string, error) {
	if account == nil || strings.TrimSpace(account.Credential) == "" {
		return "", configError(model.PlatformLinkedIn, "missing LinkedIn OAuth token")
	}
	if a.cfg.LinkedInAuthorURN == "" {
		return "", configError(model.PlatformLinkedIn, "missing ECHOTREE_LINKEDIN_AUTHOR_URN")
	}
	base := a.cfg.LinkedInBaseURL
	if base == "" {
		base = "https://api.linkedin.com"
	}

	payload := map[string]any{
		"author":         a.cfg.LinkedInAuthorURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]string{"text": joinText(text, url)},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	headers := map[string]string{"X-Restli-Protocol-Version": "2.0.0"}

	resp, err := doJSON(ctx, a.cfg.bearerClient(ctx, account.Credential), http.MethodPost,
		strings.TrimRight(base, "/")+"/v2/ugcPosts", payload, headers)
	if err != nil {
		return "", requestError(model.PlatformLinkedIn, err)
	}
	if !resp.ok() {
		return "", remoteError(model.PlatformLinkedIn, resp.status, resp.body)
	}

	var out struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(resp.body, &out)
	if out.ID == "" {
		// ugcPosts answers 201 with an empty body and the urn in a header.
		out.ID = resp.header.Get("X-RestLi-Id")
	}
	if out.ID == "" {
		return "", protocolError(model.PlatformLinkedIn, "LinkedIn response missing id")
	}
	return out.ID, nil
}
