package adapters

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

type externalCard struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// fetchCard reads Open Graph or plain meta title/description from the target page.
// Any failure yields nil: the post goes out without a card.
func fetchCard(ctx context.Context, client *http.Client, pageURL string, timeout time.Duration) *externalCard {
	if pageURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "text/html")
	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil
	}
	return cardFromDocument(doc, pageURL)
}

func cardFromDocument(doc *goquery.Document, pageURL string) *externalCard {
	meta := func(selectors ...string) string {
		for _, sel := range selectors {
			if v, ok := doc.Find(sel).First().Attr("content"); ok {
				if v = strings.TrimSpace(v); v != "" {
					return v
				}
			}
		}
		return ""
	}

	title := meta(`meta[property="og:title"]`, `meta[name="twitter:title"]`)
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	desc := meta(`meta[property="og:description"]`, `meta[name="description"]`, `meta[name="twitter:description"]`)
	if title == "" && desc == "" {
		return nil
	}
	return &externalCard{URI: pageURL, Title: title, Description: desc}
}
