package adapters

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// oauth1Signer builds OAuth 1.0a HMAC-SHA1 Authorization headers.
type oauth1Signer struct {
	consumerKey    string
	consumerSecret string
	token          string
	tokenSecret    string

	nonce func() string
	now   func() time.Time
}

func randomNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// percentEncode follows RFC 3986: only unreserved characters stay literal.
func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func signatureBaseString(method, rawURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(params[k]))
	}
	return strings.ToUpper(method) + "&" + percentEncode(rawURL) + "&" + percentEncode(strings.Join(pairs, "&"))
}

func hmacSign(base, consumerSecret, tokenSecret string) string {
	key := percentEncode(consumerSecret) + "&" + percentEncode(tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (s oauth1Signer) header(method, rawURL string) string {
	nonce, now := s.nonce, s.now
	if nonce == nil {
		nonce = randomNonce
	}
	if now == nil {
		now = time.Now
	}
	params := map[string]string{
		"oauth_consumer_key":     s.consumerKey,
		"oauth_nonce":            nonce(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(now().Unix(), 10),
		"oauth_token":            s.token,
		"oauth_version":          "1.0",
	}

	params["oauth_signature"] = hmacSign(signatureBaseString(method, rawURL, params), s.consumerSecret, s.tokenSecret)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, percentEncode(k)+`="`+percentEncode(params[k])+`"`)
	}
	return "OAuth " + strings.Join(parts, ", ")
}
