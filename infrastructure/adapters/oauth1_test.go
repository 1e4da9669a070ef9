package adapters

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Reference values from the X developer documentation "Creating a signature" walkthrough.
func TestSignatureBaseStringAndSignature(t *testing.T) {
	params := map[string]string{
		"status":                 "Hello Ladies + Gentlemen, a signed OAuth request!",
		"include_entities":       "true",
		"oauth_consumer_key":     "xvz1evFS4wEEPTGEFPHBog",
		"oauth_nonce":            "kYjzVBB8Y0ZFabxSWbWovY3uYSQ2pTgmZeNu2VS4cg",
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        "1318622958",
		"oauth_token":            "370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb",
		"oauth_version":          "1.0",
	}
	base := signatureBaseString("post", "https://api.twitter.com/1.1/statuses/update.json", params)

	want := "POST&https%3A%2F%2Fapi.twitter.com%2F1.1%2Fstatuses%2Fupdate.json&" +
		"include_entities%3Dtrue%26oauth_consumer_key%3Dxvz1evFS4wEEPTGEFPHBog%26" +
		"oauth_nonce%3DkYjzVBB8Y0ZFabxSWbWovY3uYSQ2pTgmZeNu2VS4cg%26oauth_signature_method%3DHMAC-SHA1%26" +
		"oauth_timestamp%3D1318622958%26oauth_token%3D370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb%26" +
		"oauth_version%3D1.0%26status%3DHello%2520Ladies%2520%252B%2520Gentlemen%252C%2520a%2520signed%2520OAuth%2520request%2521"
	require.Equal(t, want, base)

	sig := hmacSign(base, "kAcSOqF21Fu85e7zjz7ZN2U4ZRhfV3WpwPAoE3Z7kBw", "LswwdoUaIvS8ltyTt5jkRh4J50vUPVVHtR2YPi5kE")
	assert.Equal(t, "hCtSmYh+iHYCEqBWrE7C7hYmtUk=", sig)
}

func TestOAuth1Header(t *testing.T) {
	s := oauth1Signer{
		consumerKey:    "ck",
		consumerSecret: "cs",
		token:          "tk",
		tokenSecret:    "ts",
		nonce:          func() string { return "nonce" },
		now:            func() time.Time { return time.Unix(1700000000, 0) },
	}
	h := s.header("POST", "https://api.twitter.com/2/tweets")

	require.True(t, strings.HasPrefix(h, "OAuth "))
	assert.Contains(t, h, `oauth_consumer_key="ck"`)
	assert.Contains(t, h, `oauth_nonce="nonce"`)
	assert.Contains(t, h, `oauth_timestamp="1700000000"`)
	assert.Contains(t, h, `oauth_token="tk"`)
	assert.Contains(t, h, `oauth_signature="`)
	assert.Equal(t, h, s.header("POST", "https://api.twitter.com/2/tweets"))
}

func TestPercentEncode(t *testing.T) {
	assert.Equal(t, "a%20b%2Bc~-._%2A", percentEncode("a b+c~-._*"))
}
