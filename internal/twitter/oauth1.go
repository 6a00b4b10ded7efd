package twitter

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// oauth1Signer produces OAuth 1.0a Authorization headers for user-context
// endpoints. Request bodies (JSON and multipart) are not part of the signature
// base, only the URL query parameters are.
type oauth1Signer struct {
	consumerKey    string
	consumerSecret string
	token          string
	tokenSecret    string

	// Overridable for deterministic tests.
	nonce     func() string
	timestamp func() string
}

func newOAuth1Signer(consumerKey, consumerSecret, token, tokenSecret string) *oauth1Signer {
	return &oauth1Signer{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		token:          token,
		tokenSecret:    tokenSecret,
		nonce:          randomNonce,
		timestamp: func() string {
			return strconv.FormatInt(time.Now().Unix(), 10)
		},
	}
}

// AuthorizationHeader signs the given request line and returns the value for
// the Authorization header.
func (s *oauth1Signer) AuthorizationHeader(method, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("error parsing request url %q: %w", rawURL, err)
	}

	oauthParams := map[string]string{
		"oauth_consumer_key":     s.consumerKey,
		"oauth_nonce":            s.nonce(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        s.timestamp(),
		"oauth_token":            s.token,
		"oauth_version":          "1.0",
	}

	oauthParams["oauth_signature"] = s.signature(method, u, oauthParams)

	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", percentEncode(k), percentEncode(oauthParams[k])))
	}

	return "OAuth " + strings.Join(pairs, ", "), nil
}

func (s *oauth1Signer) signature(method string, u *url.URL, oauthParams map[string]string) string {
	params := make(map[string][]string)
	for k, vs := range u.Query() {
		params[k] = append(params[k], vs...)
	}
	for k, v := range oauthParams {
		params[k] = append(params[k], v)
	}

	var encoded []string
	for k, vs := range params {
		for _, v := range vs {
			encoded = append(encoded, percentEncode(k)+"="+percentEncode(v))
		}
	}
	sort.Strings(encoded)

	baseURL := u.Scheme + "://" + u.Host + u.EscapedPath()
	base := strings.ToUpper(method) + "&" + percentEncode(baseURL) + "&" + percentEncode(strings.Join(encoded, "&"))
	key := percentEncode(s.consumerSecret) + "&" + percentEncode(s.tokenSecret)

	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// percentEncode applies RFC 3986 encoding, which is stricter than
// url.QueryEscape about what stays unescaped.
func percentEncode(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func randomNonce() string {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		panic(err)
	}
	return hex.EncodeToString(nonce)
}
