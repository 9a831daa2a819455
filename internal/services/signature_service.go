package services

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
)

// SignatureValidator authenticates webhook deliveries against the
// provider's signing scheme: HMAC-SHA1 over the exact callback URL
// followed by every POST parameter name and value in lexicographic
// order, base64 encoded, keyed with the shared auth token. It runs
// before any state is touched.
type SignatureValidator struct {
	authToken string
}

func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{authToken: authToken}
}

// Validate reports whether signature matches the given callback URL and
// form parameters.
func (v *SignatureValidator) Validate(callbackURL string, params url.Values, signature string) bool {
	if v.authToken == "" || signature == "" {
		return false
	}
	expected := v.Sign(callbackURL, params)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the expected signature for a callback URL and params.
func (v *SignatureValidator) Sign(callbackURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	payload := callbackURL
	for _, k := range keys {
		// The provider signs the first value of each parameter.
		payload += k + params.Get(k)
	}

	mac := hmac.New(sha1.New, []byte(v.authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
