package gate

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

// signatureSpec describes where a provider carries its HMAC signature and
// how the digest is encoded. Providers not listed here fall back to the
// generic spec.
type signatureSpec struct {
	header         string
	encoding       string // "hex" or "base64"
	tsHeader       string
	tsFormat       string // "rfc3339" or "unix"
	deliveryHeader string
}

var genericSpec = signatureSpec{
	header:         "X-Webhook-Signature",
	encoding:       "hex",
	tsHeader:       "X-Webhook-Timestamp",
	tsFormat:       "unix",
	deliveryHeader: "X-Webhook-Id",
}

var signatureSpecs = map[string]signatureSpec{
	"shopify": {
		header:         "X-Shopify-Hmac-Sha256",
		encoding:       "base64",
		tsHeader:       "X-Shopify-Triggered-At",
		tsFormat:       "rfc3339",
		deliveryHeader: "X-Shopify-Webhook-Id",
	},
	"woocommerce": {
		header:         "X-WC-Webhook-Signature",
		encoding:       "base64",
		tsHeader:       "",
		tsFormat:       "",
		deliveryHeader: "X-WC-Webhook-Delivery-ID",
	},
	"contentful": {
		header:         "X-Contentful-Signature",
		encoding:       "hex",
		tsHeader:       "X-Contentful-Timestamp",
		tsFormat:       "unix",
		deliveryHeader: "X-Contentful-Webhook-Request-Id",
	},
	"sanity": {
		header:         "Sanity-Webhook-Signature",
		encoding:       "hex",
		tsHeader:       "Sanity-Webhook-Timestamp",
		tsFormat:       "unix",
		deliveryHeader: "Sanity-Webhook-Id",
	},
}

func specFor(provider string) signatureSpec {
	if s, ok := signatureSpecs[provider]; ok {
		return s
	}
	return genericSpec
}

// verifySignature checks the provider's HMAC-SHA256 of the body against the
// signature header using constant-time comparison.
func verifySignature(provider string, body []byte, headers http.Header, secret string) bool {
	spec := specFor(provider)
	got := headers.Get(spec.header)
	if got == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sum := mac.Sum(nil)

	var want string
	switch spec.encoding {
	case "base64":
		want = base64.StdEncoding.EncodeToString(sum)
	default:
		want = hex.EncodeToString(sum)
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// extractTimestamp pulls the provider-specific delivery timestamp. ok is
// false when the provider exposes no timestamp or the header is absent,
// which callers treat as "cannot validate".
func extractTimestamp(provider string, headers http.Header) (time.Time, bool) {
	spec := specFor(provider)
	if spec.tsHeader == "" {
		return time.Time{}, false
	}
	raw := headers.Get(spec.tsHeader)
	if raw == "" {
		return time.Time{}, false
	}
	switch spec.tsFormat {
	case "rfc3339":
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t, true
		}
	default:
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
			// Header may be seconds or milliseconds since epoch.
			if secs > 1e12 {
				secs /= 1000
			}
			return time.Unix(secs, 0), true
		}
	}
	return time.Time{}, false
}

// deliveryID returns the vendor-assigned delivery id when present, and ""
// when the gate must fall back to a body hash.
func deliveryID(provider string, headers http.Header) string {
	return headers.Get(specFor(provider).deliveryHeader)
}

// bodyHash is the fallback event id: a hex SHA-256 of the raw payload.
func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
