package delivery

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureHeader = "X-Drip-Signature"
	TimestampHeader = "X-Drip-Timestamp"
	DeliveryHeader  = "X-Drip-Delivery"
	AttemptHeader   = "X-Drip-Attempt"

	signaturePrefix = "sha256="
)

var (
	ErrMissingSignature = errors.New("missing signature headers")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrStaleTimestamp   = errors.New("timestamp outside tolerance")
)

// Sign returns the signature header value: an HMAC-SHA256 over
// "{timestamp}.{body}" keyed by secret.
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)

	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received delivery. Receivers reject timestamps
// further than tolerance from now to defeat replays.
func VerifySignature(secret string, header http.Header, body []byte, tolerance time.Duration, now time.Time) error {
	signature := header.Get(SignatureHeader)
	rawTimestamp := header.Get(TimestampHeader)

	if signature == "" || rawTimestamp == "" {
		return ErrMissingSignature
	}

	timestamp, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	skew := now.Sub(time.Unix(timestamp, 0))
	if skew < 0 {
		skew = -skew
	}

	if skew > tolerance {
		return ErrStaleTimestamp
	}

	if !strings.HasPrefix(signature, signaturePrefix) {
		return ErrInvalidSignature
	}

	if !hmac.Equal([]byte(signature), []byte(Sign(secret, timestamp, body))) {
		return ErrInvalidSignature
	}

	return nil
}
