package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/savaki/sentiment-bot/pkg/logger"
	"go.uber.org/zap"
)

const signatureVersion = "v0"

// Sign computes the Slack v0 signature for a request body
// See: https://api.slack.com/authentication/verifying-requests-from-slack
func Sign(timestamp, body, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(signatureVersion + ":" + timestamp + ":" + body))
	return signatureVersion + "=" + hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature matches the v0 HMAC-SHA256 of timestamp
// and body under secret. The comparison is constant time.
func Verify(signature, timestamp, body, secret string) bool {
	expected := Sign(timestamp, body, secret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		logger.GetLogger().Warn("Invalid Slack signature",
			zap.String("expected", expected),
			zap.String("got", signature))
		return false
	}
	return true
}

// checkRequestAge rejects timestamps older than maxAge. A zero maxAge
// disables the check.
func checkRequestAge(timestamp string, now time.Time, maxAge time.Duration) error {
	if maxAge <= 0 {
		return nil
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q", timestamp)
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > maxAge {
		return fmt.Errorf("request timestamp too old: %s", age.Truncate(time.Second))
	}
	return nil
}
