package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// SignWebhook signs "{unixTimestamp}.{jsonPayload}" with the subscription
// secret. The result travels as "t=<timestamp>,v1=<signature>".
func SignWebhook(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func SignatureHeader(secret string, timestamp int64, payload []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, SignWebhook(secret, timestamp, payload))
}

// VerifyWebhookSignature checks an inbound signed callback. Comparison is
// constant time.
func VerifyWebhookSignature(secret, header string, payload []byte) bool {
	var timestamp int64 = -1
	var signature string

	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return false
			}
			timestamp = ts
		case "v1":
			signature = v
		}
	}

	if timestamp < 0 || signature == "" {
		return false
	}

	given, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)

	return hmac.Equal(mac.Sum(nil), given)
}
