package account

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// deriveKey binds tokens to one site: a token issued by site "a" never
// verifies on site "b" even under the same secret.
func deriveKey(secret, site string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("infobase/account/v1\x00"))
	mac.Write([]byte(site))
	return mac.Sum(nil)
}

// signToken produces "<username>,<unix issued>,<hex mac>".
func signToken(key []byte, username string, issued time.Time) string {
	payload := username + "," + strconv.FormatInt(issued.Unix(), 10)
	return payload + "," + tokenMAC(key, payload)
}

// parseToken verifies the MAC and returns the username and issue time.
func parseToken(key []byte, token string) (string, time.Time, bool) {
	i := strings.LastIndexByte(token, ',')
	if i < 0 {
		return "", time.Time{}, false
	}
	payload, sig := token[:i], token[i+1:]
	if !hmac.Equal([]byte(sig), []byte(tokenMAC(key, payload))) {
		return "", time.Time{}, false
	}

	username, ts, ok := strings.Cut(payload, ",")
	if !ok || username == "" {
		return "", time.Time{}, false
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return username, time.Unix(unix, 0).UTC(), true
}

func tokenMAC(key []byte, payload string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
