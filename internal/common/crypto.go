package common

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const keyDomain = "rootgate/"

// DeriveKey returns hex(HMAC-SHA256(secret, "rootgate/"+purpose)). Keys for
// different purposes are independent even when the secret is shared.
func DeriveKey(secret, purpose string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(keyDomain + purpose))
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateSecret returns n random base64url characters.
func GenerateSecret(n int) (string, error) {
	rawSize := (n*3 + 3) / 4
	raw := make([]byte, rawSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	return secret[:n], nil
}
