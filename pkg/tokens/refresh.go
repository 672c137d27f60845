package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

const (
	RefreshTokenBytes = 32
	RefreshTokenTTL   = 10 * 24 * time.Hour
)

// NewRefreshToken returns an opaque base64 string over RefreshTokenBytes random bytes.
func NewRefreshToken() (string, error) {
	b := make([]byte, RefreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
