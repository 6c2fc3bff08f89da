package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// GenerateRandomHex returns n random bytes encoded as hex
func GenerateRandomHex(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("length must be positive")
	}
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
