package utils

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashKey produces the bcrypt hash stored in API_KEY_HASH.
func HashKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash key: %w", err)
	}
	return string(bytes), nil
}

func CompareKey(hashedKey string, plainKey string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedKey), []byte(plainKey))
}
