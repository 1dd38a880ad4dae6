package config

import (
	"crypto/subtle"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyConfig holds the API keys accepted by the server.
// Keys are bcrypt hashes (recommended) or plain values; hashes may be peppered.
type APIKeyConfig struct {
	BcryptCost int
	Pepper     string // optional global secret appended before hashing
	Keys       []string
}

// NewAPIKeyConfig creates an API key configuration from environment variables.
// It reads API_KEYS (comma separated), BCRYPT_COST (default: 12) and optionally API_KEY_PEPPER.
func NewAPIKeyConfig() (*APIKeyConfig, error) {
	costStr := os.Getenv("BCRYPT_COST")
	if costStr == "" {
		costStr = "12"
	}

	cost, err := strconv.Atoi(costStr)
	if err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %v", err)
	}

	config := &APIKeyConfig{
		BcryptCost: cost,
		Pepper:     os.Getenv("API_KEY_PEPPER"),
		Keys:       ParseKeys(os.Getenv("API_KEYS")),
	}

	if err := config.normalize(); err != nil {
		return nil, err
	}

	return config, nil
}

// ParseKeys splits a comma separated key list, dropping blanks.
func ParseKeys(list string) []string {
	var keys []string
	for _, k := range strings.Split(list, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// normalize validates the configuration.
func (c *APIKeyConfig) normalize() error {
	if c.BcryptCost < 10 || c.BcryptCost > 14 {
		return fmt.Errorf("bcrypt cost out of range: %d (must be 10-14)", c.BcryptCost)
	}
	return nil
}

// Enabled reports whether any key is configured.
func (c *APIKeyConfig) Enabled() bool {
	return c != nil && len(c.Keys) > 0
}

// HashKey hashes a key for storage in API_KEYS.
func (c *APIKeyConfig) HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key+c.Pepper), c.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}

// VerifyKey reports whether key matches any configured key.
func (c *APIKeyConfig) VerifyKey(key string) bool {
	if c == nil || key == "" {
		return false
	}
	for _, stored := range c.Keys {
		if isBcryptHash(stored) {
			if bcrypt.CompareHashAndPassword([]byte(stored), []byte(key+c.Pepper)) == nil {
				return true
			}
			continue
		}
		if subtle.ConstantTimeCompare([]byte(stored), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
