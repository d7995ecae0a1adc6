package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// GenerateVoterToken creates a single-use voter token for a restricted poll.
// Returns 16 random bytes as unpadded URL-safe base64 (22 chars).
func GenerateVoterToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// GenerateVoterTokens creates count distinct voter tokens.
func GenerateVoterTokens(count int) ([]string, error) {
	seen := make(map[string]bool, count)
	tokens := make([]string, 0, count)
	for len(tokens) < count {
		token, err := GenerateVoterToken()
		if err != nil {
			return nil, err
		}
		if seen[token] {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// HashToken returns SHA256 hash of the token for lookups.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
