package auth

import (
	"encoding/base64"
	"testing"
)

func TestGenerateVoterToken(t *testing.T) {
	token, err := GenerateVoterToken()
	if err != nil {
		t.Fatalf("GenerateVoterToken() error = %v", err)
	}

	if len(token) != 22 {
		t.Errorf("Token length = %d, want 22", len(token))
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("Token is not URL-safe base64: %v", err)
	}
	if len(raw) != 16 {
		t.Errorf("Decoded length = %d, want 16", len(raw))
	}
}

func TestGenerateVoterTokens_Distinct(t *testing.T) {
	tokens, err := GenerateVoterTokens(100)
	if err != nil {
		t.Fatalf("GenerateVoterTokens() error = %v", err)
	}

	if len(tokens) != 100 {
		t.Fatalf("got %d tokens, want 100", len(tokens))
	}

	seen := make(map[string]bool)
	for _, token := range tokens {
		if seen[token] {
			t.Errorf("Duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}

func TestGenerateVoterTokens_Zero(t *testing.T) {
	tokens, err := GenerateVoterTokens(0)
	if err != nil {
		t.Fatalf("GenerateVoterTokens(0) error = %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("got %d tokens, want 0", len(tokens))
	}
}

func TestHashToken(t *testing.T) {
	token := "q2X9c1Lk0aZr7Tn4Pw8yBg"

	hash1 := HashToken(token)
	hash2 := HashToken(token)

	// Same input should produce same hash
	if hash1 != hash2 {
		t.Errorf("HashToken not deterministic: %s != %s", hash1, hash2)
	}

	// Hash should be hex string of SHA256 (64 chars)
	if len(hash1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(hash1))
	}

	// Different input should produce different hash
	hash3 := HashToken("different_token")
	if hash1 == hash3 {
		t.Error("Different tokens produced same hash")
	}
}
