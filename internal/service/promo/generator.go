package promo

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	// codeAlphabet avoids 0/O, 1/I/L so codes survive being read aloud
	// over a restaurant counter.
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	// suffixLength is the random part after "PREFIX-".
	suffixLength = 8

	// generateAttempts bounds collision retries. With a 31-char alphabet
	// and 8 positions the space is ~8.5e11 per restaurant, so retries are
	// about pathology, not probability.
	generateAttempts = 5
)

// Generate produces a "PREFIX-XXXXXXXX" code whose suffix is random
// alphanumeric, retrying while the code is already taken by the restaurant.
// The existence pre-check here is an optimization only; the unique index on
// (restaurant_id, code) remains the correctness guarantee at insert time.
func (s *Service) Generate(ctx context.Context, restaurantID, prefix string) (string, error) {
	prefix = normalizePrefix(prefix)

	for attempt := 0; attempt < generateAttempts; attempt++ {
		suffix, err := randomSuffix(suffixLength)
		if err != nil {
			return "", fmt.Errorf("generate code suffix: %w", err)
		}
		code := prefix + "-" + suffix

		exists, err := s.repo.CodeExists(ctx, restaurantID, code)
		if err != nil {
			return "", fmt.Errorf("check code collision: %w", err)
		}
		if !exists {
			return code, nil
		}
	}

	return "", fmt.Errorf("no unique code after %d attempts for prefix %q", generateAttempts, prefix)
}

func normalizePrefix(prefix string) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	prefix = strings.TrimSuffix(prefix, "-")
	if prefix == "" {
		prefix = "PROMO"
	}
	return prefix
}

func randomSuffix(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, v := range b {
		out[i] = codeAlphabet[int(v)%len(codeAlphabet)]
	}
	return string(out), nil
}
