package code

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// Alphabet and Length define the short-code space: 62^8 codes
const (
	Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	Length   = 8
)

const maxGenerationAttempts = 10

var ErrGenerationMax = errors.New("failed to generate unique code after max attempts")

// ExistsFunc reports whether a candidate code is already taken
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Generate draws random codes from the alphabet until one passes the
// existence check. Collisions are vanishingly rare at this alphabet
// size, but the loop is bounded regardless.
func Generate(ctx context.Context, alphabet string, length int, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < maxGenerationAttempts; attempt++ {
		candidate := random(alphabet, length)

		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrGenerationMax
}

func random(alphabet string, length int) string {
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		randomIndex, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			panic(fmt.Sprintf("failed to generate random number: %v", err))
		}
		out[i] = alphabet[randomIndex.Int64()]
	}
	return string(out)
}
