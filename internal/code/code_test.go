package code

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func neverExists(ctx context.Context, code string) (bool, error) {
	return false, nil
}

func TestGenerate_LengthAndAlphabet(t *testing.T) {
	generated, err := Generate(context.Background(), Alphabet, Length, neverExists)

	assert.NoError(t, err)
	assert.Len(t, generated, Length)
	for _, char := range generated {
		assert.Contains(t, Alphabet, string(char))
	}
}

func TestGenerate_Distinct(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		generated, err := Generate(context.Background(), Alphabet, Length, neverExists)
		assert.NoError(t, err)
		assert.False(t, seen[generated], "code %q generated twice", generated)
		seen[generated] = true
	}
}

func TestGenerate_RetriesOnCollision(t *testing.T) {
	calls := 0
	exists := func(ctx context.Context, code string) (bool, error) {
		calls++
		return calls < 3, nil
	}

	generated, err := Generate(context.Background(), Alphabet, Length, exists)

	assert.NoError(t, err)
	assert.Len(t, generated, Length)
	assert.Equal(t, 3, calls)
}

func TestGenerate_GivesUpWhenSpaceExhausted(t *testing.T) {
	exists := func(ctx context.Context, code string) (bool, error) {
		return true, nil
	}

	_, err := Generate(context.Background(), Alphabet, Length, exists)

	assert.ErrorIs(t, err, ErrGenerationMax)
}

func TestGenerate_PropagatesExistenceCheckError(t *testing.T) {
	checkErr := errors.New("store unavailable")
	exists := func(ctx context.Context, code string) (bool, error) {
		return false, checkErr
	}

	_, err := Generate(context.Background(), Alphabet, Length, exists)

	assert.ErrorIs(t, err, checkErr)
}
