package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
)

const (
	accountNumberDigits = 8
	maxNumberAttempts   = 10
)

var errNumberSpaceExhausted = errors.New("could not find a free account number")

// NumberGenerator hands out account numbers for new accounts.
type NumberGenerator interface {
	Next(ctx context.Context) (string, error)
}

// ExistenceChecker reports whether an account number is already taken.
type ExistenceChecker interface {
	AccountExists(ctx context.Context, number string) (bool, error)
}

// RandomNumberGenerator draws zero-padded 8-digit numbers and skips ones the
// store already knows. CreateAccount still rejects a number that was taken
// between the check and the insert.
type RandomNumberGenerator struct {
	checker ExistenceChecker
	intN    func(n int) int
}

func NewRandomNumberGenerator(checker ExistenceChecker) *RandomNumberGenerator {
	return &RandomNumberGenerator{checker: checker, intN: rand.IntN}
}

func (g *RandomNumberGenerator) Next(ctx context.Context) (string, error) {
	upper := 1
	for range accountNumberDigits {
		upper *= 10
	}

	for range maxNumberAttempts {
		number := fmt.Sprintf("%0*d", accountNumberDigits, g.intN(upper))
		exists, err := g.checker.AccountExists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("check account number %s: %w", number, err)
		}
		if !exists {
			return number, nil
		}
	}
	return "", errNumberSpaceExhausted
}
