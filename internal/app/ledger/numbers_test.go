package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type takenNumbers map[string]bool

func (t takenNumbers) AccountExists(_ context.Context, number string) (bool, error) {
	return t[number], nil
}

type failingChecker struct{}

func (failingChecker) AccountExists(context.Context, string) (bool, error) {
	return false, errors.New("db down")
}

func TestRandomNumberGenerator_SkipsTakenNumbers(t *testing.T) {
	draws := []int{42, 42, 7}
	g := NewRandomNumberGenerator(takenNumbers{"00000042": true})
	g.intN = func(int) int {
		n := draws[0]
		draws = draws[1:]
		return n
	}

	number, err := g.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "00000007", number)
}

func TestRandomNumberGenerator_GivesUp(t *testing.T) {
	g := NewRandomNumberGenerator(takenNumbers{"00000001": true})
	g.intN = func(int) int { return 1 }

	_, err := g.Next(context.Background())
	assert.ErrorIs(t, err, errNumberSpaceExhausted)
}

func TestRandomNumberGenerator_PropagatesStoreErrors(t *testing.T) {
	_, err := NewRandomNumberGenerator(failingChecker{}).Next(context.Background())
	assert.ErrorContains(t, err, "db down")
}
