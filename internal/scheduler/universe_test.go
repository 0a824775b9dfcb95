package scheduler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadUniverse_PaginatesThroughStore(t *testing.T) {
	var symbols []string
	for i := 0; i < universePage+3; i++ {
		symbols = append(symbols, fmt.Sprintf("SYM%d", i))
	}
	st := &fakeStore{universe: symbols}
	s := newTestScheduler(t, st, &fakeAdapter{name: "alphavantage"})

	got, err := s.loadUniverse(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, universePage+3)
	assert.Equal(t, "SYM0", got[0])
}

func TestLoadUniverse_DropsMalformedAndDuplicates(t *testing.T) {
	st := &fakeStore{universe: []string{"AAPL", "bad sym", "AAPL", "BRK.B", "WAYTOOLONGSYMBOL"}}
	s := newTestScheduler(t, st, &fakeAdapter{name: "alphavantage"})

	got, err := s.loadUniverse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "BRK.B"}, got)
}

func TestLoadUniverse_EmptyFallsBack(t *testing.T) {
	st := &fakeStore{}
	s := newTestScheduler(t, st, &fakeAdapter{name: "alphavantage"})

	got, err := s.loadUniverse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FallbackUniverse, got)
}
