package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bloodcheck/internal/graph"
)

func TestFixedGenerator_ReturnsInOrder(t *testing.T) {
	gen := NewFixedGenerator("a", "b", "c")

	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.Equal(t, "c", gen.Generate())
}

func TestFixedGenerator_PanicsWhenExhausted(t *testing.T) {
	gen := NewFixedGenerator("only")
	gen.Generate()

	assert.PanicsWithValue(t, "FixedGenerator: all values exhausted", func() {
		gen.Generate()
	})
}

func TestFixedClock(t *testing.T) {
	clock := NewFixedClock(2024, time.March, 5, 14, 30, 0)
	assert.Equal(t, clock.Now(), clock.Now())
	assert.Equal(t, "20240305-143000", clock.Now().Format("20060102-150405"))
}

func TestFakeSession_MatchesInRegistrationOrder(t *testing.T) {
	s := NewFakeSession().
		OnQuery("n:Domain", graph.Record{"Domain": "CORP.LOCAL"}).
		OnQuery("MATCH", graph.Record{"x": 1})

	res, err := s.Run(context.Background(), "MATCH (n:Domain) RETURN n.name AS Domain", nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())
	assert.Equal(t, "CORP.LOCAL", res.Records[0]["Domain"])

	res, err = s.Run(context.Background(), "MATCH (u:User) RETURN u", map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Records[0]["x"])

	calls := s.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 1, calls[1].Params["a"])
}

func TestFakeSession_FailAndClose(t *testing.T) {
	boom := errors.New("boom")
	s := NewFakeSession().FailQuery("bad", boom)

	_, err := s.Run(context.Background(), "bad query", nil)
	assert.ErrorIs(t, err, boom)

	res, err := s.Run(context.Background(), "unmatched", nil)
	require.NoError(t, err)
	assert.Zero(t, res.Len())

	require.NoError(t, s.Close(context.Background()))
	assert.True(t, s.Closed())
	_, err = s.Run(context.Background(), "unmatched", nil)
	assert.Error(t, err)
}
