package owned

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bloodcheck/internal/prompt"
	"github.com/roach88/bloodcheck/internal/testutil"
)

func TestParseEntries(t *testing.T) {
	input := "\ufeffws01;Wave1\n\n  alice@corp.local  \nsrv02;w2;extra\n;orphan\n"

	entries, err := ParseEntries(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Name: "WS01", Wave: "WAVE1", Line: 1},
		{Name: "ALICE@CORP.LOCAL", Line: 3},
		{Name: "SRV02", Wave: "W2", Line: 4},
	}, entries)
}

func TestInjectSetsOwnedAndWave(t *testing.T) {
	session := testutil.NewFakeSession()
	var out bytes.Buffer
	a := NewAnnotator(&out)

	entries, err := ParseEntries(strings.NewReader("WS01;Wave1\nSRV02\n"))
	require.NoError(t, err)

	sum := a.Inject(context.Background(), session, entries)
	assert.Equal(t, Summary{Applied: 2}, sum)

	calls := session.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, SetOwnedQuery, calls[0].Cypher)
	assert.Equal(t, map[string]any{"name": "WS01"}, calls[0].Params)
	assert.Equal(t, SetWaveQuery, calls[1].Cypher)
	assert.Equal(t, map[string]any{"name": "WS01", "wave": "WAVE1"}, calls[1].Params)
	assert.Equal(t, map[string]any{"name": "SRV02"}, calls[2].Params)
	assert.Contains(t, out.String(), "[+] [WS01] node set as owned")
}

func TestUndoClearsBothAttributes(t *testing.T) {
	session := testutil.NewFakeSession()
	a := NewAnnotator(nil)

	sum := a.Undo(context.Background(), session, []Entry{{Name: "WS01", Wave: "WAVE1"}})
	assert.Equal(t, Summary{Applied: 1}, sum)

	calls := session.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, ClearOwnedQuery, calls[0].Cypher)
	assert.Equal(t, map[string]any{"name": "WS01"}, calls[0].Params)
}

func TestInjectContinuesAfterFailure(t *testing.T) {
	session := testutil.NewFakeSession().FailQuery("SET n.wave", errors.New("constraint"))
	a := NewAnnotator(nil)

	sum := a.Inject(context.Background(), session, []Entry{
		{Name: "WS01", Wave: "WAVE1"},
		{Name: "SRV02"},
	})
	assert.Equal(t, Summary{Applied: 1, Failed: 1}, sum)
	assert.Len(t, session.Calls(), 3)
}

func TestWipe(t *testing.T) {
	session := testutil.NewFakeSession()
	var out bytes.Buffer
	a := NewAnnotator(&out)

	done, err := a.Wipe(context.Background(), session, prompt.NewScripted("y"))
	require.NoError(t, err)
	assert.True(t, done)
	require.Len(t, session.Calls(), 1)
	assert.Equal(t, WipeQuery, session.Calls()[0].Cypher)
}

func TestWipeDeclinedOrAborted(t *testing.T) {
	for _, p := range []prompt.Prompter{prompt.NewScripted("n"), prompt.NewScripted()} {
		session := testutil.NewFakeSession()
		var out bytes.Buffer

		done, err := NewAnnotator(&out).Wipe(context.Background(), session, p)
		require.NoError(t, err)
		assert.False(t, done)
		assert.Empty(t, session.Calls())
		assert.Contains(t, out.String(), "Action aborted")
	}
}
