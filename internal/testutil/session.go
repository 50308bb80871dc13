package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/roach88/bloodcheck/internal/graph"
)

// Call records one FakeSession.Run invocation.
type Call struct {
	Cypher string
	Params map[string]any
}

// FakeSession is a graph.Session that answers from scripted responses.
//
// Responses are matched by substring against the submitted Cypher, in the
// order they were registered. Unmatched queries return an empty result.
//
// Thread-safety: FakeSession is safe for concurrent use via internal mutex.
type FakeSession struct {
	mu        sync.Mutex
	responses []response
	calls     []Call
	closed    bool
}

type response struct {
	match  string
	result graph.Result
	err    error
}

// NewFakeSession creates an empty fake session.
func NewFakeSession() *FakeSession {
	return &FakeSession{}
}

// OnQuery registers records returned for Cypher containing match.
func (s *FakeSession) OnQuery(match string, records ...graph.Record) *FakeSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, response{match: match, result: graph.Result{Records: records}})
	return s
}

// FailQuery registers an error returned for Cypher containing match.
func (s *FakeSession) FailQuery(match string, err error) *FakeSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = errors.New("fake session failure")
	}
	s.responses = append(s.responses, response{match: match, err: err})
	return s
}

// Run implements graph.Session.
func (s *FakeSession) Run(ctx context.Context, cypher string, params map[string]any) (graph.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return graph.Result{}, err
	}
	if s.closed {
		return graph.Result{}, errors.New("session closed")
	}

	copied := make(map[string]any, len(params))
	for k, v := range params {
		copied[k] = v
	}
	s.calls = append(s.calls, Call{Cypher: cypher, Params: copied})

	for _, r := range s.responses {
		if strings.Contains(cypher, r.match) {
			return r.result, r.err
		}
	}
	return graph.Result{}, nil
}

// Close implements graph.Session.
func (s *FakeSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Calls returns a copy of every recorded Run call, in order.
func (s *FakeSession) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Closed reports whether Close was called.
func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
