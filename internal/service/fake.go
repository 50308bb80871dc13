package service

import (
	"context"
	"strings"
	"sync"
)

// FakeRunner is a Runner answering from scripted outputs keyed by the full
// command line ("service neo4j status"). Unscripted commands succeed with
// no output.
type FakeRunner struct {
	mu       sync.Mutex
	outputs  map[string]fakeResult
	commands []string
}

type fakeResult struct {
	out string
	err error
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{outputs: make(map[string]fakeResult)}
}

// On scripts the output and error of command.
func (f *FakeRunner) On(command, out string, err error) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[command] = fakeResult{out: out, err: err}
	return f
}

func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	command := strings.Join(append([]string{name}, args...), " ")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	res := f.outputs[command]
	return []byte(res.out), res.err
}

// Commands returns the command lines run so far.
func (f *FakeRunner) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}
