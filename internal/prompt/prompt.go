package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrAborted reports that the operator can no longer answer.
var ErrAborted = errors.New("prompt aborted")

// Prompter asks the operator for an index, a name or a confirmation.
type Prompter interface {
	// AskIndex returns an index in [0, n).
	AskIndex(question string, n int) (int, error)

	// AskName returns a trimmed, possibly empty, line of input.
	AskName(question string) (string, error)

	// Confirm returns true only for an explicit yes.
	Confirm(question string) (bool, error)
}

// Terminal prompts on Out and reads answers line by line from In.
type Terminal struct {
	In  io.Reader
	Out io.Writer

	// Done aborts a pending prompt when closed, typically ctx.Done().
	Done <-chan struct{}

	lines    chan line
	finished chan struct{}
}

type line struct {
	text string
	err  error
	eof  bool
}

// NewTerminal returns a Terminal reading in and writing out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{In: in, Out: out}
}

// start reads In on its own goroutine so that a blocked read never
// outlives Done. The reader stops at the first line read after Done.
func (t *Terminal) start() {
	t.lines = make(chan line)
	t.finished = make(chan struct{})
	go func() {
		defer close(t.finished)
		scanner := bufio.NewScanner(t.In)
		for scanner.Scan() {
			if !t.send(line{text: scanner.Text()}) {
				return
			}
		}
		if t.send(line{err: scanner.Err(), eof: true}) {
			close(t.lines)
		}
	}()
}

// send hands l to a pending prompt and reports false once Done is closed.
func (t *Terminal) send(l line) bool {
	select {
	case t.lines <- l:
		return true
	case <-t.Done:
		return false
	}
}

func (t *Terminal) readLine(question string) (string, error) {
	if t.lines == nil {
		t.start()
	}
	fmt.Fprint(t.Out, question)

	select {
	case l, ok := <-t.lines:
		if !ok || l.eof {
			fmt.Fprintln(t.Out)
			if l.err != nil {
				return "", fmt.Errorf("%w: %v", ErrAborted, l.err)
			}
			return "", ErrAborted
		}
		return strings.TrimSpace(l.text), nil
	case <-t.Done:
		fmt.Fprintln(t.Out)
		return "", ErrAborted
	}
}

// AskIndex re-prompts until the answer is an integer in [0, n).
func (t *Terminal) AskIndex(question string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: nothing to choose from", ErrAborted)
	}
	for {
		line, err := t.readLine(question)
		if err != nil {
			return 0, err
		}
		idx, err := strconv.Atoi(line)
		if err != nil {
			fmt.Fprintln(t.Out, "[!] Please enter a number")
			continue
		}
		if idx < 0 || idx >= n {
			fmt.Fprintf(t.Out, "[!] Please choose between 0 and %d\n", n-1)
			continue
		}
		return idx, nil
	}
}

// AskName returns the next line of input.
func (t *Terminal) AskName(question string) (string, error) {
	return t.readLine(question)
}

// Confirm accepts "y" or "yes" in any case; everything else declines.
func (t *Terminal) Confirm(question string) (bool, error) {
	line, err := t.readLine(question + " (y/N) ")
	if err != nil {
		return false, err
	}
	return IsYes(line), nil
}

// IsYes reports whether answer is an explicit yes.
func IsYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// Scripted answers prompts from Answers in order.
// Answers for AskIndex are parsed like terminal input, so malformed and
// out-of-range entries are skipped the same way a terminal would re-prompt.
type Scripted struct {
	Answers []string

	// Asked records every question in order.
	Asked []string
}

// NewScripted returns a Scripted prompter.
func NewScripted(answers ...string) *Scripted {
	return &Scripted{Answers: answers}
}

func (s *Scripted) next(question string) (string, error) {
	s.Asked = append(s.Asked, question)
	if len(s.Answers) == 0 {
		return "", ErrAborted
	}
	answer := s.Answers[0]
	s.Answers = s.Answers[1:]
	return strings.TrimSpace(answer), nil
}

func (s *Scripted) AskIndex(question string, n int) (int, error) {
	for {
		answer, err := s.next(question)
		if err != nil {
			return 0, err
		}
		if idx, err := strconv.Atoi(answer); err == nil && idx >= 0 && idx < n {
			return idx, nil
		}
	}
}

func (s *Scripted) AskName(question string) (string, error) {
	return s.next(question)
}

func (s *Scripted) Confirm(question string) (bool, error) {
	answer, err := s.next(question)
	if err != nil {
		return false, err
	}
	return IsYes(answer), nil
}

// Remaining returns the number of unused answers.
func (s *Scripted) Remaining() int {
	return len(s.Answers)
}
