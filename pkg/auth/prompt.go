package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrPromptAborted is returned when the operator cancels the code prompt.
var ErrPromptAborted = errors.New("verification code prompt aborted")

// CodePrompter asks the operator for the SMS verification code. It may block
// indefinitely; only ctx interrupts it.
type CodePrompter interface {
	PromptCode(ctx context.Context) (string, error)
}

// DefaultPromptLabel is shown when asking for the code.
const DefaultPromptLabel = "Enter the verification code: "

// LinePrompter reads the code as one line of text. Blank lines are ignored.
// A single reader goroutine serves every PromptCode call, so a prompt
// cancelled by ctx leaves any line typed afterwards for the next call.
type LinePrompter struct {
	In    io.Reader
	Out   io.Writer
	Label string

	once  sync.Once
	lines chan lineResult
}

// NewLinePrompter creates a prompter reading from in and writing the label
// to out.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{In: in, Out: out, Label: DefaultPromptLabel}
}

type lineResult struct {
	line string
	err  error
}

// readLines feeds p.lines until In is exhausted. The final result carries
// the read error, io.EOF at the end of input, and is repeated for later
// calls.
func (p *LinePrompter) readLines() {
	scanner := bufio.NewScanner(p.In)
	for scanner.Scan() {
		p.lines <- lineResult{line: scanner.Text()}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	for {
		p.lines <- lineResult{err: err}
	}
}

// PromptCode prints the label and returns the first non-blank line.
func (p *LinePrompter) PromptCode(ctx context.Context) (string, error) {
	p.once.Do(func() {
		p.lines = make(chan lineResult)
		go p.readLines()
	})

	for {
		if p.Out != nil {
			fmt.Fprint(p.Out, p.Label)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case r := <-p.lines:
			if r.err != nil {
				return "", fmt.Errorf("%w: %w", ErrPromptAborted, r.err)
			}
			if code := strings.TrimSpace(r.line); code != "" {
				return code, nil
			}
		}
	}
}

// StaticPrompter returns a fixed code. It serves --code style flags and tests.
type StaticPrompter string

// PromptCode returns the code.
func (s StaticPrompter) PromptCode(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrPromptAborted
	}
	return strings.TrimSpace(string(s)), nil
}
