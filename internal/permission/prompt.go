package permission

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Ning0612/Hotfolder/internal/domain"
)

// TerminalPrompter asks a yes/no question on a terminal.
//
// Lines are read through one buffered reader, so input typed ahead is kept
// for the next question. A read abandoned by a cancelled context stays
// pending, and the line it eventually returns answers the next Confirm.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer

	mu      sync.Mutex
	pending chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// NewTerminalPrompter creates a prompter reading answers from in
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

// Confirm prints the question and accepts y or yes
func (p *TerminalPrompter) Confirm(ctx context.Context, path string, mode domain.AccessMode) (bool, error) {
	what := "read"
	if mode == domain.ModeReadWrite {
		what = "read and delete"
	}
	fmt.Fprintf(p.out, "Allow hotfolder to %s files in %s? [y/N] ", what, path)

	ch := p.readLine()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		p.mu.Lock()
		if p.pending == ch {
			p.pending = nil
		}
		p.mu.Unlock()

		if res.err != nil && res.line == "" {
			return false, res.err
		}
		switch strings.ToLower(strings.TrimSpace(res.line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

// readLine returns the channel of the read in progress, starting one if
// none is pending
func (p *TerminalPrompter) readLine() chan lineResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending == nil {
		ch := make(chan lineResult, 1)
		p.pending = ch
		go func() {
			line, err := p.in.ReadString('\n')
			ch <- lineResult{line: line, err: err}
		}()
	}
	return p.pending
}

// Gesture is a Prompter for callers where the user action that led here
// already is the consent, e.g. pressing Enter on "press Enter to grant"
var Gesture = PrompterFunc(func(context.Context, string, domain.AccessMode) (bool, error) {
	return true, nil
})
