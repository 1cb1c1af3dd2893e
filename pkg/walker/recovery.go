package walker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

// Recoverer is consulted when the listing looks blocked. A nil return means the
// block has been cleared and the same request may be re-issued. Any error ends the run.
type Recoverer interface {
	AwaitRecovery(ctx context.Context, cause error) error
}

// RecovererFunc adapts a plain function to Recoverer
type RecovererFunc func(ctx context.Context, cause error) error

// AwaitRecovery calls f
func (f RecovererFunc) AwaitRecovery(ctx context.Context, cause error) error { return f(ctx, cause) }

// PromptRecoverer asks the operator to clear the challenge in a browser and waits
// for a line on the input.
type PromptRecoverer struct {
	in   io.Reader
	out  io.Writer
	hint string // Where the operator should go to clear the challenge
	log  *logrus.Entry

	once    sync.Once
	lines   chan struct{}
	readErr error // Set before lines is closed
}

// NewPromptRecoverer creates a PromptRecoverer reading from in and prompting on out
func NewPromptRecoverer(in io.Reader, out io.Writer, hint string, log *logrus.Entry) *PromptRecoverer {
	return &PromptRecoverer{
		in:   in,
		out:  out,
		hint: hint,
		log:  log.WithField("component", "recovery"),
	}
}

// start launches the single reader goroutine feeding lines
func (p *PromptRecoverer) start() {
	p.lines = make(chan struct{})
	go func() {
		sc := bufio.NewScanner(p.in)
		for sc.Scan() {
			p.lines <- struct{}{}
		}
		p.readErr = sc.Err()
		if p.readErr == nil {
			p.readErr = io.EOF
		}
		close(p.lines)
	}()
}

// AwaitRecovery prints the prompt and blocks until the operator presses Enter.
// Lines entered before the prompt are discarded. End of input aborts with
// ErrRecoveryAborted.
func (p *PromptRecoverer) AwaitRecovery(ctx context.Context, cause error) error {
	p.once.Do(p.start)
	p.discardPending()

	fmt.Fprintf(p.out, "\nRequests look blocked: %v\n", cause)
	if p.hint != "" {
		fmt.Fprintf(p.out, "Open %s in a browser and solve the captcha.\n", p.hint)
	}
	fmt.Fprint(p.out, "Press Enter to continue...")
	p.log.Info("Waiting for operator")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-p.lines:
		if !ok {
			return fmt.Errorf("%w: %v", utils.ErrRecoveryAborted, p.readErr)
		}
		return nil
	}
}

// discardPending drops lines the reader is already holding
func (p *PromptRecoverer) discardPending() {
	for {
		select {
		case _, ok := <-p.lines:
			if !ok {
				return
			}
			p.log.Debug("Discarding input entered before the prompt")
		default:
			return
		}
	}
}
