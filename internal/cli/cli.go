// Package cli implements the interactive command loop of a chat process.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/codefionn/shmchat/internal/ipcerr"
	"github.com/codefionn/shmchat/internal/logger"
	"github.com/codefionn/shmchat/internal/session"
)

// Chat is what the loop drives. *session.Session implements it.
type Chat interface {
	PID() int32
	CreateDialog(id int32) (int, error)
	Join(id, pid int32) (int, error)
	Leave(id, pid int32) error
	Send(ctx context.Context, id, sender int32, text string) error
	Recv(ctx context.Context, id, pid int32) (string, error)
	Status() (session.Status, error)
}

// Options configure input, output and presentation.
type Options struct {
	In  io.Reader
	Out io.Writer
	// Color styles the output tags.
	Color bool
	// Markdown renders help through glamour.
	Markdown bool
	// Width bounds rendered help and status lines; 0 means 80.
	Width int
}

// TerminalOptions returns options for stdin/stdout, enabling styling only
// when stdout is a terminal.
func TerminalOptions() Options {
	opts := Options{In: os.Stdin, Out: os.Stdout}
	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		opts.Color = true
		opts.Markdown = true
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			opts.Width = w
		}
	}
	return opts
}

// CLI handles the command loop
type CLI struct {
	chat   Chat
	in     io.Reader
	out    io.Writer
	opts   Options
	styles styles
	log    *logger.Logger
}

// New creates a loop over chat.
func New(chat Chat, opts Options) *CLI {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Width <= 0 {
		opts.Width = 80
	}
	return &CLI{
		chat:   chat,
		in:     opts.In,
		out:    opts.Out,
		opts:   opts,
		styles: newStyles(opts.Out, opts.Color),
		log:    logger.Global().WithPrefix("cli"),
	}
}

// errQuit ends the loop normally.
var errQuit = errors.New("quit")

// Run reads commands until quit, end of input, ctx cancellation or a fatal
// error. Only the fatal error is returned; a cancelled ctx returns its error.
func (c *CLI) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		readErr <- sc.Err()
	}()

	c.tag(tagCLI, "pid=%d ready. Type 'help' for commands.", c.chat.PID())
	for {
		fmt.Fprint(c.out, "> ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return ctx.Err()
		case err := <-readErr:
			fmt.Fprintln(c.out)
			if err != nil {
				return fmt.Errorf("read commands: %w", err)
			}
			c.tag(tagCLI, "EOF, exiting.")
			return nil
		case line = <-lines:
		}

		err := c.Exec(ctx, line)
		switch {
		case err == nil:
		case errors.Is(err, errQuit):
			c.tag(tagCLI, "quitting.")
			return nil
		default:
			return err
		}
	}
}

// fatal reports whether err must end the process rather than the command.
func fatal(err error) bool {
	return ipcerr.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
