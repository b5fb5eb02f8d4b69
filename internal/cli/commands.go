package cli

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/codefionn/shmchat/internal/consts"
	"github.com/codefionn/shmchat/internal/ipcerr"
)

// Exec runs one command line. Recoverable failures are printed and nil is
// returned; fatal IPC errors and context errors are returned to the caller.
func (c *CLI) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimLeft(rest, " \t")

	switch name {
	case "help":
		c.help()
		return nil
	case "quit", "exit":
		return errQuit
	case "status":
		return c.status()
	}

	idText, text, _ := strings.Cut(rest, " ")
	id, err := parseID(idText)
	if err != nil {
		if name == "send" {
			c.tag(tagError, "usage: send <id> <text>")
		} else {
			c.tag(tagError, "unknown or invalid command. Type 'help'.")
		}
		return nil
	}

	switch name {
	case "create":
		return c.create(id)
	case "join":
		return c.join(id)
	case "leave":
		return c.leave(id)
	case "send":
		text = strings.TrimLeft(text, " \t")
		if text == "" {
			c.tag(tagError, "empty message.")
			return nil
		}
		return c.send(ctx, id, text)
	case "recv":
		_, err := c.recv(ctx, id)
		return err
	case "listen":
		return c.listen(ctx, id)
	case "terminate":
		return c.send(ctx, id, consts.TerminateText)
	default:
		c.tag(tagError, "unknown or invalid command. Type 'help'.")
		return nil
	}
}

func parseID(s string) (int32, error) {
	if s == "" {
		return 0, errors.New("missing dialog id")
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

func (c *CLI) create(id int32) error {
	row, err := c.chat.CreateDialog(id)
	if err != nil {
		if fatal(err) {
			return err
		}
		c.tag(tagError, "cannot create dialog %d (no free slot)", id)
		return nil
	}
	c.tag(tagOK, "dialog %d created at slot %d", id, row)
	return nil
}

func (c *CLI) join(id int32) error {
	me := c.chat.PID()
	slot, err := c.chat.Join(id, me)
	if err != nil {
		if fatal(err) {
			return err
		}
		c.tag(tagError, "cannot join dialog %d: %s", id, reason(err))
		return nil
	}
	c.tag(tagOK, "pid %d joined dialog %d at slot %d", me, id, slot)
	return nil
}

func (c *CLI) leave(id int32) error {
	me := c.chat.PID()
	if err := c.chat.Leave(id, me); err != nil {
		if fatal(err) {
			return err
		}
		c.tag(tagWarn, "pid %d was not in dialog %d", me, id)
		return nil
	}
	c.tag(tagOK, "pid %d left dialog %d", me, id)
	return nil
}

func (c *CLI) send(ctx context.Context, id int32, text string) error {
	if err := c.chat.Send(ctx, id, c.chat.PID(), text); err != nil {
		if fatal(err) {
			return err
		}
		c.tag(tagError, "send failed for dialog %d: %s", id, reason(err))
		return nil
	}
	c.tag(tagOK, "sent to dialog %d: %s", id, text)
	return nil
}

// recv prints one message. stop is set when a listener should end: the
// message was the terminate notice or the receive failed.
func (c *CLI) recv(ctx context.Context, id int32) (stop bool, err error) {
	text, err := c.chat.Recv(ctx, id, c.chat.PID())
	if err != nil {
		if fatal(err) {
			return true, err
		}
		c.tag(tagError, "recv failed for dialog %d: %s", id, reason(err))
		return true, nil
	}

	c.tag(tagRecv, "dialog %d: %s", id, text)
	if text == consts.TerminateText {
		c.tag(tagInfo, "received TERMINATE for dialog %d", id)
		return true, nil
	}
	return false, nil
}

func (c *CLI) listen(ctx context.Context, id int32) error {
	c.tag(tagInfo, "listening on dialog %d until TERMINATE", id)
	for {
		stop, err := c.recv(ctx, id)
		if stop || err != nil {
			return err
		}
	}
}

// reason turns a sentinel into a short user-facing phrase.
func reason(err error) string {
	switch {
	case errors.Is(err, ipcerr.ErrNotFound):
		return "no such dialog or not a participant"
	case errors.Is(err, ipcerr.ErrFull):
		return "dialog is full"
	case errors.Is(err, ipcerr.ErrEmpty):
		return "dialog has no participants"
	default:
		return err.Error()
	}
}
