package cli

import (
	"fmt"
	"io"
	"math/bits"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
)

type tagKind int

const (
	tagCLI tagKind = iota
	tagOK
	tagError
	tagWarn
	tagRecv
	tagInfo
)

var tagNames = [...]string{
	tagCLI:   "[cli]",
	tagOK:    "[ok]",
	tagError: "[error]",
	tagWarn:  "[warn]",
	tagRecv:  "[recv]",
	tagInfo:  "[info]",
}

type styles struct {
	tags   [len(tagNames)]lipgloss.Style
	header lipgloss.Style
	plain  bool
}

func newStyles(w io.Writer, color bool) styles {
	if !color {
		return styles{plain: true}
	}
	r := lipgloss.NewRenderer(w)
	var s styles
	s.tags[tagCLI] = r.NewStyle().Faint(true)
	s.tags[tagOK] = r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	s.tags[tagError] = r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	s.tags[tagWarn] = r.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	s.tags[tagRecv] = r.NewStyle().Foreground(lipgloss.Color("45")).Bold(true)
	s.tags[tagInfo] = r.NewStyle().Foreground(lipgloss.Color("111"))
	s.header = r.NewStyle().Bold(true).Underline(true)
	return s
}

func (s styles) tag(k tagKind) string {
	if s.plain {
		return tagNames[k]
	}
	return s.tags[k].Render(tagNames[k])
}

func (s styles) heading(text string) string {
	if s.plain {
		return text
	}
	return s.header.Render(text)
}

// tag prints one tagged output line.
func (c *CLI) tag(k tagKind, format string, args ...any) {
	fmt.Fprintf(c.out, "%s %s\n", c.styles.tag(k), fmt.Sprintf(format, args...))
}

const helpMarkdown = `# Commands

| Command | Effect |
|---------|--------|
| ` + "`create <id>`" + ` | create dialog *id* if it does not exist |
| ` + "`join <id>`" + ` | join dialog *id* |
| ` + "`leave <id>`" + ` | leave dialog *id* |
| ` + "`send <id> <text>`" + ` | send *text* to every participant |
| ` + "`recv <id>`" + ` | wait for the next message of dialog *id* |
| ` + "`listen <id>`" + ` | receive until TERMINATE arrives |
| ` + "`terminate <id>`" + ` | send TERMINATE to dialog *id* |
| ` + "`status`" + ` | show dialogs, queued messages and semaphores |
| ` + "`quit`" + ` | leave the loop |
`

var helpPlain = []string{
	"create <id>",
	"join <id>",
	"leave <id>",
	"send <id> <text>",
	"recv <id>",
	"listen <id>",
	"terminate <id>",
	"status",
	"quit",
}

func (c *CLI) help() {
	if c.opts.Markdown {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(c.opts.Width),
		)
		if err == nil {
			if out, err := r.Render(helpMarkdown); err == nil {
				fmt.Fprint(c.out, out)
				return
			}
		}
		c.log.Debug("help rendering failed, falling back to plain text")
	}

	fmt.Fprintln(c.out, "Commands:")
	for _, line := range helpPlain {
		fmt.Fprintf(c.out, "  %s\n", line)
	}
}

// status prints a snapshot. Message text is cut to the output width.
func (c *CLI) status() error {
	st, err := c.chat.Status()
	if err != nil {
		if fatal(err) {
			return err
		}
		c.tag(tagError, "status failed: %v", err)
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", c.styles.heading("Semaphores"))
	for _, s := range st.Semaphores {
		fmt.Fprintf(&b, "  %-7s value=%-4d waiting=%d\n", s.Name, s.Value, s.Waiting)
	}

	fmt.Fprintf(&b, "%s\n", c.styles.heading(fmt.Sprintf("Dialogs (%d)", len(st.State.Dialogs))))
	for _, d := range st.State.Dialogs {
		pids := make([]string, 0, len(d.Participants))
		for _, p := range d.Participants {
			marker := ""
			if p.PID == st.PID {
				marker = "*"
			}
			pids = append(pids, fmt.Sprintf("%d:%d%s", p.Slot, p.PID, marker))
		}
		line := fmt.Sprintf("  #%d row=%d participants=%d [%s]", d.ID, d.Row, d.Count, strings.Join(pids, " "))
		b.WriteString(wordwrap.String(line, c.opts.Width))
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "%s\n", c.styles.heading(fmt.Sprintf("Ring head=%d tail=%d count=%d", st.State.Head, st.State.Tail, st.State.Count)))
	for _, m := range st.State.Messages {
		prefix := fmt.Sprintf("  @%-3d dialog=%d from=%d pending=%d read=%d/%d ",
			m.Pos, m.DialogID, m.Sender, m.Pending(), bits.OnesCount32(m.ReadMask), m.Snapshot)
		room := c.opts.Width - len(prefix) - 2
		if room < 8 {
			room = 8
		}
		fmt.Fprintf(&b, "%s%q\n", prefix, truncate.StringWithTail(m.Text, uint(room), "…"))
	}

	fmt.Fprintf(&b, "%s sent=%d delivered=%d false_wakes=%d freed=%d attachments=%d\n",
		c.styles.heading("This process"), st.Ring.Sent, st.Ring.Delivered, st.Ring.FalseWakes, st.Ring.Freed, st.Attachments)

	fmt.Fprint(c.out, b.String())
	return nil
}
