package headless

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/deskhost/deskhost/internal/host"
)

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	titleStyle   = lipgloss.NewStyle().Bold(true)
	detailStyle  = lipgloss.NewStyle().Faint(true)
	defaultStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
)

// renderMessageBox draws the dialog and its numbered choices.
func renderMessageBox(opts host.MessageBoxOptions) string {
	var b strings.Builder
	if opts.Title != "" {
		b.WriteString(titleStyle.Render(opts.Title))
		b.WriteString("\n\n")
	}
	b.WriteString(opts.Message)
	if opts.Detail != "" {
		b.WriteString("\n\n")
		b.WriteString(detailStyle.Render(opts.Detail))
	}
	b.WriteString("\n")
	for i, label := range opts.Buttons {
		line := fmt.Sprintf("[%d] %s", i+1, label)
		if i == opts.DefaultID {
			line = defaultStyle.Render(line + " (default)")
		}
		b.WriteString("\n")
		b.WriteString(line)
	}
	return boxStyle.Render(b.String())
}

// promptTerminal asks on in/out. Empty input picks DefaultID; EOF or an
// invalid answer picks CancelID.
func promptTerminal(in io.Reader, out io.Writer, opts host.MessageBoxOptions) (int, error) {
	if len(opts.Buttons) == 0 {
		opts.Buttons = []string{"OK"}
	}
	fmt.Fprintln(out, renderMessageBox(opts))
	fmt.Fprintf(out, "Choose 1-%d: ", len(opts.Buttons))

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return opts.CancelID, nil
		}
		return opts.CancelID, fmt.Errorf("failed to read answer: %w", err)
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return opts.DefaultID, nil
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(opts.Buttons) {
		return opts.CancelID, nil
	}
	return n - 1, nil
}

func buttonLabel(opts host.MessageBoxOptions, id int) string {
	if id >= 0 && id < len(opts.Buttons) {
		return opts.Buttons[id]
	}
	return strconv.Itoa(id)
}
