package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/versionsql/internal/config"
	"github.com/kalambet/versionsql/internal/console"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive query console against a running server",
	Long: `Interactive query console against a running server.

Lines accumulate until one ends with ";" or ".run" is entered; the text is
then sent as-is. Successful queries are kept in the session history.

Commands:
  .run         send the current buffer
  .show        print the current buffer
  .clear       discard the current buffer
  .history     list successful queries
  .recall N    load history entry N into the buffer without running it
  .quit        leave the console`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ep, err := client.endpoint()
		if err != nil {
			return err
		}

		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		if interactive {
			fmt.Fprintf(errOut, "versionsql console, connected to %s. Type .quit to leave.\n", ep.URL())
		}
		r := newREPL(ep, cmd.InOrStdin(), cfg.ClientTimeout(), interactive)
		return r.run(cmd.Context())
	},
}

const (
	promptFirst = "versionsql> "
	promptMore  = "        ...> "
)

// termView renders console state on the terminal.
type termView struct{}

func (termView) SetSubmitEnabled(enabled bool) {}

func (termView) ShowResult(pretty string) { fmt.Fprintln(out, pretty) }

func (termView) Alert(msg string) { printError("%s", msg) }

func (termView) AppendHistory(e console.Entry) {
	fmt.Fprintln(errOut, colorize(colorDim, "saved to history at "+e.Label))
}

func (termView) SetInput(text string) {
	fmt.Fprintln(errOut, colorize(colorDim, "buffer:"))
	fmt.Fprintln(errOut, text)
}

type repl struct {
	console     *console.Console
	in          io.Reader
	timeout     time.Duration
	interactive bool
}

func newREPL(ep console.Endpoint, in io.Reader, timeout time.Duration, interactive bool) *repl {
	return &repl{
		console:     console.New(ep, termView{}),
		in:          in,
		timeout:     timeout,
		interactive: interactive,
	}
}

func (r *repl) prompt() {
	if !r.interactive {
		return
	}
	if r.console.Input() == "" {
		fmt.Fprint(errOut, promptFirst)
	} else {
		fmt.Fprint(errOut, promptMore)
	}
}

func (r *repl) run(ctx context.Context) error {
	sc := bufio.NewScanner(r.in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	r.prompt()
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := sc.Text()
		if cmd := strings.TrimSpace(line); strings.HasPrefix(cmd, ".") {
			if quit := r.command(ctx, cmd); quit {
				return nil
			}
			r.prompt()
			continue
		}

		r.appendLine(line)
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			r.submit(ctx)
		}
		r.prompt()
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	if r.interactive {
		fmt.Fprintln(errOut)
	}
	return nil
}

func (r *repl) appendLine(line string) {
	if buf := r.console.Input(); buf != "" {
		line = buf + "\n" + line
	}
	r.console.SetInput(line)
}

// command runs a dot command and reports whether the console should exit.
func (r *repl) command(ctx context.Context, cmd string) bool {
	name, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case ".quit", ".exit":
		return true
	case ".run":
		r.submit(ctx)
	case ".show":
		fmt.Fprintln(out, r.console.Input())
	case ".clear":
		r.console.SetInput("")
	case ".history":
		r.printHistory()
	case ".recall":
		i, err := strconv.Atoi(arg)
		if err != nil {
			printError("usage: .recall N")
			return false
		}
		if err := r.console.SelectHistoryEntry(i); err != nil {
			printError("%v", err)
		}
	case ".help":
		fmt.Fprintln(errOut, ".run .show .clear .history .recall N .quit")
	default:
		printError("unknown command %s (try .help)", name)
	}
	return false
}

func (r *repl) submit(ctx context.Context) {
	text := r.console.Input()
	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.console.Submit(sctx, text)
	var f *console.Failure
	if err != nil && !errors.As(err, &f) {
		printError("%v", err)
	}
	r.console.SetInput("")
}

func (r *repl) printHistory() {
	hist := r.console.History()
	if len(hist) == 0 {
		fmt.Fprintln(errOut, colorize(colorDim, "no history yet"))
		return
	}
	for i, e := range hist {
		first, _, more := strings.Cut(e.Query, "\n")
		if more {
			first += " ..."
		}
		fmt.Fprintf(out, "%3d  %s  %s\n", i, colorize(colorDim, e.Label), first)
	}
}
