package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/cockroachdb/errors"
	"github.com/google/shlex"
)

// lineReader is the part of *readline.Instance the shell loop uses.
type lineReader interface {
	Readline() (string, error)
}

// runShell reads command lines interactively and runs each one as if it had
// been given on the command line, with globals prepended.
func runShell(out io.Writer, prompt string, globals []string) error {
	historyFile := filepath.Join(os.TempDir(), "timerctl-shell.history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          out,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintln(out, "Interactive shell. Type 'help' for commands, 'exit' to quit.")
	return shellLoop(out, rl, globals)
}

// shellLoop runs lines from rl until exit, end of input or a read failure.
func shellLoop(out io.Writer, rl lineReader, globals []string) error {
	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			fmt.Fprintln(out)
			return nil
		case err != nil:
			return errors.Wrap(err, "failed to read line")
		}
		if done := runShellLine(out, line, globals); done {
			return nil
		}
	}
}

// runShellLine executes one shell line. It reports whether the shell should
// exit.
func runShellLine(out io.Writer, line string, globals []string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "exit", "quit":
		return true
	case "help":
		printShellHelp(out)
		return false
	}

	tokens, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(out, "Parse error: %v\n", err)
		return false
	}
	if len(tokens) == 0 {
		return false
	}
	if tokens[0] == "shell" {
		fmt.Fprintln(out, "Already in the shell.")
		return false
	}

	c := newCLI(out)
	c.app.Terminate(nil)
	args := append(append([]string(nil), globals...), tokens...)
	if err := c.run(args); err != nil {
		fmt.Fprintf(out, "Error: %s\n", describeError(err))
	}
	return false
}

func printShellHelp(out io.Writer) {
	fmt.Fprintln(out, `Commands:
  play <routine-id> [--start N] [--shuffle] [--count N] [--delay S]
  quick <amount> [unit] [--label "Tea"] [--delay S]
  start [index]        delay <seconds> [index]
  pause [--at 1m20s]   resume
  stop [index]         skip <index>
  next                 prev
  status               watch [--ticks]
  routines list|show <id>|import <file>|delete <id>
  prefs get            prefs set key=value...
  exit / quit`)
}
