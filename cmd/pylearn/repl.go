package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/pylearn/internal/logging"
	"github.com/michaelbrown/pylearn/internal/runner"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive Python session backed by the runner",
	Long: `Start a notebook-style session. Every entry runs in a fresh sandboxed
process together with all previous successful entries, so variables and
functions carry over. A trailing bare expression echoes its value.

Lines ending in ":" open a block; finish it with an empty line.`,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

// replSession replays successful entries in front of each new one and only
// shows output produced after the replayed part.
type replSession struct {
	exec       runner.Executor
	entries    []string
	lastOutput string
}

func (s *replSession) Eval(ctx context.Context, entry string) runner.Result {
	code := strings.Join(append(s.entries[:len(s.entries):len(s.entries)], entry), "\n")
	res := s.exec.Run(ctx, runner.Request{Code: code})
	if res.Status != runner.StatusSuccess {
		return res
	}

	full := res.RawOutput
	if full == "" {
		full = res.Output
	}
	res.Output = full
	if strings.HasPrefix(full, s.lastOutput) {
		res.Output = full[len(s.lastOutput):]
	}
	s.entries = append(s.entries, entry)
	s.lastOutput = full
	return res
}

func (s *replSession) Reset() {
	s.entries = nil
	s.lastOutput = ""
}

func (s *replSession) Source() string {
	return strings.Join(s.entries, "\n")
}

func runREPL(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	session := &replSession{exec: newRunner(cfg, logging.Nop())}

	fmt.Printf("pylearn - Interactive Python (%s backend)\n", cfg.Runner.Backend)
	fmt.Printf("Type /help for commands, /quit to exit\n\n")

	historyFile := filepath.Join(os.TempDir(), "pylearn_history")
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".pylearn", "repl_history")
		os.MkdirAll(filepath.Dir(historyFile), 0o755)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36m>>>\033[0m ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Ctrl+C while a snippet runs cancels it instead of exiting.
	var current runCanceller
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			current.Cancel()
		}
	}()

	for {
		entry, err := readEntry(rl)
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}
		if strings.TrimSpace(entry) == "" {
			continue
		}

		if strings.HasPrefix(entry, "/") {
			if quit := handleREPLCommand(entry, session); quit {
				return nil
			}
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		current.Set(cancel)
		res := session.Eval(ctx, entry)
		current.Set(nil)
		cancel()

		printResult(res)
	}
}

// runCanceller holds the cancel func of the running entry. The signal
// goroutine reads it while the main loop swaps it.
type runCanceller struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (c *runCanceller) Set(cancel context.CancelFunc) {
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
}

// Cancel stops the running entry, if any.
func (c *runCanceller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

// readEntry reads one line, or a whole block when the line opens one.
func readEntry(rl *readline.Instance) (string, error) {
	rl.SetPrompt("\033[36m>>>\033[0m ")
	line, err := rl.Readline()
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(strings.TrimSpace(line), ":") {
		return line, nil
	}

	lines := []string{line}
	rl.SetPrompt("\033[36m...\033[0m ")
	for {
		next, err := rl.Readline()
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(next) == "" {
			return strings.Join(lines, "\n"), nil
		}
		lines = append(lines, next)
	}
}

func handleREPLCommand(input string, s *replSession) (quit bool) {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		return true
	case "/reset":
		s.Reset()
		fmt.Println("Session reset.")
	case "/history":
		fmt.Println(s.Source())
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help     - Show this help")
		fmt.Println("  /reset    - Forget all previous entries")
		fmt.Println("  /history  - Show the accumulated source")
		fmt.Println("  /quit     - Exit")
	default:
		fmt.Printf("Unknown command: %s (try /help)\n", input)
	}
	fmt.Println()
	return false
}
