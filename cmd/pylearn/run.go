package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pylearn/internal/logging"
	"github.com/michaelbrown/pylearn/internal/runner"
)

var timeoutFlag time.Duration

var runCmd = &cobra.Command{
	Use:   "run <file.py|->",
	Short: "Run a Python file through the sandboxed runner",
	Long: `Run a Python file the same way the server does. A trailing bare
expression is displayed like a notebook cell. Use "-" to read stdin.

Examples:
  pylearn run hello.py
  pylearn run --timeout 2s loop.py
  echo '1 + 1' | pylearn run -`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "Execution timeout (default from config)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var src []byte
	if args[0] == "-" {
		src, err = io.ReadAll(os.Stdin)
	} else {
		src, err = os.ReadFile(args[0])
	}
	if err != nil {
		return err
	}

	r := newRunner(cfg, logging.Nop())
	res := r.Run(context.Background(), runner.Request{Code: string(src), Timeout: timeoutFlag})
	printResult(res)
	if res.Status != runner.StatusSuccess {
		os.Exit(1)
	}
	return nil
}

func printResult(res runner.Result) {
	if res.Status != runner.StatusSuccess {
		fmt.Fprintf(os.Stderr, "\033[31m%s\033[0m\n", res.Error)
		return
	}
	fmt.Print(res.Output)
	if res.JupyterDisplay {
		fmt.Printf("\033[32mOut:\033[0m %s\n", res.ExpressionValue)
	}
	if res.Truncated {
		fmt.Println("\033[90m(output truncated)\033[0m")
	}
}
