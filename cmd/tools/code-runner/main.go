// Command code-runner exposes the sandboxed Python runner and the exercise
// resolver as MCP tools over stdio.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/pylearn/internal/catalog"
	"github.com/michaelbrown/pylearn/internal/config"
	"github.com/michaelbrown/pylearn/internal/exercise"
	"github.com/michaelbrown/pylearn/internal/logging"
	"github.com/michaelbrown/pylearn/internal/runner"
	"github.com/michaelbrown/pylearn/internal/sandbox"
)

const maxToolOutput = 4000

type toolServer struct {
	exec     runner.Executor
	resolver *exercise.Resolver
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Level, false)

	cat, err := catalog.Load(cfg.CatalogPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading catalog: %v\n", err)
		os.Exit(1)
	}

	ts := &toolServer{
		exec: runner.New(sandbox.FromConfig(cfg.Runner), runner.Options{
			DefaultTimeout: cfg.Runner.DefaultTimeout,
			MaxTimeout:     cfg.Runner.MaxTimeout,
			Logger:         &logger,
		}),
		resolver: exercise.NewResolver(cfg.Content.Root, cat, &logger),
	}

	s := server.NewMCPServer("pylearn-code-runner", "0.1.0")
	ts.register(s)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
	}
}

func (ts *toolServer) register(s *server.MCPServer) {
	s.AddTool(mcp.Tool{
		Name: "run_python",
		Description: "Execute Python code in a sandboxed interpreter. A trailing bare " +
			"expression is displayed like a notebook cell.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Python source to execute",
				},
				"timeout": map[string]any{
					"type":        "number",
					"description": "Timeout in seconds (optional, default 5)",
				},
			},
			Required: []string{"code"},
		},
	}, ts.handleRunPython)

	s.AddTool(mcp.Tool{
		Name:        "list_topic_exercises",
		Description: "List the exercises of a topic (id, title, difficulty).",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"topic_id": map[string]any{
					"type":        "string",
					"description": "Topic id, e.g. variables",
				},
			},
			Required: []string{"topic_id"},
		},
	}, ts.handleListTopic)

	s.AddTool(mcp.Tool{
		Name:        "get_exercise",
		Description: "Get one exercise with all of its fields as JSON.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"exercise_id": map[string]any{
					"type":        "string",
					"description": "Exercise id, e.g. variables_001",
				},
			},
			Required: []string{"exercise_id"},
		},
	}, ts.handleGetExercise)
}

func (ts *toolServer) handleRunPython(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult("error: invalid arguments"), nil
	}
	code, ok := args["code"].(string)
	if !ok {
		return errResult("error: 'code' is required"), nil
	}

	req := runner.Request{Code: code}
	if secs, ok := args["timeout"].(float64); ok && secs > 0 {
		req.Timeout = time.Duration(secs * float64(time.Second))
	}

	res := ts.exec.Run(ctx, req)

	var output strings.Builder
	if res.Status == runner.StatusSuccess {
		output.WriteString(res.Output)
		if res.JupyterDisplay {
			if output.Len() > 0 && !strings.HasSuffix(output.String(), "\n") {
				output.WriteString("\n")
			}
			output.WriteString("Out: " + res.ExpressionValue)
		}
	} else {
		output.WriteString("error:\n" + res.Error)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: clip(output.String(), maxToolOutput)}},
		IsError: res.Status != runner.StatusSuccess,
	}, nil
}

func (ts *toolServer) handleListTopic(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	topicID, _ := args["topic_id"].(string)
	if topicID == "" {
		return errResult("error: 'topic_id' is required"), nil
	}

	exs := ts.resolver.ForTopic(topicID)
	if len(exs) == 0 {
		return textResult(fmt.Sprintf("no exercises found for topic %q", topicID)), nil
	}

	var b strings.Builder
	for _, ex := range exs {
		fmt.Fprintf(&b, "%s\t%s\t%s\n", ex.ID(), ex.Difficulty(), ex.Title())
	}
	return textResult(b.String()), nil
}

func (ts *toolServer) handleGetExercise(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	id, _ := args["exercise_id"].(string)
	if id == "" {
		return errResult("error: 'exercise_id' is required"), nil
	}

	ex, err := ts.resolver.ByID(id)
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	data, err := json.MarshalIndent(ex, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	return textResult(string(data)), nil
}

// clip cuts text to at most max bytes without splitting a UTF-8 sequence.
func clip(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "\n... (output truncated)"
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
