package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/runbox/internal/language"
	"github.com/michaelbrown/runbox/internal/pkgcache"
	"github.com/michaelbrown/runbox/internal/runner"
)

var registry *language.Registry

func main() {
	var err error
	registry, err = language.Load()
	if err != nil {
		fmt.Printf("loading languages: %v\n", err)
		os.Exit(1)
	}

	s := server.NewMCPServer("runbox-code-runner", "0.1.0")

	s.AddTool(mcp.Tool{
		Name:        "run_code",
		Description: fmt.Sprintf("Execute code on this machine and return its output. Supported languages: %s.", strings.Join(registry.Names(), ", ")),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": "Programming language id (e.g. python, javascript, go)",
				},
				"code": map[string]any{
					"type":        "string",
					"description": "Source code to execute",
				},
				"stdin": map[string]any{
					"type":        "string",
					"description": "Standard input to provide to the program (optional)",
				},
			},
			Required: []string{"language", "code"},
		},
	}, handleRunCode)

	if err := server.ServeStdio(s); err != nil {
		fmt.Printf("server error: %v\n", err)
	}
}

func handleRunCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult("error: invalid arguments"), nil
	}

	lang, _ := args["language"].(string)
	code, _ := args["code"].(string)
	stdin, _ := args["stdin"].(string)

	if lang == "" || code == "" {
		return errResult("error: 'language' and 'code' are required"), nil
	}

	desc, err := registry.Lookup(lang)
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}

	libs := filepath.Join(os.TempDir(), "runbox_tool_libs")
	local := &runner.Local{
		WorkspaceRoot: os.TempDir(),
		Python:        pkgcache.NewPythonCache(filepath.Join(libs, "python")),
		Java:          pkgcache.NewJavaCache(filepath.Join(libs, "java")),
	}

	sess := runner.NewStandalone("tool")
	defer sess.Close()

	var mu sync.Mutex
	var out strings.Builder
	exitCode := 0
	done := make(chan struct{})

	local.Run(ctx, sess, desc, code, desc.File, func(ev runner.Event) {
		switch ev.Type {
		case runner.EventOutput, runner.EventError:
			mu.Lock()
			out.WriteString(ev.Data)
			mu.Unlock()
		case runner.EventComplete:
			if ev.ExitCode != nil {
				exitCode = *ev.ExitCode
			}
			close(done)
		}
	})

	if stdin != "" {
		if !strings.HasSuffix(stdin, "\n") {
			stdin += "\n"
		}
		sess.Write(strings.ReplaceAll(stdin, "\n", "\r"))
	}

	select {
	case <-done:
	case <-ctx.Done():
		sess.Close()
		<-done
	}

	mu.Lock()
	text := out.String()
	mu.Unlock()
	if exitCode != 0 {
		text += fmt.Sprintf("\nexit code: %d", exitCode)
	}
	if len(text) > 4000 {
		text = text[:4000] + "\n... (output truncated)"
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: exitCode != 0,
	}, nil
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
