package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/runbox/internal/config"
	"github.com/michaelbrown/runbox/internal/terminal"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start a sandboxed shell session",
	Long: `Start an interactive shell confined to the runbox workspace root.
The cd built-in refuses to leave the sandbox; everything else runs
through the system shell.

Examples:
  runbox shell`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	root := filepath.Join(cfg.Execution.WorkspaceRoot, "shell")

	// idle is signalled when a command finishes so the prompt waits for
	// it instead of interleaving with output.
	var mu sync.Mutex
	cwd := "~"
	idle := make(chan struct{}, 1)

	mgr := terminal.NewManager(func(_ string, ev terminal.Event) {
		switch ev.Type {
		case terminal.EventOutput:
			fmt.Print(ev.Data)
		case terminal.EventCwd:
			mu.Lock()
			cwd = ev.Data
			mu.Unlock()
		case terminal.EventStatus:
			if !ev.Busy {
				select {
				case idle <- struct{}{}:
				default:
				}
			}
		}
	})
	defer mgr.CloseAll()

	if err := mgr.Init("local", root); err != nil {
		return err
	}

	fmt.Printf("runbox shell (sandbox: %s)\n", root)
	fmt.Printf("Type exit to quit\n\n")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt(cwd),
		HistoryFile:     "/tmp/runbox_shell_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	for {
		mu.Lock()
		rl.SetPrompt(prompt(cwd))
		mu.Unlock()

		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Println("Goodbye!")
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return nil
		}

		wasBuiltin := strings.Fields(input)[0] == "cd" || input == "clear" || input == "cls"
		mgr.RunCommand("local", input)
		if !wasBuiltin {
			<-idle
		}
	}
}

func prompt(cwd string) string {
	return fmt.Sprintf("\033[36m%s>\033[0m ", cwd)
}
