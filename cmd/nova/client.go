package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/cathedral/nova/internal/config"
	"github.com/cathedral/nova/internal/server"
	"github.com/cathedral/nova/internal/tui"
)

var errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

// printReply writes a daemon reply, coloring error replies when stdout is a
// terminal.
func printReply(reply string) {
	if strings.HasPrefix(reply, server.ErrorSigil) && isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Println(errStyle.Render(reply))
		return
	}
	fmt.Println(reply)
}

func socketPath() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("config load: %w", err)
	}
	return cfg.SocketPath, nil
}

func runStatusCommand() int {
	socket, err := socketPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	reply, err := tui.Call(socket, map[string]any{"command": "status"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	printReply(reply)
	return 0
}

func runCallCommand(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: nova call <command> [json]")
		return 2
	}
	request := map[string]any{"command": args[0]}
	if len(args) > 1 {
		var fields map[string]any
		if err := json.Unmarshal([]byte(args[1]), &fields); err != nil {
			fmt.Fprintf(os.Stderr, "invalid json argument: %v\n", err)
			return 2
		}
		for k, v := range fields {
			if k != "command" {
				request[k] = v
			}
		}
	}

	socket, err := socketPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	reply, err := tui.Call(socket, request)
	if err != nil {
		fmt.Fprintf(os.Stderr, "call: %v\n", err)
		return 1
	}
	printReply(reply)
	if strings.HasPrefix(reply, server.ErrorSigil) {
		return 1
	}
	return 0
}

func runSayCommand(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: nova say <text>")
		return 2
	}
	socket, err := socketPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	reply, err := tui.Call(socket, map[string]any{
		"command": "speak",
		"text":    strings.Join(args, " "),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "say: %v\n", err)
		return 1
	}
	printReply(reply)
	return 0
}

func runChatCommand() int {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Fprintln(os.Stderr, "chat requires a terminal; use `nova call conversation '{\"text\":\"...\"}'` instead")
		return 2
	}
	socket, err := socketPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if _, err := tea.NewProgram(tui.NewModel(socket)).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		return 1
	}
	return 0
}
