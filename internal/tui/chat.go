// Package tui is the interactive terminal client. It speaks the same
// one-request-per-connection socket protocol as every other collaborator.
package tui

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cathedral/nova/internal/server"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	novaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	promptStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

const historyWindow = 200

type replyMsg struct {
	text string
	err  error
}

// Model is the bubbletea model for the chat loop.
type Model struct {
	socketPath string
	input      string
	history    []string
	waiting    bool
	quitting   bool
}

// NewModel creates the chat model for the given daemon socket.
func NewModel(socketPath string) Model {
	return Model{
		socketPath: socketPath,
		history: []string{
			titleStyle.Render("Nova Cathedral") + dimStyle.Render("  ·  /quit to leave"),
		},
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input)
			m.input = ""
			if text == "" {
				return m, nil
			}
			if text == "/quit" || text == "/exit" {
				m.quitting = true
				return m, tea.Quit
			}
			m.history = append(m.history, userStyle.Render("you: ")+text)
			m.waiting = true
			return m, m.send(text)
		case tea.KeyBackspace:
			if len(m.input) > 0 {
				runes := []rune(m.input)
				m.input = string(runes[:len(runes)-1])
			}
			return m, nil
		case tea.KeySpace:
			m.input += " "
			return m, nil
		case tea.KeyRunes:
			m.input += string(msg.Runes)
			return m, nil
		}

	case replyMsg:
		m.waiting = false
		if msg.err != nil {
			m.history = append(m.history, errorStyle.Render("connection: "+msg.err.Error()))
		} else if strings.HasPrefix(msg.text, server.ErrorSigil) {
			m.history = append(m.history, errorStyle.Render(msg.text))
		} else {
			m.history = append(m.history, novaStyle.Render(msg.text))
		}
		if len(m.history) > historyWindow {
			m.history = m.history[len(m.history)-historyWindow:]
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(strings.Join(m.history, "\n"))
	sb.WriteString("\n\n")
	if m.waiting {
		sb.WriteString(dimStyle.Render("nova is thinking..."))
	} else {
		sb.WriteString(promptStyle.Render("> ") + m.input)
	}
	sb.WriteString("\n")
	return sb.String()
}

// send issues a conversation command in the background.
func (m Model) send(text string) tea.Cmd {
	socketPath := m.socketPath
	return func() tea.Msg {
		reply, err := Call(socketPath, map[string]any{
			"command": "conversation",
			"text":    text,
		})
		return replyMsg{text: reply, err: err}
	}
}

// Call performs one request/reply round trip against the daemon socket.
func Call(socketPath string, request map[string]any) (string, error) {
	payload, err := encode(request)
	if err != nil {
		return "", err
	}

	conn, err := net.DialTimeout("unix", socketPath, 3*time.Second)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", socketPath, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	if _, err := conn.Write(payload); err != nil {
		return "", fmt.Errorf("write request: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		_ = uc.CloseWrite()
	}

	reply, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return string(reply), nil
}
