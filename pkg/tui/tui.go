package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// rows taken by the header, prompt and status line
const chromeHeight = 3

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// ServerInterface is what the console needs from the server it drives.
type ServerInterface interface {
	GetName() string
	GetAddress() string
	GetMaxLogLines() int
	Broadcast(msg string) error
	SendCommand(cmd string) error
	Shutdown()
}

// TUI is the operator console shown in interactive mode: a scrolling log
// above a single command prompt.
type TUI struct {
	server ServerInterface

	log    viewport.Model
	prompt textinput.Model

	mu    sync.Mutex
	lines []string

	sized   bool
	started bool
}

func New(server ServerInterface) *TUI {
	prompt := textinput.New()
	prompt.Placeholder = "Loading maps..."
	prompt.CharLimit = 256
	prompt.Width = 50
	prompt.Blur()

	return &TUI{server: server, prompt: prompt}
}

func (t *TUI) Init() tea.Cmd {
	return textinput.Blink
}

func (t *TUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd, handled := t.onKey(msg); handled {
			return t, cmd
		}
	case tea.WindowSizeMsg:
		t.onResize(msg.Width, msg.Height)
	case LogMsg:
		t.AddLog(string(msg))
		t.refresh()
		return t, nil
	case EnableInputMsg:
		t.started = true
		t.prompt.Placeholder = "image list, image obtain <name>, say <message>..."
		t.prompt.Focus()
		return t, nil
	}
	return t, t.forward(msg)
}

// onKey handles the keys the console owns. Everything else goes on to the
// log and prompt widgets.
func (t *TUI) onKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		t.server.Shutdown()
		return tea.Quit, true
	case tea.KeyEnter:
		if t.started {
			t.submit(strings.TrimSpace(t.prompt.Value()))
			t.prompt.Reset()
		}
		return nil, true
	}
	return nil, false
}

func (t *TUI) onResize(width, height int) {
	if !t.sized {
		t.log = viewport.New(width, height-chromeHeight)
		t.log.SetContent(t.content())
		t.sized = true
	} else {
		t.log.Width, t.log.Height = width, height-chromeHeight
	}
	t.prompt.Width = width - 2
}

// refresh re-renders the log, following new lines only when the operator
// has not scrolled up.
func (t *TUI) refresh() {
	if !t.sized {
		return
	}
	follow := t.log.AtBottom()
	t.log.SetContent(t.content())
	if follow {
		t.log.GotoBottom()
	}
}

func (t *TUI) forward(msg tea.Msg) tea.Cmd {
	var cmds []tea.Cmd
	if t.sized {
		var cmd tea.Cmd
		t.log, cmd = t.log.Update(msg)
		cmds = append(cmds, cmd)
	}
	if t.started {
		var cmd tea.Cmd
		t.prompt, cmd = t.prompt.Update(msg)
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

// submit runs a console line. Everything is a command except "say", which
// broadcasts to the players.
func (t *TUI) submit(input string) {
	if input == "" {
		return
	}
	line := strings.TrimPrefix(input, "/")
	if msg, ok := strings.CutPrefix(line, "say "); ok {
		if err := t.server.Broadcast(msg); err != nil {
			t.AddLog("broadcast failed: " + err.Error())
		}
		return
	}
	t.AddLog("> " + line)
	if err := t.server.SendCommand(line); err != nil {
		t.AddLog("command failed: " + err.Error())
	}
}

func (t *TUI) View() string {
	if !t.sized {
		return "Starting console..."
	}

	header := headerStyle.Render("ImageOnMap " + t.server.GetName())
	if addr := t.server.GetAddress(); addr != "" {
		header += statusStyle.Render(fmt.Sprintf("  admin: http://%s", addr))
	}
	status := "Loading maps... | Esc: stop server"
	if t.started {
		status = "Enter: run | Esc: stop server"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		t.log.View(),
		promptStyle.Render("> "+t.prompt.View()),
		statusStyle.Render(status),
	)
}

// AddLog appends a line, keeping at most GetMaxLogLines lines.
func (t *TUI) AddLog(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if limit := t.server.GetMaxLogLines(); limit > 0 && len(t.lines) > limit {
		t.lines = t.lines[len(t.lines)-limit:]
	}
}

func (t *TUI) content() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

// LogMsg carries one log line to the console.
type LogMsg string

// EnableInputMsg focuses the prompt once the server is serving.
type EnableInputMsg struct{}

// Writer forwards each written line to a running console.
type Writer struct {
	program *tea.Program
}

func NewWriter(program *tea.Program) *Writer {
	return &Writer{program: program}
}

func (w *Writer) Write(p []byte) (int, error) {
	for line := range strings.SplitSeq(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			w.program.Send(LogMsg(line))
		}
	}
	return len(p), nil
}

// Start builds the console program for server and the writer its logger
// should use. The caller runs the program.
func Start(server ServerInterface) (*tea.Program, io.Writer) {
	p := tea.NewProgram(New(server), tea.WithAltScreen())
	return p, NewWriter(p)
}

// EnableInput focuses the prompt of program, if any.
func EnableInput(program *tea.Program) {
	if program != nil {
		program.Send(EnableInputMsg{})
	}
}
