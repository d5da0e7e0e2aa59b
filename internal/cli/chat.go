package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/careguide/careguide-go/internal/chat"
	"github.com/careguide/careguide-go/internal/classify"
	"github.com/careguide/careguide-go/internal/models"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with the education agent",
	Long: `Start an interactive chat session.

Keys and commands:
  Enter        send the message
  Esc          stop waiting for the current reply
  Ctrl+C       quit
  /profile <p> switch audience profile (general, patient, researcher)
  /new         start a fresh session
  /quit        quit`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("chat needs a terminal; use 'careguide ask' for scripted use")
	}

	profile, err := resolveProfile()
	if err != nil {
		return err
	}

	orch, cleanup, err := newOrchestrator(profile, true)
	if err != nil {
		return err
	}
	defer cleanup()

	p := tea.NewProgram(newChatModel(orch))
	orchWithUpdates(orch, p)

	_, err = p.Run()
	return err
}

// orchWithUpdates routes orchestrator state changes into the running program
// so the view repaints while a poll loop is still delivering.
func orchWithUpdates(orch *chat.Orchestrator, p *tea.Program) {
	// The orchestrator was built before the program existed; install the
	// callback now that both are alive.
	orch.SetOnUpdate(func() { p.Send(refreshMsg{}) })
}

type refreshMsg struct{}

type bootstrapDoneMsg struct{ err error }

type turnDoneMsg struct{}

type chatModel struct {
	orch  *chat.Orchestrator
	input textinput.Model
	spin  spinner.Model

	st     chat.State
	width  int
	height int
}

func newChatModel(orch *chat.Orchestrator) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask about kidney health..."
	ti.CharLimit = 2048
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return chatModel{
		orch:  orch,
		input: ti,
		spin:  sp,
		st:    orch.Snapshot(),
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(
		m.spin.Tick,
		func() tea.Msg {
			return bootstrapDoneMsg{err: m.orch.Bootstrap(context.Background())}
		},
	)
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case refreshMsg, bootstrapDoneMsg, turnDoneMsg:
		m.st = m.orch.Snapshot()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c":
			m.orch.RequestStop()
			return m, tea.Quit
		case "esc":
			m.orch.RequestStop()
			return m, nil
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			return m, m.dispatch(text)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// dispatch turns one input line into an orchestrator call, run as a command
// so the blocking poll loop never stalls the UI.
func (m chatModel) dispatch(text string) tea.Cmd {
	switch {
	case text == "":
		return nil

	case text == "/quit":
		return tea.Quit

	case text == "/new":
		return func() tea.Msg {
			_ = m.orch.StartNewSession(context.Background())
			return turnDoneMsg{}
		}

	case strings.HasPrefix(text, "/profile"):
		arg := strings.TrimSpace(strings.TrimPrefix(text, "/profile"))
		profile, err := models.ParseProfile(arg)
		if err != nil {
			// Leave the error to the state line; nothing to send.
			return func() tea.Msg { return refreshMsg{} }
		}
		return func() tea.Msg {
			_ = m.orch.SwitchProfile(context.Background(), profile)
			return turnDoneMsg{}
		}

	default:
		return func() tea.Msg {
			_ = m.orch.SendMessage(context.Background(), text)
			return turnDoneMsg{}
		}
	}
}

var (
	chatHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FAFD7"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D787")).Bold(true)
	agentStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#D7D7D7"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C")).Italic(true)
	errStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF005F"))
	refStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFD7"))
)

func (m chatModel) View() tea.View {
	var b strings.Builder

	header := fmt.Sprintf("CareGuide  [%s]", m.st.Profile)
	if m.st.Session != nil {
		header += dimStyle.Render("  session " + shortID(m.st.Session.SessionID))
	}
	b.WriteString(chatHeaderStyle.Render(header) + "\n\n")

	if m.st.Bootstrapping {
		b.WriteString(m.spin.View() + " connecting...\n")
	}

	for _, msg := range m.st.Messages {
		b.WriteString(renderMessage(msg) + "\n")
	}

	if len(m.st.Citations) > 0 {
		b.WriteString("\n" + refStyle.Render(fmt.Sprintf("References (%d)", len(m.st.Citations))) + "\n")
		for i, c := range m.st.Citations {
			b.WriteString(refStyle.Render(fmt.Sprintf("  %d. %s", i+1, c.Title)) + "\n")
		}
	}

	if m.st.LastError != "" {
		b.WriteString("\n" + errStyle.Render("! "+m.st.LastError) + "\n")
	}

	b.WriteString("\n")
	if m.st.Sending {
		b.WriteString(m.spin.View() + dimStyle.Render(" waiting for reply (Esc to stop)") + "\n")
	}
	b.WriteString(m.input.View() + "\n")
	b.WriteString(dimStyle.Render("Enter to send · /profile · /new · /quit") + "\n")

	return tea.NewView(b.String())
}

func renderMessage(msg models.ConversationMessage) string {
	if msg.Role == models.RoleUser {
		return userStyle.Render("you> ") + msg.Text
	}
	if strings.Contains(msg.Text, classify.DisclaimerMarker) {
		return dimStyle.Render(msg.Text)
	}
	out := agentStyle.Render("agent> " + msg.Text)
	if msg.Status == models.StatusThinking {
		out += dimStyle.Render("  (thinking)")
	}
	if msg.Attachment != nil {
		out += "\n" + renderAttachment(msg.Attachment)
	}
	return out
}

func renderAttachment(att *models.Attachment) string {
	switch att.Kind {
	case models.AttachmentNutritionAnalysis:
		n := att.Nutrition
		if n == nil {
			return ""
		}
		return dimStyle.Render(fmt.Sprintf(
			"  [%s]  sodium %.0fmg · potassium %.0fmg · phosphorus %.0fmg · protein %.0fg",
			n.Dish, n.SodiumMg, n.PotassiumMg, n.PhosphorusMg, n.ProteinG))
	case models.AttachmentDishCandidates:
		names := make([]string, 0, len(att.Dishes))
		for _, d := range att.Dishes {
			names = append(names, d.Name)
		}
		return dimStyle.Render("  did you mean: " + strings.Join(names, ", "))
	case models.AttachmentRecommendedDishes:
		var lines []string
		for _, d := range att.Recommended {
			lines = append(lines, fmt.Sprintf("  • %s (%s)", d.Name, d.Reason))
		}
		return dimStyle.Render(strings.Join(lines, "\n"))
	case models.AttachmentIngredientTable:
		var lines []string
		for _, row := range att.Ingredients {
			lines = append(lines, fmt.Sprintf("  %-20s K %.0fmg  P %.0fmg", row.Name, row.PotassiumMg, row.PhosphorusMg))
		}
		return dimStyle.Render(strings.Join(lines, "\n"))
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
