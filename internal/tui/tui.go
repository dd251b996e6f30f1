// Package tui renders the delivery core in the terminal: a sidebar with
// unread badges and previews, the active conversation log and a composer
// with sticker and attachment support.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"whatube/internal/bus"
	"whatube/internal/content"
	"whatube/internal/dispatch"
	"whatube/internal/models"
	"whatube/internal/roster"
	"whatube/internal/store"
)

// Core is the slice of the session the UI consumes.
type Core interface {
	Me() models.Profile
	Conversations() []models.Conversation
	Messages(peerID string) []models.Message
	ActiveID() string
	TotalUnread() int
	BusState() bus.State
	SetActive(peerID string)
	StartChat(ctx context.Context, peerID string)
	Submit(draft string, files []dispatch.File)
	SendSticker(glyph string)
	Changes() <-chan store.Change
}

// --- Styles ---

var (
	accentColor = lipgloss.Color("#7C3AED")
	selfColor   = lipgloss.Color("#10B981")
	mutedColor  = lipgloss.Color("#9CA3AF")
	alertColor  = lipgloss.Color("#EF4444")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			Padding(0, 1)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	badgeStyle = lipgloss.NewStyle().
			Foreground(alertColor).
			Bold(true)

	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1).
			MarginRight(1)

	selectedItemStyle = lipgloss.NewStyle().
				Foreground(selfColor).
				Bold(true).
				PaddingLeft(1).
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(selfColor)

	unselectedItemStyle = lipgloss.NewStyle().
				PaddingLeft(2)

	chatStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor)

	ownMessageStyle   = lipgloss.NewStyle().Foreground(selfColor)
	otherMessageStyle = lipgloss.NewStyle().Foreground(accentColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(1, 2)
)

// --- View state ---

type pane int

const (
	paneSidebar pane = iota
	paneChat
)

type overlay int

const (
	overlayNone overlay = iota
	overlayStickers
	overlayNewChat
	overlayAttach
	overlayRequests
)

// --- Messages ---

type storeChangedMsg struct {
	change store.Change
}

type changesClosedMsg struct{}

type requestsMsg struct {
	requests []models.FriendRequest
	err      error
}

type respondedMsg struct {
	err error
}

// --- Model ---

type Model struct {
	core   Core
	roster *roster.Client
	ctx    context.Context

	width  int
	height int

	focused  pane
	overlay  overlay
	selected int

	draft     textinput.Model
	peerInput textinput.Model
	pathInput textinput.Model
	chat      viewport.Model

	requests    []models.FriendRequest
	selectedReq int
	status      string
}

// New builds the UI over a started session core. rc may be nil; the
// friend-request overlay then reports the surface as unavailable.
func New(ctx context.Context, core Core, rc *roster.Client) Model {
	draft := textinput.New()
	draft.Placeholder = "Type a message..."
	draft.CharLimit = 1000
	draft.Width = 50

	peerInput := textinput.New()
	peerInput.Placeholder = "User id to chat with..."
	peerInput.CharLimit = 64
	peerInput.Width = 30

	pathInput := textinput.New()
	pathInput.Placeholder = "Path to an image..."
	pathInput.CharLimit = 256
	pathInput.Width = 40

	return Model{
		core:      core,
		roster:    rc,
		ctx:       ctx,
		draft:     draft,
		peerInput: peerInput,
		pathInput: pathInput,
		chat:      viewport.New(80, 20),
	}
}

// --- Commands ---

func listenForChanges(core Core) tea.Cmd {
	return func() tea.Msg {
		change, ok := <-core.Changes()
		if !ok {
			return changesClosedMsg{}
		}
		return storeChangedMsg{change: change}
	}
}

func (m Model) loadRequests() tea.Cmd {
	return func() tea.Msg {
		if m.roster == nil {
			return requestsMsg{err: fmt.Errorf("friend requests unavailable")}
		}
		requests, err := m.roster.FriendRequests(m.ctx)
		return requestsMsg{requests: requests, err: err}
	}
}

func (m Model) respondRequest(id string, accept bool) tea.Cmd {
	return func() tea.Msg {
		if m.roster == nil {
			return respondedMsg{err: fmt.Errorf("friend requests unavailable")}
		}
		return respondedMsg{err: m.roster.RespondFriendRequest(m.ctx, id, accept)}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, listenForChanges(m.core))
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.overlay != overlayNone {
			return m.updateOverlay(msg)
		}
		return m.updateMain(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refreshChat()

	case storeChangedMsg:
		if msg.change.Kind == store.ChangeSeed || msg.change.PeerID == m.core.ActiveID() {
			m.refreshChat()
		}
		cmds = append(cmds, listenForChanges(m.core))

	case changesClosedMsg:
		return m, tea.Quit

	case requestsMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			m.overlay = overlayNone
			break
		}
		m.requests = msg.requests
		m.selectedReq = 0

	case respondedMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
		}
		cmds = append(cmds, m.loadRequests())
	}

	return m, tea.Batch(cmds...)
}

func (m Model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.focused {
	case paneSidebar:
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.core.Conversations())-1 {
				m.selected++
			}
		case "enter", "l", "right":
			conversations := m.core.Conversations()
			if len(conversations) > 0 {
				m.core.SetActive(conversations[m.selected].ID)
				m.focused = paneChat
				m.draft.Focus()
				m.refreshChat()
			}
		case "n":
			m.overlay = overlayNewChat
			m.peerInput.SetValue("")
			m.peerInput.Focus()
		case "r":
			m.overlay = overlayRequests
			m.requests = nil
			return m, m.loadRequests()
		}
		return m, nil

	case paneChat:
		switch msg.String() {
		case "esc":
			m.focused = paneSidebar
			m.draft.Blur()
			return m, nil
		case "ctrl+s":
			m.overlay = overlayStickers
			return m, nil
		case "ctrl+a":
			m.overlay = overlayAttach
			m.pathInput.SetValue("")
			m.pathInput.Focus()
			m.draft.Blur()
			return m, nil
		case "enter":
			if strings.TrimSpace(m.draft.Value()) != "" {
				m.core.Submit(m.draft.Value(), nil)
				m.draft.SetValue("")
				m.refreshChat()
			}
			return m, nil
		}
		m.draft, _ = m.draft.Update(msg)
		m.chat, _ = m.chat.Update(msg)
	}
	return m, nil
}

func (m Model) updateOverlay(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		m.overlay = overlayNone
		if m.focused == paneChat {
			m.draft.Focus()
		}
		return m, nil
	}

	switch m.overlay {
	case overlayStickers:
		// Digits pick from the catalog. Picking with a draft in progress
		// appends the glyph to the draft; with an empty draft the sticker
		// goes out on its own.
		key := msg.String()
		if len(key) == 1 && key[0] >= '1' && int(key[0]-'1') < len(models.Stickers) {
			idx := int(key[0] - '1')
			glyph := models.Stickers[idx]
			m.overlay = overlayNone
			if m.draft.Value() != "" {
				m.draft.SetValue(m.draft.Value() + glyph)
			} else {
				m.core.SendSticker(glyph)
				m.refreshChat()
			}
		}
		return m, nil

	case overlayNewChat:
		if msg.String() == "enter" {
			peerID := strings.TrimSpace(m.peerInput.Value())
			if peerID != "" {
				if err := content.ValidateUsername(peerID); err != nil {
					m.status = err.Error()
					return m, nil
				}
				m.core.StartChat(m.ctx, peerID)
				m.overlay = overlayNone
				m.focused = paneChat
				m.draft.Focus()
				m.refreshChat()
			}
			return m, nil
		}
		m.peerInput, _ = m.peerInput.Update(msg)
		return m, nil

	case overlayAttach:
		if msg.String() == "enter" {
			path := strings.TrimSpace(m.pathInput.Value())
			if path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					m.status = fmt.Sprintf("cannot read %s: %v", path, err)
				} else {
					m.core.Submit("", []dispatch.File{{Name: filepath.Base(path), Data: data}})
					m.refreshChat()
				}
				m.overlay = overlayNone
				m.draft.Focus()
			}
			return m, nil
		}
		m.pathInput, _ = m.pathInput.Update(msg)
		return m, nil

	case overlayRequests:
		switch msg.String() {
		case "up", "k":
			if m.selectedReq > 0 {
				m.selectedReq--
			}
		case "down", "j":
			if m.selectedReq < len(m.requests)-1 {
				m.selectedReq++
			}
		case "a":
			if len(m.requests) > 0 {
				return m, m.respondRequest(m.requests[m.selectedReq].ID, true)
			}
		case "d":
			if len(m.requests) > 0 {
				return m, m.respondRequest(m.requests[m.selectedReq].ID, false)
			}
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) layout() {
	sidebarWidth := m.width / 4
	if sidebarWidth < 25 {
		sidebarWidth = 25
	}
	sidebarStyle = sidebarStyle.Width(sidebarWidth - 2).Height(m.height - 3)

	chatWidth := m.width - sidebarWidth - 4
	chatStyle = chatStyle.Width(chatWidth).Height(m.height - 3)
	m.chat = viewport.New(chatWidth-4, m.height-9)
	m.draft.Width = chatWidth - 6
}

func (m *Model) refreshChat() {
	m.chat.SetContent(m.renderLog())
	m.chat.GotoBottom()
}

func (m *Model) renderLog() string {
	activeID := m.core.ActiveID()
	if activeID == "" {
		return mutedStyle.Render("Select a conversation to start chatting")
	}

	me := m.core.Me()
	var content strings.Builder
	for _, msg := range m.core.Messages(activeID) {
		style := otherMessageStyle
		name := msg.SenderDisplayName
		if msg.From == me.ID {
			style = ownMessageStyle
			name = "you"
		}

		var body string
		switch msg.Kind {
		case models.KindImage:
			body = "📷 " + msg.AltText
		case models.KindSticker:
			body = msg.Glyph
		default:
			body = msg.Body
		}

		marker := ""
		switch msg.Delivery {
		case models.DeliveryPending:
			marker = mutedStyle.Render(" ⋯")
		case models.DeliveryFailed:
			marker = badgeStyle.Render(" ✗")
		}

		content.WriteString(fmt.Sprintf("%s %s: %s%s\n",
			mutedStyle.Render(msg.At), style.Render(name), body, marker))
	}
	return content.String()
}

// --- View ---

func (m Model) View() string {
	main := lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), m.chatView())

	switch m.overlay {
	case overlayStickers:
		return m.stickerView()
	case overlayNewChat:
		return m.modal("New Chat", "User: "+m.peerInput.View()+"\n\n"+mutedStyle.Render("Enter to open, Esc to cancel"))
	case overlayAttach:
		return m.modal("Attach Image", "File: "+m.pathInput.View()+"\n\n"+mutedStyle.Render("Enter to send, Esc to cancel"))
	case overlayRequests:
		return m.requestsView()
	}

	return lipgloss.JoinVertical(lipgloss.Left, main, m.statusLine())
}

func (m Model) statusLine() string {
	state := string(m.core.BusState())
	line := fmt.Sprintf(" %s", state)
	if m.core.BusState() != bus.StateConnected {
		line = badgeStyle.Render(line)
	} else {
		line = mutedStyle.Render(line)
	}
	if unread := m.core.TotalUnread(); unread > 0 {
		line += badgeStyle.Render(fmt.Sprintf("  %d unread", unread))
	}
	if m.status != "" {
		line += "  " + mutedStyle.Render(m.status)
	}
	return line
}

func (m Model) sidebarView() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(m.core.Me().DisplayName))
	s.WriteString("\n\n")

	conversations := m.core.Conversations()
	if len(conversations) == 0 {
		s.WriteString(mutedStyle.Render("No conversations.\n'n' to start one."))
	}
	for i, conv := range conversations {
		badge := ""
		if conv.UnreadCount > 0 {
			badge = badgeStyle.Render(fmt.Sprintf(" (%d)", conv.UnreadCount))
		}
		dot := " "
		if conv.IsOnline {
			dot = "●"
		}
		line := fmt.Sprintf("%s %s%s", dot, conv.DisplayName, badge)
		if conv.LastMessagePreview != "" {
			line += "\n" + mutedStyle.Render("  "+conv.LastMessagePreview)
		}

		if i == m.selected {
			s.WriteString(selectedItemStyle.Render(line) + "\n")
		} else {
			s.WriteString(unselectedItemStyle.Render(line) + "\n")
		}
	}
	return sidebarStyle.Render(s.String())
}

func (m Model) chatView() string {
	header := mutedStyle.Render("No conversation selected")
	if active := m.core.ActiveID(); active != "" {
		name := active
		for _, conv := range m.core.Conversations() {
			if conv.ID == active {
				name = conv.DisplayName
				break
			}
		}
		header = titleStyle.Render("💬 " + name)
	}

	footer := m.draft.View() + "\n" + mutedStyle.Render("Enter send • Ctrl+S stickers • Ctrl+A attach • Esc back")
	return chatStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, m.chat.View(), footer))
}

func (m Model) stickerView() string {
	var s strings.Builder
	for i, glyph := range models.Stickers {
		s.WriteString(fmt.Sprintf("[%d] %s  ", i+1, glyph))
	}
	s.WriteString("\n\n" + mutedStyle.Render("Pick a number, Esc to cancel"))
	return m.modal("Stickers", s.String())
}

func (m Model) requestsView() string {
	var s strings.Builder
	if len(m.requests) == 0 {
		s.WriteString(mutedStyle.Render("No pending requests."))
	}
	for i, req := range m.requests {
		line := fmt.Sprintf("%s (@%s)", req.Name, req.Username)
		if i == m.selectedReq {
			s.WriteString(selectedItemStyle.Render(line) + "\n")
		} else {
			s.WriteString(unselectedItemStyle.Render(line) + "\n")
		}
	}
	s.WriteString("\n" + mutedStyle.Render("a accept • d decline • Esc close"))
	return m.modal("Friend Requests", s.String())
}

func (m Model) modal(title, body string) string {
	content := titleStyle.Render(title) + "\n\n" + body
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, boxStyle.Render(content))
}
