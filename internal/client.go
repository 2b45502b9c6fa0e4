package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pairchat/internal/storage"
)

// this model holds the bubbletea state for the chat client: the contact list
// fetched from the directory endpoint, the active conversation, and the relay
// connection used to exchange envelopes.
type TUIModel struct {
	textInput       textinput.Model
	mode            clientMode
	serverBaseURL   string
	wsPath          string
	self            Identity
	avatar          string
	contacts        []storage.DirectoryEntry
	cursor          int
	selected        *storage.DirectoryEntry
	roomKey         string
	relay           Relay
	messages        []Envelope
	isConnected     bool
	connectionError error
	notice          string
}

type clientMode int

const (
	modeContacts clientMode = iota
	modeChat
)

// these are bubbletea messages that represent asynchronous events like the
// directory loading, the relay connecting, or an envelope arriving.
type (
	contactsLoadedMsg []storage.DirectoryEntry
	contactsFailedMsg struct{ err error }
	connectedMsg      struct{ relay Relay }
	connectFailedMsg  struct{ err error }
	incomingMsg       Envelope
	relayClosedMsg    struct{}
	historyMsg        []Envelope
	reconnectMsg      struct{}
	sendFailedMsg     struct{ err error }
)

var (
	appTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	contactBoxStyle  = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	contactStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).PaddingLeft(1)
	contactPickStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	contactMetaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	hintStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	chatHeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle   = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle  = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle       = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	messageBoxStyle  = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2).MarginTop(1)
	messageBodyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	inputBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	ownNameStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	peerNameStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	noticeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	dividerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
)

// NewTUIModel builds a new chat ui model with a focused input and the
// caller's identity.
func NewTUIModel(serverBaseURL, wsPath string, self Identity, avatar string) *TUIModel {
	input := textinput.New()
	input.Placeholder = "Type a message…"
	input.CharLimit = 0
	input.Prompt = "> "

	return &TUIModel{
		textInput:     input,
		mode:          modeContacts,
		serverBaseURL: strings.TrimRight(serverBaseURL, "/"),
		wsPath:        wsPath,
		self:          self,
		avatar:        avatar,
		messages:      make([]Envelope, 0, 64),
	}
}

// when the program starts we fetch the contact directory.
func (model *TUIModel) Init() tea.Cmd {
	return model.loadContactsCmd()
}

// update reacts to key presses and asynchronous events to drive the
// application state.
func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		if typedMessage.Type == tea.KeyCtrlC {
			model.closeRelay()
			return model, tea.Quit
		}
		switch model.mode {
		case modeContacts:
			return model.updateContacts(typedMessage)
		case modeChat:
			return model.updateChat(typedMessage)
		}

	case contactsLoadedMsg:
		model.contacts = typedMessage
		if model.cursor >= len(model.contacts) {
			model.cursor = 0
		}
		return model, nil

	case contactsFailedMsg:
		model.connectionError = typedMessage.err
		return model, nil

	case connectedMsg:
		model.relay = typedMessage.relay
		model.isConnected = true
		model.connectionError = nil
		return model, model.receiveOnceCmd()

	case connectFailedMsg:
		model.connectionError = typedMessage.err
		if model.mode == modeChat {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case reconnectMsg:
		if model.mode == modeChat && !model.isConnected {
			return model, model.connectCmd()
		}
		return model, nil

	case incomingMsg:
		envelope := Envelope(typedMessage)
		if envelope.RoomID == model.roomKey {
			model.messages = append(model.messages, envelope)
		}
		return model, model.receiveOnceCmd()

	case relayClosedMsg:
		model.isConnected = false
		model.relay = nil
		if model.mode == modeChat {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case historyMsg:
		// history is prepended once; live envelopes arrived afterwards.
		if len(typedMessage) > 0 {
			model.messages = append([]Envelope(typedMessage), model.messages...)
		}
		return model, nil

	case sendFailedMsg:
		model.notice = "Send failed: " + typedMessage.err.Error()
		return model, nil
	}
	return model, nil
}

func (model *TUIModel) updateContacts(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "q", "esc":
		return model, tea.Quit
	case "up", "k":
		if model.cursor > 0 {
			model.cursor--
		}
	case "down", "j":
		if model.cursor < len(model.contacts)-1 {
			model.cursor++
		}
	case "r":
		return model, model.loadContactsCmd()
	case "enter":
		if len(model.contacts) == 0 {
			return model, nil
		}
		contact := model.contacts[model.cursor]
		model.selected = &contact
		model.roomKey = DeriveRoomID(model.self.UserID, contact.ID)
		model.mode = modeChat
		model.messages = model.messages[:0]
		model.notice = ""
		model.textInput.SetValue("")
		focusCmd := model.textInput.Focus()
		return model, tea.Batch(focusCmd, model.connectCmd(), model.historyCmd())
	}
	return model, nil
}

func (model *TUIModel) updateChat(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		model.closeRelay()
		model.mode = modeContacts
		model.selected = nil
		model.roomKey = ""
		model.isConnected = false
		model.textInput.Blur()
		return model, nil
	case tea.KeyEnter:
		trimmed := strings.TrimSpace(model.textInput.Value())
		if trimmed == "" || !model.isConnected {
			return model, nil
		}
		envelope := Envelope{
			RoomID:     model.roomKey,
			SenderID:   model.self.UserID,
			SenderName: model.self.Name,
			Content:    trimmed,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Avatar:     model.avatar,
		}
		// the sender applies its message optimistically; the relay never
		// echoes it back.
		model.messages = append(model.messages, envelope)
		model.textInput.SetValue("")
		return model, model.sendCmd(envelope)
	}
	var command tea.Cmd
	model.textInput, command = model.textInput.Update(key)
	return model, command
}

func (model *TUIModel) closeRelay() {
	if model.relay != nil {
		_ = model.relay.Close()
		model.relay = nil
	}
}

// the view renders either the contact list or the active conversation.
func (model TUIModel) View() string {
	if model.mode == modeContacts {
		return model.renderContactsView()
	}
	return model.renderChatView()
}

func (model TUIModel) renderContactsView() string {
	title := appTitleStyle.Render("Pairchat")
	subtitle := subtitleStyle.Render(fmt.Sprintf("Signed in as %s", model.self.Name))

	var rows []string
	for i, contact := range model.contacts {
		line := fmt.Sprintf("%s  %s", contact.Name, contactMetaStyle.Render(contact.Status))
		if i == model.cursor {
			line = contactPickStyle.Render("› " + line)
		} else {
			line = contactStyle.Render("  " + line)
		}
		rows = append(rows, line)
	}
	if len(rows) == 0 {
		rows = append(rows, noticeStyle.Render("Loading contacts…"))
	}

	sections := []string{
		lipgloss.JoinVertical(lipgloss.Left, title, subtitle),
		contactBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)),
	}
	if model.connectionError != nil {
		sections = append(sections, errorStyle.Render(model.connectionError.Error()))
	}
	sections = append(sections, hintStyle.Render("↑/↓ to choose, Enter to chat, r to refresh, q to quit."))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model TUIModel) renderChatView() string {
	peer := "?"
	if model.selected != nil {
		peer = model.selected.Name
	}
	headerSegments := []string{
		"Pairchat",
		fmt.Sprintf("With %s", peer),
		fmt.Sprintf("Room %s", model.roomKey),
	}
	header := chatHeaderStyle.Render(strings.Join(headerSegments, dividerStyle))

	var statusLine string
	switch {
	case model.connectionError != nil:
		statusLine = errorStyle.Render("Connection error: " + model.connectionError.Error())
	case model.isConnected:
		statusLine = connectedStyle.Render("Connected")
	default:
		statusLine = connectingStyle.Render("Connecting…")
	}

	var messageLines []string
	for _, envelope := range model.messages {
		messageLines = append(messageLines, model.renderEnvelope(envelope))
	}
	if len(messageLines) == 0 {
		messageLines = append(messageLines, noticeStyle.Render("No messages yet. Say hi and start the conversation."))
	}

	sections := []string{header, statusLine,
		messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, messageLines...)),
		inputBoxStyle.Render(model.textInput.View()),
	}
	if model.notice != "" {
		sections = append(sections, noticeStyle.Render(model.notice))
	}
	sections = append(sections, hintStyle.Render("Esc back to contacts, Ctrl+C to quit."))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model TUIModel) renderEnvelope(envelope Envelope) string {
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", formatEnvelopeTime(envelope.Timestamp)))
	nameStyle := peerNameStyle
	name := envelope.SenderName
	if envelope.SenderID == model.self.UserID {
		nameStyle = ownNameStyle
		name = model.self.Name
	}
	body := messageBodyStyle.Render(strings.ReplaceAll(envelope.Content, "\n", "\n   "))
	return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", nameStyle.Render(name), ": ", body)
}

func formatEnvelopeTime(value string) string {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.Local().Format("15:04:05")
	}
	return time.Now().Format("15:04:05")
}

// this command fetches the directory so the user can pick someone to chat
// with.
func (model *TUIModel) loadContactsCmd() tea.Cmd {
	baseURL := model.serverBaseURL
	return func() tea.Msg {
		contacts, err := apiGetUsers(baseURL)
		if err != nil {
			return contactsFailedMsg{err: err}
		}
		return contactsLoadedMsg(contacts)
	}
}

// this command dials the relay, declares our identity, and joins the derived
// pair room.
func (model *TUIModel) connectCmd() tea.Cmd {
	baseURL, wsPath := model.serverBaseURL, model.wsPath
	self, roomKey := model.self, model.roomKey
	return func() tea.Msg {
		wsURL, err := wsURLFromBase(baseURL, wsPath)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		relay, err := DialRelay(wsURL)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		if err := relay.Identify(self); err != nil {
			_ = relay.Close()
			return connectFailedMsg{err: err}
		}
		if err := relay.Join(roomKey); err != nil {
			_ = relay.Close()
			return connectFailedMsg{err: err}
		}
		return connectedMsg{relay: relay}
	}
}

// this command backfills persisted history when the server runs the
// database-backed profile; the pure relay profile returns nothing.
func (model *TUIModel) historyCmd() tea.Cmd {
	baseURL, roomKey := model.serverBaseURL, model.roomKey
	return func() tea.Msg {
		envelopes, err := apiGetRoomHistory(baseURL, roomKey)
		if err != nil {
			// history is an optional extra; the live relay still works.
			return historyMsg(nil)
		}
		return historyMsg(envelopes)
	}
}

// this command waits for one received envelope and is re-queued after each
// delivery to keep reading.
func (model *TUIModel) receiveOnceCmd() tea.Cmd {
	relay := model.relay
	return func() tea.Msg {
		if relay == nil {
			return relayClosedMsg{}
		}
		envelope, ok := <-relay.Receive()
		if !ok {
			return relayClosedMsg{}
		}
		return incomingMsg(envelope)
	}
}

func (model *TUIModel) sendCmd(envelope Envelope) tea.Cmd {
	relay := model.relay
	return func() tea.Msg {
		if relay == nil {
			return sendFailedMsg{err: fmt.Errorf("not connected")}
		}
		if err := relay.Send(envelope); err != nil {
			return sendFailedMsg{err: err}
		}
		return nil
	}
}

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	const retryDelay = 2 * time.Second
	// tea.Tick integrates the delay with bubbletea's event loop.
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}
