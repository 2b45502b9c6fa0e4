package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	intrnl "pairchat/internal"
)

func main() {
	serverURL := flag.String("server", getEnv("PAIRCHAT_SERVER_URL", "http://localhost:5000"), "server base url")
	wsPath := flag.String("ws-path", getEnv("PAIRCHAT_WS_PATH", "/ws"), "websocket endpoint path")
	userID := flag.String("user", getEnv("PAIRCHAT_USER_ID", ""), "your user id")
	name := flag.String("name", getEnv("PAIRCHAT_USER_NAME", ""), "your display name")
	avatar := flag.String("avatar", getEnv("PAIRCHAT_AVATAR", ""), "your avatar url")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "a user id is required (-user or PAIRCHAT_USER_ID)")
		os.Exit(2)
	}
	displayName := *name
	if displayName == "" {
		displayName = *userID
	}

	self := intrnl.Identity{UserID: *userID, Name: displayName}
	model := intrnl.NewTUIModel(*serverURL, *wsPath, self, *avatar)

	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "client error: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
