package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pairchat/internal/storage"
)

var httpTimeout = 5 * time.Second

// apiGetUsers fetches the contact directory from the server.
func apiGetUsers(baseURL string) ([]storage.DirectoryEntry, error) {
	var entries []storage.DirectoryEntry
	if err := doJSONGet(baseURL+"/api/users", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// apiGetRoomHistory backfills persisted messages for a room; an empty slice
// comes back when the server runs the pure relay profile.
func apiGetRoomHistory(baseURL, roomID string) ([]Envelope, error) {
	var envelopes []Envelope
	endpoint := baseURL + "/api/rooms/" + url.PathEscape(roomID) + "/messages"
	if err := doJSONGet(endpoint, &envelopes); err != nil {
		return nil, err
	}
	return envelopes, nil
}

func doJSONGet(endpoint string, out interface{}) error {
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Get(endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// wsURLFromBase converts the server's http base url into the websocket
// endpoint url.
func wsURLFromBase(baseURL, wsPath string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
		// already a websocket url
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	if wsPath == "" {
		wsPath = "/ws"
	}
	if !strings.HasPrefix(wsPath, "/") {
		wsPath = "/" + wsPath
	}
	parsed.Path = wsPath
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String(), nil
}
