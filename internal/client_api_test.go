package internal

import "testing"

func TestWSURLFromBase(t *testing.T) {
	cases := []struct {
		base, path, want string
	}{
		{"http://localhost:5000", "/ws", "ws://localhost:5000/ws"},
		{"https://chat.example.com", "/ws", "wss://chat.example.com/ws"},
		{"http://localhost:5000", "relay", "ws://localhost:5000/relay"},
		{"http://localhost:5000", "", "ws://localhost:5000/ws"},
		{"ws://localhost:5000", "/ws", "ws://localhost:5000/ws"},
	}
	for _, tc := range cases {
		got, err := wsURLFromBase(tc.base, tc.path)
		if err != nil {
			t.Errorf("wsURLFromBase(%q, %q): %v", tc.base, tc.path, err)
			continue
		}
		if got != tc.want {
			t.Errorf("wsURLFromBase(%q, %q) = %q, want %q", tc.base, tc.path, got, tc.want)
		}
	}
	if _, err := wsURLFromBase("ftp://example.com", "/ws"); err == nil {
		t.Errorf("expected error for unsupported scheme")
	}
}
