// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests manager setup and entry name handling
package discovery

import (
	"testing"

	"github.com/Sendspin/sendspin-vis/internal/logging"
)

func TestNewManager(t *testing.T) {
	config := Config{
		ServiceName: "Living Room",
		Port:        8001,
	}

	mgr := NewManager(config, logging.Discard())
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}

	// stopping before advertising is a no-op
	mgr.Stop()
}

func TestInstanceName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`Living\ Room._mpd-vis._tcp.local.`, "Living Room"},
		{"visd._mpd-vis._tcp.local.", "visd"},
		{"other.local.", "other.local."},
	}

	for _, tt := range tests {
		if got := instanceName(tt.in); got != tt.want {
			t.Errorf("instanceName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestServerInfoAddr(t *testing.T) {
	s := ServerInfo{Host: "192.168.1.20", Port: 8001}
	if got := s.Addr(); got != "192.168.1.20:8001" {
		t.Errorf("Addr() = %q", got)
	}
}
