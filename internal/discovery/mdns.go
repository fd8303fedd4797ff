// ABOUTME: mDNS service discovery for the visualization server
// ABOUTME: Advertises the listening port and browses for servers on the LAN
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/Sendspin/sendspin-vis/internal/version"
)

// ServiceType is the DNS-SD service visualization servers register under
const ServiceType = "_mpd-vis._tcp"

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
}

// Manager advertises one service instance
type Manager struct {
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	server *mdns.Server
}

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name string
	Host string
	Port int
	Info []string
}

// Addr returns host:port
func (s ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{config: config, logger: logger}
}

// Advertise registers the service until Stop is called
func (m *Manager) Advertise() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return nil
	}

	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"proto=echo", "version=" + version.Version},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}
	m.server = server

	m.logger.Info("advertising mDNS service",
		"name", m.config.ServiceName,
		"port", m.config.Port,
		"type", ServiceType)
	return nil
}

// Stop withdraws the advertisement
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server == nil {
		return
	}
	if err := m.server.Shutdown(); err != nil {
		m.logger.Debug("mdns shutdown failed", "error", err)
	}
	m.server = nil
}

// Browse queries for visualization servers for up to timeout and returns
// what answered. It stops early if ctx is cancelled.
func Browse(ctx context.Context, timeout time.Duration, logger *slog.Logger) ([]ServerInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	collected := make(chan []ServerInfo, 1)

	go func() {
		seen := make(map[string]bool)
		var servers []ServerInfo
		for entry := range entries {
			if !strings.Contains(entry.Name, ServiceType) || entry.AddrV4 == nil {
				continue
			}
			server := ServerInfo{
				Name: instanceName(entry.Name),
				Host: entry.AddrV4.String(),
				Port: entry.Port,
				Info: entry.InfoFields,
			}
			if seen[server.Addr()] {
				continue
			}
			seen[server.Addr()] = true

			logger.Debug("discovered server", "name", server.Name, "addr", server.Addr())
			servers = append(servers, server)
		}
		collected <- servers
	}()

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := &mdns.QueryParam{
		Service:     ServiceType,
		Domain:      "local",
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	}
	err := mdns.QueryContext(queryCtx, params)
	close(entries)
	servers := <-collected

	if err != nil && ctx.Err() == nil {
		return servers, fmt.Errorf("mdns query failed: %w", err)
	}
	return servers, nil
}

// instanceName strips the service suffix from an mDNS entry name
func instanceName(name string) string {
	if i := strings.Index(name, "."+ServiceType); i > 0 {
		return strings.ReplaceAll(name[:i], `\ `, " ")
	}
	return name
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
