// ABOUTME: probe subcommand
// ABOUTME: Connects to a visualization server, sends a payload and checks the echo
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sendspin/sendspin-vis/internal/discovery"
	"github.com/Sendspin/sendspin-vis/internal/logging"
)

// ErrEchoMismatch is returned when the server answers with different bytes
var ErrEchoMismatch = errors.New("echo mismatch")

type probeOptions struct {
	addr          string
	message       string
	timeout       time.Duration
	browseTimeout time.Duration
	logLevel      string
}

func newProbeCommand() *cobra.Command {
	opts := &probeOptions{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that a server echoes",
		Long:  "Connect to a visualization server (found over mDNS when --addr is empty), send a message and verify it comes back unchanged.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Config{Level: opts.logLevel}, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			addr := opts.addr
			if addr == "" {
				addr, err = discoverAddr(cmd.Context(), opts.browseTimeout, logger)
				if err != nil {
					return err
				}
			}

			rtt, err := probe(cmd.Context(), addr, []byte(opts.message), opts.timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s echoed %d bytes in %s\n", addr, len(opts.message), rtt.Round(time.Microsecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Server address (host:port or unix socket path); empty browses mDNS")
	cmd.Flags().StringVar(&opts.message, "message", "visd probe", "Payload to send")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "Connect and echo timeout")
	cmd.Flags().DurationVar(&opts.browseTimeout, "browse-timeout", 3*time.Second, "How long to browse mDNS")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "Log level")

	return cmd
}

func discoverAddr(ctx context.Context, timeout time.Duration, logger *slog.Logger) (string, error) {
	servers, err := discovery.Browse(ctx, timeout, logger)
	if err != nil {
		return "", err
	}
	if len(servers) == 0 {
		return "", fmt.Errorf("no servers found on %s within %s", discovery.ServiceType, timeout)
	}
	logger.Info("using discovered server", "name", servers[0].Name, "addr", servers[0].Addr())
	return servers[0].Addr(), nil
}

// dialNetwork picks unix for socket paths and tcp otherwise
func dialNetwork(addr string) string {
	if strings.HasPrefix(addr, "/") || strings.HasPrefix(addr, "@") {
		return "unix"
	}
	return "tcp"
}

// probe sends payload and waits for the same bytes back, returning the
// round trip time
func probe(ctx context.Context, addr string, payload []byte, timeout time.Duration) (time.Duration, error) {
	if len(payload) == 0 {
		return 0, errors.New("probe payload must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, dialNetwork(addr), addr)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	start := time.Now()
	if _, err := conn.Write(payload); err != nil {
		return 0, fmt.Errorf("failed to send: %w", err)
	}

	reply := make([]byte, len(payload))
	if _, err := io.ReadFull(conn, reply); err != nil {
		return 0, fmt.Errorf("failed to read echo: %w", err)
	}
	rtt := time.Since(start)

	if !bytes.Equal(reply, payload) {
		return rtt, fmt.Errorf("%w: sent %q, got %q", ErrEchoMismatch, payload, reply)
	}
	return rtt, nil
}
