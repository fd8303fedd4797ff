// ABOUTME: Root command and shared configuration flags
// ABOUTME: Every subcommand that needs configuration loads it through loadConfig
package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Sendspin/sendspin-vis/internal/config"
)

// rootOptions holds flags shared by every subcommand
type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "visd",
		Short:         "Visualization output server",
		Long:          "visd accepts visualization clients over TCP and feeds them from a paced audio stream.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to visd.yaml (default: search ., ~/.config/visd, /etc/visd)")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newProbeCommand(),
		newConfigCommand(opts),
		newVersionCommand(),
	)

	return rootCmd
}

// addConfigFlags registers the flags that override configuration keys.
// Defaults mirror config.Default so help output is accurate; a flag only
// wins over file and environment values when it is set explicitly.
func addConfigFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.Int("port", d.Visualization.Port, "Visualization listening port (0 picks a free port)")
	fs.String("bind", d.Visualization.BindAddress, "Listening address; a path starting with / or @ uses a unix socket")
	fs.Int("max-clients", d.Visualization.MaxClients, "Maximum connected clients (0 = unlimited)")
	fs.Duration("reap-interval", d.Visualization.ReapInterval, "How often closed clients are collected")
	fs.String("log-level", d.Log.Level, "Log level (debug, info, warn, error)")
	fs.String("log-format", d.Log.Format, "Log format (text, json)")
	fs.Bool("status", d.Status.Enabled, "Serve the HTTP status API")
	fs.String("status-listen", d.Status.Listen, "Status API listen address")
	fs.Bool("mdns", d.MDNS.Enabled, "Advertise the server over mDNS")
	fs.String("name", d.MDNS.Name, "Server name for mDNS and the TUI")
	fs.String("source", d.Audio.Source, "Audio file to play (MP3, FLAC, WAV); empty plays a test tone")
}

func loadConfig(opts *rootOptions, cmd *cobra.Command) (*config.Config, error) {
	return config.Load(opts.configPath, cmd.Flags())
}
