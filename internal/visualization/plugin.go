// ABOUTME: Output plugin descriptor
// ABOUTME: Lets a host look the visualization output up by name
package visualization

import (
	"log/slog"

	"github.com/Sendspin/sendspin-vis/internal/event"
	"github.com/Sendspin/sendspin-vis/internal/metrics"
)

// Plugin describes an output type a host can instantiate
type Plugin struct {
	Name string
	// CanBeDefault is false for outputs that need explicit configuration
	CanBeDefault bool
	Create       func(loop *event.Loop, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Output, error)
}

// OutputPlugin is the visualization output's descriptor
var OutputPlugin = Plugin{
	Name:         "visualization",
	CanBeDefault: false,
	Create:       NewOutput,
}

// Lookup returns the plugin registered under name
func Lookup(name string) (Plugin, bool) {
	if name == OutputPlugin.Name {
		return OutputPlugin, true
	}
	return Plugin{}, false
}
