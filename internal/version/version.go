// ABOUTME: Build and product identification
// ABOUTME: Version and Commit are overridden with -ldflags at release time
package version

import "fmt"

const (
	// Product is the daemon's name as shown to clients and in mDNS records
	Product = "visd"

	// Manufacturer identifies who ships the daemon
	Manufacturer = "Sendspin"
)

var (
	Version = "0.1.0"
	Commit  = "unknown"
)

// String returns a one-line description for logs and the version command
func String() string {
	return fmt.Sprintf("%s %s (%s) by %s", Product, Version, Commit, Manufacturer)
}
