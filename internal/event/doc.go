// ABOUTME: Single-goroutine event loop with timers, listeners and buffered sockets
// ABOUTME: Everything that touches connection state runs as a task on one Loop
//
// Package event provides the I/O context used by the visualization output.
// A Loop owns one goroutine; Timer, Listener and BufferedSocket use helper
// goroutines only for blocking system calls and hand every result back to
// the loop as a task, so handlers never run concurrently with each other.
package event
