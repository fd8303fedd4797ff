// ABOUTME: Visualization audio output: shared playback state, TCP server and clients
// ABOUTME: Bridges the audio producer goroutine and the event loop
//
// Package visualization implements an audio output that accepts
// visualization clients over TCP (or a unix socket) while being fed raw
// PCM by a producer. Ownership runs one way: Output owns the SharedState
// and the Server, the Server owns its Clients, and each Client holds a
// counted, non-owning handle to the SharedState. Clients are never removed
// from inside their own callbacks; they flag themselves closed and the
// Server's reaper sweeps them on a timer.
//
// Server and Client state is only touched on the event loop. The producer
// reaches it through Output, which dispatches with event.Loop.Call.
package visualization
