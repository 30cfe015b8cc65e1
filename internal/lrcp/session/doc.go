// Package session owns the per-session LRCP state machine.
//
// Ownership boundary:
// - reassembly buffer and receive high-water mark
// - outbound chunking and position assignment
// - retransmission supervisors and the shared ack counter
//
// The dispatcher owns the socket and the session table; a session only sees
// its own inbox and a Sender bound to its peer address.
package session
