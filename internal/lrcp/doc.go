// Package lrcp owns the Line Reversal Control Protocol server.
//
// Ownership boundary:
// - the datagram socket and its read loop
// - the session table (exclusive mutation rights)
// - routing of decoded packets to per-session inboxes
//
// Sessions and their retransmission supervisors live in lrcp/session; the
// wire grammar lives in lrcp/packet.
package lrcp
