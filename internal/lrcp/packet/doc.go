// Package packet owns the LRCP wire grammar.
//
// Ownership boundary:
// - slash-delimited framing and escaping
// - numeric field parsing and overflow rejection
//
// Packets are stateless values; session semantics live in lrcp/session.
package packet
