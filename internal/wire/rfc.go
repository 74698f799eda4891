// Package wire holds the pieces of the protocol that are not themselves a
// dependency: line framing and the numeric reply catalog. Message parsing
// and encoding are handled by github.com/horgh/irc.
package wire

// MaxMessageSize is the maximum protocol message length, CRLF included.
// RFC 1459 section 2.3.
const MaxMessageSize = 512

// MaxNickLength is the maximum accepted nickname length.
const MaxNickLength = 9

// MaxChannelLength is the maximum accepted channel name length.
const MaxChannelLength = 50

// MaxBufferSize is the capacity of a client's outbound line queue. A client
// whose queue fills past this is considered unable to keep up and is
// disconnected (spec invariant: output never exceeds this bound).
const MaxBufferSize = 2048
