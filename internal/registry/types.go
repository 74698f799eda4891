// Package registry holds the shared, concurrently-accessed tables of
// clients, nicknames, users, channels, and peer servers, and enforces the
// invariants that must hold across them at every observable instant:
//
//  1. Every user id appearing as a value in nicks exists as a key in users.
//  2. Every nick in a channel's members has a live entry in nicks and users.
//  3. A client registered as a user implies that user exists and its id
//     matches the client id.
//  4. clients[id].ID == id for every id present.
//  5. No two distinct user ids share a canonical nick.
//  6. A client's outbound queue never exceeds its bound; overflow marks the
//     client dead rather than violating the bound.
package registry

import "net"

// ClientID is a process-unique, monotonically increasing identifier minted
// on accept.
type ClientID uint32

// UserID is a ClientID once a client has completed registration as a user;
// for local users it is always equal to the owning ClientID.
type UserID = ClientID

// ServerID identifies a peer server (forward-compatible only; no peering
// handshake is implemented).
type ServerID uint32

// Sender is the interface the registry uses to reach a live client without
// importing the package that implements the connection itself. This breaks
// the cyclic reference the original design sketch ran into: the registry
// never holds a concrete connection type, only this narrow interface.
type Sender interface {
	// Enqueue appends line to the client's outbound queue and returns
	// whether the client is still usable afterward (false means the queue
	// overflowed and the client is now dead).
	Enqueue(line string) bool
}

// Host is where a user is connecting from: either a resolved hostname or,
// failing resolution, the literal address.
type Host struct {
	Hostname string
	Addr     net.IP
}

// String renders the host the way it appears in a user's prefix.
func (h Host) String() string {
	if h.Hostname != "" {
		return h.Hostname
	}
	if h.Addr != nil {
		return h.Addr.String()
	}
	return "*"
}

// ProtoUser is the transient holding pen between NICK and USER, before
// registration completes.
type ProtoUser struct {
	Nick     string
	Username string
	RealName string
}

// ChanUserFlags are the per-channel privilege flags for a member.
type ChanUserFlags struct {
	Op      bool
	HalfOp  bool
	Voice   bool
}

// User is a registered human, local to this server.
type User struct {
	ID       UserID
	Nick     string
	Username string
	RealName string
	Host     Host

	// Channels lists canonical channel names the user has joined, in join
	// order.
	Channels []string
}

// Channel is a named chat room, canonicalized (lowercase) key.
type Channel struct {
	Name  string
	Topic string

	// Members maps canonical nick to that member's channel flags.
	Members map[string]ChanUserFlags
}

// ServerUser is a user introduced to us by a peer server (forward-compatible
// placeholder; no mesh protocol is implemented).
type ServerUser struct {
	Nick  string
	Oper  bool
}

// Server is a remote peer server (forward-compatible placeholder).
type Server struct {
	ID       ServerID
	Host     string
	Users    []ServerUser
	ClientID ClientID
}
