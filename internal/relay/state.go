package relay

import "github.com/nullslate/relayd/internal/registry"

// ClientState is a tagged variant of the registration state machine a
// connection moves through: unknown, mid-registration, or fully a user (or,
// in the forward-compatible case, a peer server). Handlers read the current
// state by value and install the next one with Client.SetState.
type ClientState interface {
	clientState()
}

// unknownState is where every connection starts: neither NICK nor USER has
// been seen yet.
type unknownState struct{}

func (unknownState) clientState() {}

// protoUserState holds whatever of NICK/USER has arrived so far, waiting for
// the other half before registration can complete.
type protoUserState struct {
	registry.ProtoUser
	haveNick bool
	haveUser bool
}

func (protoUserState) clientState() {}

// userState is a fully registered local user.
type userState struct {
	UserID registry.UserID
}

func (userState) clientState() {}

// serverState is a forward-compatible placeholder: relayd never negotiates
// a peer link, so nothing constructs this today, but the dispatcher's type
// switch already accounts for it.
type serverState struct {
	ServerID registry.ServerID
}

func (serverState) clientState() {}
