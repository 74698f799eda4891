package registry

import (
	"strings"
	"sync"
	"sync/atomic"
)

// clientEntry is what the clients table holds: enough to reach the
// connection and to know what, if anything, it has registered as.
type clientEntry struct {
	ID     ClientID
	Sender Sender

	// UserID is set once this client has completed user registration.
	// Zero means not yet a user.
	UserID UserID
}

// Registry is the set of tables shared across all connections on a server.
// Each table has its own lock; callers that must hold more than one lock at
// a time take them in the fixed order channels, nicks, users, clients to
// avoid deadlock. No operation here blocks on network I/O: all entries are
// reached through the Sender interface, whose Enqueue is itself
// non-blocking.
type Registry struct {
	nextClientID uint32

	clientsMu sync.RWMutex
	clients   map[ClientID]*clientEntry

	// nicksMu guards nicks, the canonical-nick to user-id index. Canonical
	// form is lowercase; every method here canonicalizes its nick arguments
	// itself.
	nicksMu sync.RWMutex
	nicks   map[string]UserID

	usersMu sync.RWMutex
	users   map[UserID]*User

	channelsMu sync.RWMutex
	channels   map[string]*Channel

	serversMu sync.RWMutex
	servers   map[ServerID]*Server
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		clients:  make(map[ClientID]*clientEntry),
		nicks:    make(map[string]UserID),
		users:    make(map[UserID]*User),
		channels: make(map[string]*Channel),
		servers:  make(map[ServerID]*Server),
	}
}

// AllocateClientID mints the next process-unique client id.
func (r *Registry) AllocateClientID() ClientID {
	return ClientID(atomic.AddUint32(&r.nextClientID, 1))
}

// RegisterClient adds a freshly-accepted connection to the clients table,
// unregistered as a user.
func (r *Registry) RegisterClient(id ClientID, sender Sender) {
	r.clientsMu.Lock()
	defer r.clientsMu.Unlock()
	r.clients[id] = &clientEntry{ID: id, Sender: sender}
}

// Sender returns the Sender for a client id, if it is still connected.
func (r *Registry) Sender(id ClientID) (Sender, bool) {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	e, ok := r.clients[id]
	if !ok {
		return nil, false
	}
	return e.Sender, true
}

// RemoveClient tears a client down: if it had completed user registration,
// it is parted from every channel it was in (deleting channels left empty),
// its nick is freed, and its user record is dropped. Safe to call more than
// once for the same id.
func (r *Registry) RemoveClient(id ClientID) {
	r.clientsMu.Lock()
	entry, ok := r.clients[id]
	if !ok {
		r.clientsMu.Unlock()
		return
	}
	delete(r.clients, id)
	userID := entry.UserID
	r.clientsMu.Unlock()

	if userID == 0 {
		// A client that never completed registration may still hold a nick
		// reserved by NICK; free it.
		r.nicksMu.Lock()
		for canon, owner := range r.nicks {
			if owner == id {
				delete(r.nicks, canon)
			}
		}
		r.nicksMu.Unlock()
		return
	}

	r.usersMu.Lock()
	u, ok := r.users[userID]
	if !ok {
		r.usersMu.Unlock()
		return
	}
	channels := append([]string(nil), u.Channels...)
	nick := u.Nick
	delete(r.users, userID)
	r.usersMu.Unlock()

	r.channelsMu.Lock()
	for _, name := range channels {
		ch, ok := r.channels[name]
		if !ok {
			continue
		}
		delete(ch.Members, canonicalizeNick(nick))
		if len(ch.Members) == 0 {
			delete(r.channels, name)
		}
	}
	r.channelsMu.Unlock()

	r.nicksMu.Lock()
	if r.nicks[canonicalizeNick(nick)] == userID {
		delete(r.nicks, canonicalizeNick(nick))
	}
	r.nicksMu.Unlock()
}

// ReserveNick claims a canonical nick for a not-yet-registered client,
// failing if it is already taken by a different user. A client reserving
// its own already-held nick (a no-op rename) succeeds.
func (r *Registry) ReserveNick(nick string, owner UserID) bool {
	canon := canonicalizeNick(nick)
	r.nicksMu.Lock()
	defer r.nicksMu.Unlock()
	if existing, ok := r.nicks[canon]; ok && existing != owner {
		return false
	}
	r.nicks[canon] = owner
	return true
}

// RenameNick moves a user's canonical nick entry, failing without changing
// anything if the new nick is already claimed by someone else.
func (r *Registry) RenameNick(oldNick, newNick string, owner UserID) bool {
	oldCanon := canonicalizeNick(oldNick)
	newCanon := canonicalizeNick(newNick)

	r.nicksMu.Lock()
	if existing, ok := r.nicks[newCanon]; ok && existing != owner {
		r.nicksMu.Unlock()
		return false
	}
	delete(r.nicks, oldCanon)
	r.nicks[newCanon] = owner
	r.nicksMu.Unlock()

	r.usersMu.Lock()
	if u, ok := r.users[owner]; ok {
		u.Nick = newNick
	}
	r.usersMu.Unlock()

	r.channelsMu.Lock()
	for _, ch := range r.channels {
		if flags, ok := ch.Members[oldCanon]; ok {
			delete(ch.Members, oldCanon)
			ch.Members[newCanon] = flags
		}
	}
	r.channelsMu.Unlock()

	return true
}

// RegisterUser completes registration: it installs the user record and
// marks the owning client entry as a user.
func (r *Registry) RegisterUser(id ClientID, u *User) {
	r.usersMu.Lock()
	r.users[u.ID] = u
	r.usersMu.Unlock()

	r.clientsMu.Lock()
	if e, ok := r.clients[id]; ok {
		e.UserID = u.ID
	}
	r.clientsMu.Unlock()
}

// FindUserByNick looks a user up by nick, canonicalizing first.
func (r *Registry) FindUserByNick(nick string) (*User, bool) {
	canon := canonicalizeNick(nick)
	r.nicksMu.RLock()
	id, ok := r.nicks[canon]
	r.nicksMu.RUnlock()
	if !ok {
		return nil, false
	}

	r.usersMu.RLock()
	defer r.usersMu.RUnlock()
	u, ok := r.users[id]
	return u, ok
}

// UserOfClient returns the user record for a registered client, if any.
func (r *Registry) UserOfClient(id ClientID) (*User, bool) {
	r.clientsMu.RLock()
	e, ok := r.clients[id]
	r.clientsMu.RUnlock()
	if !ok || e.UserID == 0 {
		return nil, false
	}

	r.usersMu.RLock()
	defer r.usersMu.RUnlock()
	u, ok := r.users[e.UserID]
	return u, ok
}

// FindChannel looks up a channel by name, canonicalizing first.
func (r *Registry) FindChannel(name string) (*Channel, bool) {
	canon := canonicalizeChannel(name)
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	ch, ok := r.channels[canon]
	return ch, ok
}

// GetOrCreateChannel returns the channel with the given name, creating it
// with no members if it did not already exist; members are added with Join.
// It reports whether the channel was newly created.
func (r *Registry) GetOrCreateChannel(name string) (ch *Channel, created bool) {
	canon := canonicalizeChannel(name)
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()

	if existing, ok := r.channels[canon]; ok {
		return existing, false
	}

	ch = &Channel{
		Name:    canon,
		Members: make(map[string]ChanUserFlags),
	}
	r.channels[canon] = ch
	return ch, true
}

// ChannelMembers returns a snapshot of ch's member nicks, copied under
// channelsMu. Callers outside this package must never range over
// ch.Members directly: every mutator here takes channelsMu first, and a
// bare pointer handed back by FindChannel/GetOrCreateChannel is otherwise
// unsynchronized against concurrent Join/Part/RenameNick/RemoveClient.
func (r *Registry) ChannelMembers(ch *Channel) []string {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()

	out := make([]string, 0, len(ch.Members))
	for nick := range ch.Members {
		out = append(out, nick)
	}
	return out
}

// Join adds a user to a channel's member table and records the channel on
// the user's own membership list. op is true if this join creates the
// channel (the creator is auto-opped).
func (r *Registry) Join(ch *Channel, u *User, op bool) {
	canon := canonicalizeNick(u.Nick)

	r.channelsMu.Lock()
	ch.Members[canon] = ChanUserFlags{Op: op}
	r.channelsMu.Unlock()

	r.usersMu.Lock()
	u.Channels = append(u.Channels, ch.Name)
	r.usersMu.Unlock()
}

// Part removes a user from a channel, deleting the channel if that leaves
// it empty. It reports whether the user was a member.
func (r *Registry) Part(channelName string, u *User) bool {
	canon := canonicalizeChannel(channelName)
	nickCanon := canonicalizeNick(u.Nick)

	r.channelsMu.Lock()
	ch, ok := r.channels[canon]
	if !ok {
		r.channelsMu.Unlock()
		return false
	}
	if _, member := ch.Members[nickCanon]; !member {
		r.channelsMu.Unlock()
		return false
	}
	delete(ch.Members, nickCanon)
	if len(ch.Members) == 0 {
		delete(r.channels, canon)
	}
	r.channelsMu.Unlock()

	r.usersMu.Lock()
	filtered := u.Channels[:0]
	for _, name := range u.Channels {
		if name != canon {
			filtered = append(filtered, name)
		}
	}
	u.Channels = filtered
	r.usersMu.Unlock()

	return true
}

// canonicalizeNick lowercases a nick for use as a map key. IRC nick
// case-mapping also folds a handful of punctuation characters; relayd only
// needs ASCII-lowercase equivalence for the scenarios it supports.
func canonicalizeNick(nick string) string {
	return strings.ToLower(nick)
}

// canonicalizeChannel lowercases a channel name for use as a map key.
func canonicalizeChannel(name string) string {
	return strings.ToLower(name)
}
