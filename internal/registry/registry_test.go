package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	lines []string
	dead  bool
}

func (f *fakeSender) Enqueue(line string) bool {
	if f.dead {
		return false
	}
	f.lines = append(f.lines, line)
	return true
}

func registerLocalUser(t *testing.T, r *Registry, nick string) (ClientID, *User) {
	t.Helper()
	id := r.AllocateClientID()
	r.RegisterClient(id, &fakeSender{})
	require.True(t, r.ReserveNick(nick, id))
	u := &User{ID: id, Nick: nick, Username: "u", RealName: "r"}
	r.RegisterUser(id, u)
	return id, u
}

func TestReserveNickRejectsDuplicate(t *testing.T) {
	r := New()
	id1, _ := registerLocalUser(t, r, "alice")
	_ = id1

	id2 := r.AllocateClientID()
	r.RegisterClient(id2, &fakeSender{})
	assert.False(t, r.ReserveNick("Alice", id2))
}

func TestReserveNickAllowsOwnNick(t *testing.T) {
	r := New()
	id, _ := registerLocalUser(t, r, "alice")
	assert.True(t, r.ReserveNick("alice", id))
}

func TestFindUserByNickIsCaseInsensitive(t *testing.T) {
	r := New()
	_, u := registerLocalUser(t, r, "Alice")

	found, ok := r.FindUserByNick("ALICE")
	require.True(t, ok)
	assert.Equal(t, u.ID, found.ID)
}

func TestGetOrCreateChannelCreatesOnce(t *testing.T) {
	r := New()
	ch1, created1 := r.GetOrCreateChannel("#test")
	assert.True(t, created1)

	ch2, created2 := r.GetOrCreateChannel("#TEST")
	assert.False(t, created2)
	assert.Same(t, ch1, ch2)
}

func TestJoinAndPart(t *testing.T) {
	r := New()
	_, u := registerLocalUser(t, r, "alice")
	ch, created := r.GetOrCreateChannel("#general")
	require.True(t, created)

	r.Join(ch, u, true)
	assert.Len(t, ch.Members, 1)
	assert.True(t, ch.Members["alice"].Op)
	assert.Equal(t, []string{"#general"}, u.Channels)

	ok := r.Part("#general", u)
	assert.True(t, ok)
	assert.Len(t, ch.Members, 0)
	assert.Empty(t, u.Channels)

	_, stillExists := r.FindChannel("#general")
	assert.False(t, stillExists, "channel should be removed once empty")
}

func TestPartUnknownMembershipFails(t *testing.T) {
	r := New()
	_, u := registerLocalUser(t, r, "alice")
	r.GetOrCreateChannel("#general")

	assert.False(t, r.Part("#general", u))
}

func TestRenameNickUpdatesChannelMembership(t *testing.T) {
	r := New()
	id, u := registerLocalUser(t, r, "alice")
	ch, _ := r.GetOrCreateChannel("#general")
	r.Join(ch, u, true)

	ok := r.RenameNick("alice", "alicia", id)
	require.True(t, ok)

	_, hasOld := ch.Members["alice"]
	assert.False(t, hasOld)
	_, hasNew := ch.Members["alicia"]
	assert.True(t, hasNew)

	_, foundOld := r.FindUserByNick("alice")
	assert.False(t, foundOld)
	found, foundNew := r.FindUserByNick("alicia")
	assert.True(t, foundNew)
	assert.Equal(t, "alicia", found.Nick)
}

func TestRenameNickRejectsCollision(t *testing.T) {
	r := New()
	id1, _ := registerLocalUser(t, r, "alice")
	registerLocalUser(t, r, "bob")

	assert.False(t, r.RenameNick("alice", "bob", id1))

	// The rejected rename must not have disturbed alice's own entry.
	found, ok := r.FindUserByNick("alice")
	require.True(t, ok)
	assert.Equal(t, id1, found.ID)
}

func TestRemoveClientCleansUpEverything(t *testing.T) {
	r := New()
	id, u := registerLocalUser(t, r, "alice")
	ch, _ := r.GetOrCreateChannel("#general")
	r.Join(ch, u, true)

	r.RemoveClient(id)

	_, hasSender := r.Sender(id)
	assert.False(t, hasSender)

	_, hasUser := r.FindUserByNick("alice")
	assert.False(t, hasUser)

	_, hasChannel := r.FindChannel("#general")
	assert.False(t, hasChannel, "channel should be gone once its last member disconnects")
}

func TestRemoveClientLeavesSharedChannelIntact(t *testing.T) {
	r := New()
	id1, u1 := registerLocalUser(t, r, "alice")
	_, u2 := registerLocalUser(t, r, "bob")
	ch, _ := r.GetOrCreateChannel("#general")
	r.Join(ch, u1, true)
	r.Join(ch, u2, false)

	r.RemoveClient(id1)

	found, ok := r.FindChannel("#general")
	require.True(t, ok)
	assert.Len(t, found.Members, 1)
	_, stillThere := found.Members["bob"]
	assert.True(t, stillThere)
}

func TestRemoveClientIsIdempotent(t *testing.T) {
	r := New()
	id, _ := registerLocalUser(t, r, "alice")
	r.RemoveClient(id)
	assert.NotPanics(t, func() { r.RemoveClient(id) })
}

func TestIsValidNick(t *testing.T) {
	assert.True(t, IsValidNick(9, "alice_99"))
	assert.False(t, IsValidNick(9, "9alice"))
	assert.False(t, IsValidNick(9, ""))
	assert.False(t, IsValidNick(9, "waytoolongnickname"))
}

func TestIsValidChannel(t *testing.T) {
	assert.True(t, IsValidChannel("#general"))
	assert.False(t, IsValidChannel("general"))
	assert.False(t, IsValidChannel(""))
}
