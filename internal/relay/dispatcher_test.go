package relay

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/horgh/irc"
	"github.com/nullslate/relayd/internal/config"
	"github.com/nullslate/relayd/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		ServerName:    "irc.example.org",
		Version:       "relayd-test",
		CreatedAt:     "2026-01-01",
		MOTD:          "Welcome.",
		MaxNickLength: 9,
		DeadTime:      time.Minute,
		IOTimeout:     2 * time.Second,
	}
}

// testClient wires a Client to one end of an in-memory pipe and hands the
// test the other end, so assertions can read exactly what the dispatcher
// sent without a real socket.
type testClient struct {
	c      *Client
	peer   *bufio.Reader
	peerNC net.Conn
}

func newTestClient(t *testing.T, reg *registry.Registry) *testClient {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	id := reg.AllocateClientID()
	c := newClient(id, serverSide, 2*time.Second)
	reg.RegisterClient(id, c)

	go c.writeLoop()
	t.Cleanup(func() { _ = clientSide.Close() })

	return &testClient{c: c, peer: bufio.NewReader(clientSide), peerNC: clientSide}
}

func (tc *testClient) readLine(t *testing.T) string {
	t.Helper()

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := tc.peer.ReadString('\n')
		ch <- result{line, err}
	}()

	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a line from the dispatcher")
		return ""
	}
}

func TestNickThenUserCompletesRegistration(t *testing.T) {
	reg := registry.New()
	d := NewDispatcher(reg, testConfig())
	tc := newTestClient(t, reg)

	d.handleNick(tc.c, msg("NICK", "alice"))
	d.handleUser(tc.c, msg("USER", "alice", "0", "*", "Alice Example"))

	welcome := tc.readLine(t)
	assert.Contains(t, welcome, "001")
	assert.Contains(t, welcome, "Welcome to the Internet Relay Network")

	u, ok := reg.UserOfClient(tc.c.ID)
	require.True(t, ok)
	assert.Equal(t, "alice", u.Nick)
}

func TestUserThenNickCompletesRegistration(t *testing.T) {
	reg := registry.New()
	d := NewDispatcher(reg, testConfig())
	tc := newTestClient(t, reg)

	d.handleUser(tc.c, msg("USER", "bob", "0", "*", "Bob Example"))
	d.handleNick(tc.c, msg("NICK", "bob"))

	welcome := tc.readLine(t)
	assert.Contains(t, welcome, "001")

	_, ok := reg.UserOfClient(tc.c.ID)
	assert.True(t, ok)
}

func TestDuplicateNickIsRejected(t *testing.T) {
	reg := registry.New()
	d := NewDispatcher(reg, testConfig())

	first := newTestClient(t, reg)
	d.handleNick(first.c, msg("NICK", "alice"))
	d.handleUser(first.c, msg("USER", "alice", "0", "*", "Alice"))
	first.readLine(t) // 001

	second := newTestClient(t, reg)
	d.handleNick(second.c, msg("NICK", "alice"))

	reply := second.readLine(t)
	assert.Contains(t, reply, "433")
}

func TestJoinBroadcastsToExistingMembers(t *testing.T) {
	reg := registry.New()
	d := NewDispatcher(reg, testConfig())

	alice := newTestClient(t, reg)
	d.handleNick(alice.c, msg("NICK", "alice"))
	d.handleUser(alice.c, msg("USER", "alice", "0", "*", "Alice"))
	alice.readLine(t) // 001
	alice.readLine(t) // 002
	alice.readLine(t) // 003
	alice.readLine(t) // 004
	alice.readLine(t) // 251
	alice.readLine(t) // 253
	alice.readLine(t) // 254
	alice.readLine(t) // 255
	alice.readLine(t) // 375
	alice.readLine(t) // 372
	alice.readLine(t) // 376

	d.handleJoin(alice.c, msg("JOIN", "#general"))
	aliceJoin := alice.readLine(t)
	assert.Contains(t, aliceJoin, "JOIN")
	alice.readLine(t) // 353 NAMES
	alice.readLine(t) // 366 end of names

	bob := newTestClient(t, reg)
	d.handleNick(bob.c, msg("NICK", "bob"))
	d.handleUser(bob.c, msg("USER", "bob", "0", "*", "Bob"))
	for i := 0; i < 11; i++ {
		bob.readLine(t)
	}

	d.handleJoin(bob.c, msg("JOIN", "#general"))

	// Alice should see Bob's JOIN arrive on her connection.
	bobJoinSeenByAlice := alice.readLine(t)
	assert.Contains(t, bobJoinSeenByAlice, "JOIN")
	assert.Contains(t, bobJoinSeenByAlice, "bob")
}

func TestPrivmsgToUnknownNick(t *testing.T) {
	reg := registry.New()
	d := NewDispatcher(reg, testConfig())
	tc := newTestClient(t, reg)

	d.handleNick(tc.c, msg("NICK", "alice"))
	d.handleUser(tc.c, msg("USER", "alice", "0", "*", "Alice"))
	for i := 0; i < 11; i++ {
		tc.readLine(t)
	}

	d.handlePrivmsg(tc.c, msg("PRIVMSG", "ghost", "hello?"))
	reply := tc.readLine(t)
	assert.Contains(t, reply, "401")
}

func TestCommandBeforeRegistrationIsRejected(t *testing.T) {
	reg := registry.New()
	d := NewDispatcher(reg, testConfig())
	tc := newTestClient(t, reg)

	d.handleJoin(tc.c, msg("JOIN", "#general"))
	reply := tc.readLine(t)
	assert.Contains(t, reply, "451")
}

func TestQuitTearsDownChannelMembership(t *testing.T) {
	reg := registry.New()
	d := NewDispatcher(reg, testConfig())
	tc := newTestClient(t, reg)

	d.handleNick(tc.c, msg("NICK", "alice"))
	d.handleUser(tc.c, msg("USER", "alice", "0", "*", "Alice"))
	for i := 0; i < 11; i++ {
		tc.readLine(t)
	}
	d.handleJoin(tc.c, msg("JOIN", "#general"))
	tc.readLine(t) // join echo
	tc.readLine(t) // names
	tc.readLine(t) // end names

	d.handleQuit(tc.c, msg("QUIT", "goodbye"))
	reg.RemoveClient(tc.c.ID)

	_, stillThere := reg.FindChannel("#general")
	assert.False(t, stillThere)
	assert.True(t, tc.c.IsDead())
}

func msg(command string, params ...string) irc.Message {
	return irc.Message{Command: command, Params: params}
}
