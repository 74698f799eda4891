package relay

import (
	"fmt"
	"strings"

	"github.com/horgh/irc"
	"github.com/nullslate/relayd/internal/config"
	"github.com/nullslate/relayd/internal/registry"
	"github.com/nullslate/relayd/internal/wire"
)

// Dispatcher routes a parsed message from a client to the handler for its
// registration state and command, and holds everything a handler needs to
// reach the shared tables and server configuration.
type Dispatcher struct {
	reg *registry.Registry
	cfg *config.Config
}

// NewDispatcher builds a dispatcher over the given registry and
// configuration.
func NewDispatcher(reg *registry.Registry, cfg *config.Config) *Dispatcher {
	return &Dispatcher{reg: reg, cfg: cfg}
}

// Dispatch is the entry point readLoop calls for every parsed line. It is
// safe to call concurrently for different clients; for one client it is
// only ever called from that client's own readLoop goroutine, so per-client
// state needs no extra locking here.
func (d *Dispatcher) Dispatch(c *Client, m irc.Message) {
	switch m.Command {
	case "NICK":
		d.handleNick(c, m)
	case "USER":
		d.handleUser(c, m)
	case "JOIN":
		d.handleJoin(c, m)
	case "PART":
		d.handlePart(c, m)
	case "PRIVMSG", "NOTICE":
		d.handlePrivmsg(c, m)
	case "PING":
		d.handlePing(c, m)
	case "PONG":
		// No-op: receipt alone satisfies liveness; the idle reaper only cares
		// that LastActivity advanced, which readLoop already updated.
	case "QUIT":
		d.handleQuit(c, m)
	default:
		if _, ok := c.State().(userState); ok {
			d.reply(c, wire.ErrUnknownCommand, m.Command, "Unknown command")
		}
	}
}

// reply sends a numeric addressed to whatever nick the client currently
// has, or "*" before registration completes.
func (d *Dispatcher) reply(c *Client, code string, params ...string) {
	nick := "*"
	if u, ok := d.reg.UserOfClient(c.ID); ok {
		nick = u.Nick
	}
	c.SendMessage(wire.FromServer(d.cfg.ServerName, nick, code, params...))
}

func (d *Dispatcher) handleNick(c *Client, m irc.Message) {
	if len(m.Params) == 0 {
		d.reply(c, wire.ErrNoNicknameGiven, "No nickname given")
		return
	}

	nick := m.Params[0]
	if len(nick) > d.cfg.MaxNickLength {
		nick = nick[:d.cfg.MaxNickLength]
	}
	if !registry.IsValidNick(d.cfg.MaxNickLength, nick) {
		d.reply(c, wire.ErrErroneousNickname, nick, "Erroneous nickname")
		return
	}

	switch st := c.State().(type) {
	case unknownState:
		if !d.reg.ReserveNick(nick, c.ID) {
			d.reply(c, wire.ErrNicknameInUse, nick, "Nickname is already in use")
			return
		}
		c.SetState(protoUserState{ProtoUser: registry.ProtoUser{Nick: nick}, haveNick: true})

	case protoUserState:
		if !d.reg.ReserveNick(nick, c.ID) {
			d.reply(c, wire.ErrNicknameInUse, nick, "Nickname is already in use")
			return
		}
		st.Nick = nick
		st.haveNick = true
		if st.haveUser {
			d.completeRegistration(c, st)
			return
		}
		c.SetState(st)

	case userState:
		u, ok := d.reg.UserOfClient(c.ID)
		if !ok {
			return
		}
		if !d.reg.RenameNick(u.Nick, nick, st.UserID) {
			d.reply(c, wire.ErrNicknameInUse, nick, "Nickname is already in use")
			return
		}
		d.broadcastToChannelsOf(u, irc.Message{
			Prefix:  fmt.Sprintf("%s!%s@%s", u.Nick, u.Username, u.Host.String()),
			Command: "NICK",
			Params:  []string{nick},
		}, true)

	default:
		d.reply(c, wire.ErrAlreadyRegistred, "Unexpected client state")
	}
}

func (d *Dispatcher) handleUser(c *Client, m irc.Message) {
	if len(m.Params) != 4 {
		d.reply(c, wire.ErrNeedMoreParams, "USER", "Not enough parameters")
		return
	}

	username := m.Params[0]
	if len(username) > d.cfg.MaxNickLength {
		username = username[:d.cfg.MaxNickLength]
	}
	if !registry.IsValidUser(username) {
		c.SendMessage(irc.Message{Command: "ERROR", Params: []string{"Invalid username"}})
		c.markDead()
		return
	}
	realName := m.Params[3]

	switch st := c.State().(type) {
	case unknownState:
		c.SetState(protoUserState{
			ProtoUser: registry.ProtoUser{Username: username, RealName: realName},
			haveUser:  true,
		})

	case protoUserState:
		st.Username = username
		st.RealName = realName
		st.haveUser = true
		if st.haveNick {
			d.completeRegistration(c, st)
			return
		}
		c.SetState(st)

	default:
		d.reply(c, wire.ErrAlreadyRegistred, "Unauthorized command (already registered)")
	}
}

// completeRegistration installs the user record once both halves of
// registration have arrived, and sends RFC 2812's welcome burst.
func (d *Dispatcher) completeRegistration(c *Client, st protoUserState) {
	host := registry.Host{Addr: c.conn.IP}

	u := &registry.User{
		ID:       c.ID,
		Nick:     st.Nick,
		Username: st.Username,
		RealName: st.RealName,
		Host:     host,
	}
	d.reg.RegisterUser(c.ID, u)
	c.SetState(userState{UserID: c.ID})

	d.reply(c, wire.ReplyWelcome,
		fmt.Sprintf("Welcome to the Internet Relay Network %s!%s@%s", u.Nick, u.Username, host.String()))
	d.reply(c, wire.ReplyYourHost,
		fmt.Sprintf("Your host is %s, running version %s", d.cfg.ServerName, d.cfg.Version))
	d.reply(c, wire.ReplyCreated,
		fmt.Sprintf("This server was created %s", d.cfg.CreatedAt))
	d.reply(c, wire.ReplyMyInfo, d.cfg.ServerName, d.cfg.Version, "i", "nt")

	d.sendLusers(c)
	d.sendMOTD(c)
}

func (d *Dispatcher) handleJoin(c *Client, m irc.Message) {
	u, ok := d.requireUser(c)
	if !ok {
		return
	}
	if len(m.Params) == 0 {
		d.reply(c, wire.ErrNeedMoreParams, "JOIN", "Not enough parameters")
		return
	}

	for _, name := range splitComma(m.Params[0]) {
		if !registry.IsValidChannel(strings.ToLower(name)) {
			d.reply(c, wire.ErrNoSuchChannel, name, "No such channel")
			continue
		}

		ch, created := d.reg.GetOrCreateChannel(name)
		d.reg.Join(ch, u, created)

		joinMsg := irc.Message{
			Prefix:  fmt.Sprintf("%s!%s@%s", u.Nick, u.Username, u.Host.String()),
			Command: "JOIN",
			Params:  []string{ch.Name},
		}
		d.broadcastToChannel(ch, joinMsg, true)

		if ch.Topic != "" {
			d.reply(c, wire.ReplyTopic, ch.Name, ch.Topic)
		}

		d.reply(c, wire.ReplyNamReply, "=", ch.Name, joinNames(d.reg.ChannelMembers(ch)))
		d.reply(c, wire.ReplyEndOfNames, ch.Name, "End of /NAMES list")
	}
}

func (d *Dispatcher) handlePart(c *Client, m irc.Message) {
	u, ok := d.requireUser(c)
	if !ok {
		return
	}
	if len(m.Params) == 0 {
		d.reply(c, wire.ErrNeedMoreParams, "PART", "Not enough parameters")
		return
	}

	reason := u.Nick
	if len(m.Params) > 1 {
		reason = m.Params[1]
	}

	for _, name := range splitComma(m.Params[0]) {
		ch, ok := d.reg.FindChannel(name)
		if !ok {
			d.reply(c, wire.ErrNoSuchChannel, name, "No such channel")
			continue
		}

		if !d.reg.Part(ch.Name, u) {
			d.reply(c, wire.ErrNotOnChannel, ch.Name, "You're not on that channel")
			continue
		}

		partMsg := irc.Message{
			Prefix:  fmt.Sprintf("%s!%s@%s", u.Nick, u.Username, u.Host.String()),
			Command: "PART",
			Params:  []string{ch.Name, reason},
		}
		d.broadcastToChannel(ch, partMsg, true)
		// Part already removed u from ch, so the broadcast above cannot
		// reach the parting user; echo the PART to it directly.
		c.SendMessage(partMsg)
	}
}

func (d *Dispatcher) handlePrivmsg(c *Client, m irc.Message) {
	u, ok := d.requireUser(c)
	if !ok {
		return
	}
	if len(m.Params) == 0 {
		d.reply(c, wire.ErrNoRecipient, "No recipient given ("+m.Command+")")
		return
	}
	if len(m.Params) < 2 || m.Params[1] == "" {
		d.reply(c, wire.ErrNoTextToSend, "No text to send")
		return
	}

	target := m.Params[0]
	text := m.Params[1]
	prefixed := irc.Message{
		Prefix:  fmt.Sprintf("%s!%s@%s", u.Nick, u.Username, u.Host.String()),
		Command: m.Command,
		Params:  []string{target, text},
	}

	if len(target) > 0 && target[0] == '#' {
		ch, ok := d.reg.FindChannel(target)
		if !ok {
			d.reply(c, wire.ErrNoSuchNick, target, "No such nick/channel")
			return
		}
		d.broadcastToChannel(ch, prefixed, false)
		return
	}

	recipient, ok := d.reg.FindUserByNick(target)
	if !ok {
		d.reply(c, wire.ErrNoSuchNick, target, "No such nick/channel")
		return
	}
	sender, ok := d.reg.Sender(recipient.ID)
	if !ok {
		d.reply(c, wire.ErrNoSuchNick, target, "No such nick/channel")
		return
	}
	sender.Enqueue(encodeOrEmpty(prefixed))
}

func (d *Dispatcher) handlePing(c *Client, m irc.Message) {
	token := d.cfg.ServerName
	if len(m.Params) > 0 {
		token = m.Params[0]
	}
	c.SendMessage(irc.Message{
		Prefix:  d.cfg.ServerName,
		Command: "PONG",
		Params:  []string{d.cfg.ServerName, token},
	})
}

func (d *Dispatcher) handleQuit(c *Client, m irc.Message) {
	reason := "Client quit"
	if len(m.Params) > 0 {
		reason = m.Params[0]
	}

	d.BroadcastQuit(c, reason)

	c.SendMessage(irc.Message{Command: "ERROR", Params: []string{"Closing link: " + reason}})
	c.markDead()
}

// BroadcastQuit tells every channel member of c's user, if it had one, that
// the user is gone. It covers both the explicit QUIT command and abrupt
// teardown (EOF, I/O error, idle timeout), which must look the same to
// everyone else on the channel. c.quitOnce makes it safe to call from both
// paths for the same client: whichever runs first wins, the other is a
// no-op.
func (d *Dispatcher) BroadcastQuit(c *Client, reason string) {
	c.quitOnce.Do(func() {
		u, ok := d.reg.UserOfClient(c.ID)
		if !ok {
			return
		}
		d.broadcastToChannelsOf(u, irc.Message{
			Prefix:  fmt.Sprintf("%s!%s@%s", u.Nick, u.Username, u.Host.String()),
			Command: "QUIT",
			Params:  []string{reason},
		}, false)
	})
}

func (d *Dispatcher) sendLusers(c *Client) {
	d.reply(c, wire.ReplyLUserClient, "There are 0 users and 0 invisible on 1 server")
	d.reply(c, wire.ReplyLUserUnknown, "0", "unknown connection(s)")
	d.reply(c, wire.ReplyLUserChannels, "0", "channels formed")
	d.reply(c, wire.ReplyLUserMe, "I have 0 clients and 1 server")
}

func (d *Dispatcher) sendMOTD(c *Client) {
	d.reply(c, wire.ReplyMOTDStart, fmt.Sprintf("- %s Message of the day -", d.cfg.ServerName))
	d.reply(c, wire.ReplyMOTD, "- "+d.cfg.MOTD)
	d.reply(c, wire.ReplyEndOfMOTD, "End of /MOTD command")
}

// requireUser fetches the calling client's user record, replying with
// ERR_NOTREGISTERED if registration has not completed.
func (d *Dispatcher) requireUser(c *Client) (*registry.User, bool) {
	u, ok := d.reg.UserOfClient(c.ID)
	if !ok {
		d.reply(c, wire.ErrNotRegistered, "You have not registered")
		return nil, false
	}
	return u, true
}

// broadcastToChannel enqueues m to every member of ch's Sender, optionally
// including the acting user's own connection (true for JOIN/PART/NICK
// echoes, false for PRIVMSG, which the sender already sees locally via its
// own client).
func (d *Dispatcher) broadcastToChannel(ch *registry.Channel, m irc.Message, includeSelf bool) {
	line := encodeOrEmpty(m)
	if line == "" {
		return
	}

	selfNick := ""
	if idx := indexByte(m.Prefix, '!'); idx >= 0 {
		selfNick = m.Prefix[:idx]
	}

	for _, nick := range d.reg.ChannelMembers(ch) {
		if !includeSelf && nick == selfNick {
			continue
		}
		u, ok := d.reg.FindUserByNick(nick)
		if !ok {
			continue
		}
		sender, ok := d.reg.Sender(u.ID)
		if !ok {
			continue
		}
		sender.Enqueue(line)
	}
}

func (d *Dispatcher) broadcastToChannelsOf(u *registry.User, m irc.Message, includeSelf bool) {
	seen := make(map[string]struct{})
	for _, name := range u.Channels {
		ch, ok := d.reg.FindChannel(name)
		if !ok {
			continue
		}
		if _, ok := seen[ch.Name]; ok {
			continue
		}
		seen[ch.Name] = struct{}{}
		d.broadcastToChannel(ch, m, includeSelf)
	}
}

func encodeOrEmpty(m irc.Message) string {
	line, err := m.Encode()
	if err != nil && err != irc.ErrTruncated {
		return ""
	}
	return line
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += " "
		}
		out += n
	}
	return out
}
