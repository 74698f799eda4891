package wire

import "github.com/horgh/irc"

// Numeric reply codes used by the core. Names follow the RFC 1459/2812
// RPL_/ERR_ convention.
const (
	ReplyWelcome       = "001"
	ReplyYourHost      = "002"
	ReplyCreated       = "003"
	ReplyMyInfo        = "004"
	ReplyLUserClient   = "251"
	ReplyLUserUnknown  = "253"
	ReplyLUserChannels = "254"
	ReplyLUserMe       = "255"
	ReplyTopic         = "332"
	ReplyNamReply      = "353"
	ReplyEndOfNames    = "366"
	ReplyMOTDStart     = "375"
	ReplyMOTD          = "372"
	ReplyEndOfMOTD     = "376"

	ErrNoSuchNick        = "401"
	ErrNoSuchServer      = "402"
	ErrNoSuchChannel     = "403"
	ErrCannotSendToChan  = "404"
	ErrNoOrigin          = "409"
	ErrNoRecipient       = "411"
	ErrNoTextToSend      = "412"
	ErrUnknownCommand    = "421"
	ErrNoNicknameGiven   = "431"
	ErrErroneousNickname = "432"
	ErrNicknameInUse     = "433"
	ErrNotRegistered     = "451"
	ErrNotOnChannel      = "442"
	ErrNeedMoreParams    = "461"
	ErrAlreadyRegistred  = "462"
	ErrYoureBannedCreep  = "465"
)

// isNumeric is true for reply codes, which must have the nick (or "*" if
// registration is not yet complete) inserted as their first parameter.
func isNumeric(command string) bool {
	if len(command) != 3 {
		return false
	}
	for _, c := range command {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Reply builds a numeric reply message addressed to nick (use "*" before
// registration completes, per convention).
func Reply(nick, code string, params ...string) irc.Message {
	full := append([]string{nick}, params...)
	return irc.Message{Command: code, Params: full}
}

// FromServer builds a message appearing to originate from the given server
// name, prepending the target nick automatically for numeric replies.
func FromServer(serverName, nick, command string, params ...string) irc.Message {
	if isNumeric(command) {
		full := append([]string{nick}, params...)
		return irc.Message{Prefix: serverName, Command: command, Params: full}
	}
	return irc.Message{Prefix: serverName, Command: command, Params: params}
}
