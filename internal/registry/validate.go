package registry

// isValidNick checks if a nickname is valid.
func isValidNick(maxLen int, n string) bool {
	if len(n) == 0 || len(n) > maxLen {
		return false
	}

	// TODO: For now only a-z, 0-9, or _. RFC is more lenient.
	for i, char := range n {
		if char >= 'a' && char <= 'z' {
			continue
		}

		if char >= '0' && char <= '9' {
			// No digits in first position.
			if i == 0 {
				return false
			}
			continue
		}

		if char == '_' {
			continue
		}

		return false
	}

	return true
}

// IsValidNick is the exported form used by the dispatcher to validate a
// NICK argument against the server's configured max length.
func IsValidNick(maxLen int, n string) bool {
	return isValidNick(maxLen, n)
}

const maxUsernameLength = 10

// isValidUser checks if a username (USER command) is valid.
func isValidUser(u string) bool {
	if len(u) == 0 || len(u) > maxUsernameLength {
		return false
	}

	for _, char := range u {
		if char >= 'a' && char <= 'z' {
			continue
		}

		if char >= '0' && char <= '9' {
			continue
		}

		return false
	}

	return true
}

// IsValidUser is the exported form used by the dispatcher.
func IsValidUser(u string) bool {
	return isValidUser(u)
}

// IsValidChannel checks a channel name for validity. Canonicalize before
// calling.
func IsValidChannel(c string) bool {
	if len(c) == 0 || len(c) > MaxChannelLength {
		return false
	}

	// TODO: only # channels right now.
	for i, char := range c {
		if i == 0 {
			if char == '#' {
				continue
			}
			return false
		}

		if char >= 'a' && char <= 'z' {
			continue
		}

		if char >= '0' && char <= '9' {
			continue
		}

		return false
	}

	return true
}

// MaxChannelLength is the RFC 1459 channel name limit.
const MaxChannelLength = 50
