// Package config loads relayd's flat key/value configuration file.
package config

import (
	"strconv"
	"time"

	"github.com/horgh/config"
	"github.com/pkg/errors"
)

// Config holds a server's configuration.
type Config struct {
	ListenHost string
	ListenPort string
	ServerName string
	Version    string
	CreatedAt  string
	MOTD       string

	MaxNickLength int

	// How long a connection, registered or not, may go without sending a
	// line before we consider it dead. Enforced by the idle reaper, not the
	// core itself.
	DeadTime time.Duration

	// How long a single read or write may wait before giving up and tearing
	// the connection down, via per-operation deadlines.
	IOTimeout time.Duration
}

var requiredKeys = []string{
	"listen-host",
	"listen-port",
	"server-name",
	"version",
	"created-date",
	"motd",
	"max-nick-length",
	"dead-time",
	"io-timeout",
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := config.ReadStringMap(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read configuration file")
	}

	for _, key := range requiredKeys {
		v, exists := raw[key]
		if !exists {
			return nil, errors.Errorf("missing required key: %s", key)
		}
		if len(v) == 0 {
			return nil, errors.Errorf("configuration value is blank: %s", key)
		}
	}

	c := &Config{
		ListenHost: raw["listen-host"],
		ListenPort: raw["listen-port"],
		ServerName: raw["server-name"],
		Version:    raw["version"],
		CreatedAt:  raw["created-date"],
		MOTD:       raw["motd"],
	}

	nickLen, err := strconv.ParseInt(raw["max-nick-length"], 10, 8)
	if err != nil {
		return nil, errors.Wrap(err, "max-nick-length is not valid")
	}
	c.MaxNickLength = int(nickLen)

	c.DeadTime, err = time.ParseDuration(raw["dead-time"])
	if err != nil {
		return nil, errors.Wrap(err, "dead-time is in invalid format")
	}

	c.IOTimeout, err = time.ParseDuration(raw["io-timeout"])
	if err != nil {
		return nil, errors.Wrap(err, "io-timeout is in invalid format")
	}

	return c, nil
}
