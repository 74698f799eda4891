package relay

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/horgh/irc"
	"github.com/nullslate/relayd/internal/config"
)

// pingAfter is how long a registered client may sit idle before we send it
// a PING to provoke a response.
const pingAfter = 2 * time.Minute

// IdleReaper periodically walks the live client table, pinging idle
// registered users and killing anyone idle past the configured dead time.
// It is supplemental policy, not core protocol semantics: relayd runs
// correctly without it, and a silent connection is then dropped only when
// its per-read deadline (Config.IOTimeout) expires.
type IdleReaper struct {
	cfg      *config.Config
	clients  func() []*Client
	interval time.Duration
}

// NewIdleReaper builds a reaper that walks whatever clients returns each
// tick.
func NewIdleReaper(cfg *config.Config, clients func() []*Client) *IdleReaper {
	return &IdleReaper{
		cfg:      cfg,
		clients:  clients,
		interval: time.Second,
	}
}

// Run sweeps on a fixed interval until stop is closed.
func (r *IdleReaper) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-stop:
			return
		}
	}
}

func (r *IdleReaper) sweep() {
	now := time.Now()

	for _, c := range r.clients() {
		last := time.Unix(atomic.LoadInt64(&c.LastActivity), 0)
		idle := now.Sub(last)

		if idle > r.cfg.DeadTime {
			log.Printf("client %d: idle %s, disconnecting", c.ID, idle)
			c.SendMessage(irc.Message{
				Command: "ERROR",
				Params:  []string{"Closing link: Ping timeout"},
			})
			c.markDead()
			continue
		}

		if idle > pingAfter {
			if _, ok := c.State().(userState); ok {
				c.SendMessage(irc.Message{
					Prefix:  r.cfg.ServerName,
					Command: "PING",
					Params:  []string{r.cfg.ServerName},
				})
			}
		}
	}
}
