package relay

import (
	"log"
	"net"
	"sync"

	"github.com/nullslate/relayd/internal/config"
	"github.com/nullslate/relayd/internal/registry"
)

// Core owns the shared registry and accepts connections, spawning a
// readLoop/writeLoop pair for each one and handing parsed messages to a
// Dispatcher.
type Core struct {
	cfg  *config.Config
	reg  *registry.Registry
	disp *Dispatcher

	liveMu sync.Mutex
	live   map[registry.ClientID]*Client
}

// NewCore builds an orchestrator ready to Listen.
func NewCore(cfg *config.Config) *Core {
	reg := registry.New()
	return &Core{
		cfg:  cfg,
		reg:  reg,
		disp: NewDispatcher(reg, cfg),
		live: make(map[registry.ClientID]*Client),
	}
}

// Registry exposes the shared tables.
func (co *Core) Registry() *registry.Registry {
	return co.reg
}

// LiveClients returns a snapshot of currently connected clients, for the
// idle reaper to walk.
func (co *Core) LiveClients() []*Client {
	co.liveMu.Lock()
	defer co.liveMu.Unlock()

	out := make([]*Client, 0, len(co.live))
	for _, c := range co.live {
		out = append(out, c)
	}
	return out
}

// Listen accepts connections on the given listener until it returns an
// error (including when the listener is closed by the caller to shut
// down).
func (co *Core) Listen(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}

		go co.handleConn(nc)
	}
}

func (co *Core) handleConn(nc net.Conn) {
	id := co.reg.AllocateClientID()
	c := newClient(id, nc, co.cfg.IOTimeout)
	co.reg.RegisterClient(id, c)

	co.liveMu.Lock()
	co.live[id] = c
	co.liveMu.Unlock()

	log.Printf("client %d: connected from %s", id, nc.RemoteAddr())

	done := make(chan struct{})
	go func() {
		c.writeLoop()
		close(done)
	}()

	c.readLoop(co.disp.Dispatch)

	<-done
	co.disp.BroadcastQuit(c, "Connection closed")
	co.reg.RemoveClient(id)

	co.liveMu.Lock()
	delete(co.live, id)
	co.liveMu.Unlock()

	log.Printf("client %d: disconnected", id)
}
