// Package hub implements the server tick loop and broadcast fan-out:
// the accept loop, the client roster, the per-tick echo/broadcast
// ordering guarantee, and the save and heartbeat cadences, per §4.4.
package hub

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blockhost/classicd/internal/config"
	"github.com/blockhost/classicd/internal/heartbeat"
	"github.com/blockhost/classicd/internal/protocol"
	"github.com/blockhost/classicd/internal/session"
	"github.com/blockhost/classicd/internal/world"
)

// TickInterval is the cadence at which the Hub advances every Session.
const TickInterval = 50 * time.Millisecond

// TickWarnThreshold is the elapsed-time threshold above which a tick
// logs a warning, per §4.4.
const TickWarnThreshold = 250 * time.Millisecond

const saltAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Hub owns the TCP listener, the roster of connected Sessions, and the
// goroutines driving ticks, world saves, and heartbeats.
type Hub struct {
	cfg     config.Config
	world   *world.World
	log     *logrus.Logger
	clients []heartbeat.Client
	saveDir string
	salt    string

	listener net.Listener

	mu      sync.RWMutex
	roster  []*session.Session
	usedIDs [255]bool

	dirty   atomic.Bool
	running atomic.Bool
}

// New constructs a Hub. clients may be empty if no heartbeat targets
// are enabled.
func New(cfg config.Config, w *world.World, log *logrus.Logger, clients []heartbeat.Client, saveDir, salt string) *Hub {
	h := &Hub{
		cfg:     cfg,
		world:   w,
		log:     log,
		clients: clients,
		saveDir: saveDir,
		salt:    salt,
	}
	h.running.Store(true)
	return h
}

// GenerateSalt builds the 16-character alphanumeric online-mode salt
// described in §4.3. It is exported so the CLI entrypoint can mint the
// same salt value shared with a Mojang heartbeat client.
func GenerateSalt() string {
	b := make([]byte, 16)
	for i := range b {
		b[i] = saltAlphabet[rand.Intn(len(saltAlphabet))]
	}
	return string(b)
}

// Salt returns the server's online-mode salt, for wiring into a
// Mojang heartbeat client which must report the same value.
func (h *Hub) Salt() string { return h.salt }

// Running reports whether the Hub's loops are still active; it flips
// to false as soon as Run's context is cancelled, ahead of the
// shutdown sequence completing.
func (h *Hub) Running() bool { return h.running.Load() }

func (h *Hub) identity() session.Identity {
	return session.Identity{
		ServerName: h.cfg.Server.Name,
		MOTD:       h.cfg.Server.MOTD,
		OnlineMode: h.cfg.Server.OnlineMode,
		Salt:       h.salt,
	}
}

// Listen binds the TCP socket described by the Hub's config.
func (h *Hub) Listen() error {
	addr := fmt.Sprintf("%s:%d", h.cfg.Server.LocalIP, h.cfg.Server.Port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("hub: listen %s: %w", addr, err)
	}
	h.listener = l
	h.log.WithField("addr", addr).Info("listening")
	return nil
}

// Run starts the accept loop, tick loop, save cadence, and heartbeat
// cadence, and blocks until ctx is cancelled, at which point it
// performs the graceful shutdown sequence described in §4.4.
func (h *Hub) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.acceptLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.tickLoop(ctx)
	}()

	if h.cfg.Server.SaveInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.saveLoop(ctx)
		}()
	}

	if h.cfg.Heartbeat.Enabled && len(h.clients) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.heartbeatLoop(ctx)
		}()
	}

	<-ctx.Done()
	h.running.Store(false)
	_ = h.listener.Close()
	wg.Wait()

	h.shutdown()
	return nil
}

func (h *Hub) acceptLoop(ctx context.Context) {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.log.WithError(err).Error("accept")
			continue
		}
		go h.onConnect(conn)
	}
}

func (h *Hub) onConnect(conn net.Conn) {
	s := session.New(conn, 0, h.world, h.log, h.identity())
	if err := s.Bootstrap(); err != nil {
		h.log.WithError(err).WithField("remote", conn.RemoteAddr()).Debug("session bootstrap failed")
		return
	}

	if h.atCapacity() {
		_ = s.SendDirect(protocol.DisconnectPlayer("Server is full"))
		_ = s.Close()
		return
	}

	id, ok := h.assignID()
	if !ok {
		_ = s.SendDirect(protocol.DisconnectPlayer("Server is full"))
		_ = s.Close()
		return
	}
	s.ID = id
	s.StartReader()

	h.mu.Lock()
	existing := append([]*session.Session(nil), h.roster...)
	h.roster = append(h.roster, s)
	h.mu.Unlock()

	for _, other := range existing {
		_ = s.SendDirect(protocol.SpawnPlayer(other.ID, other.Username, other.X, other.Y, other.Z, other.Yaw, other.Pitch))
	}

	spawn := protocol.SpawnPlayer(s.ID, s.Username, s.X, s.Y, s.Z, s.Yaw, s.Pitch)
	join := protocol.Message(protocol.SelfID, s.Username+" joined the Server")
	for _, other := range existing {
		if err := other.SendDirect(spawn, join); err != nil {
			h.log.WithError(err).WithField("session", other.ID).Debug("join announcement failed")
		}
	}

	h.dirty.Store(true)
	h.log.WithFields(logrus.Fields{"session": s.ID, "username": s.Username}).Info("player joined")
}

// atCapacity reports whether the roster already holds server.max_players
// connected sessions, per §6's max_players config value.
func (h *Hub) atCapacity() bool {
	if h.cfg.Server.MaxPlayers <= 0 {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.roster) >= h.cfg.Server.MaxPlayers
}

// assignID picks the lowest unused byte id, never 0xFF.
func (h *Hub) assignID() (byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := 0; i < len(h.usedIDs); i++ {
		if byte(i) == protocol.SelfID {
			continue
		}
		if !h.usedIDs[i] {
			h.usedIDs[i] = true
			return byte(i), true
		}
	}
	return 0, false
}

func (h *Hub) releaseID(id byte) {
	if int(id) < len(h.usedIDs) {
		h.usedIDs[id] = false
	}
}

// broadcastEntry is one packet produced during a tick, tagged with the
// originating Session's id so the Hub can exclude it from that
// Session's own delivery.
type broadcastEntry struct {
	originID byte
	pkt      *protocol.Packet
}

func (h *Hub) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

// tick advances every Session in roster order exactly once, per §5's
// ordering guarantee, then fans out the round's broadcast packets to
// every Session except each packet's originator.
func (h *Hub) tick() {
	start := time.Now()

	h.mu.RLock()
	snapshot := append([]*session.Session(nil), h.roster...)
	h.mu.RUnlock()

	var round []broadcastEntry
	var departed []*session.Session

	for _, s := range snapshot {
		res := s.Advance()
		if res.Fatal {
			h.log.WithError(res.Err).WithField("session", s.ID).Fatal("fatal session I/O error")
		}
		if res.Terminated {
			departed = append(departed, s)
			continue
		}
		for _, p := range res.Broadcast {
			round = append(round, broadcastEntry{originID: s.ID, pkt: p})
		}
	}

	for _, s := range departed {
		if s.Username != "" {
			round = append(round, broadcastEntry{originID: s.ID, pkt: protocol.DespawnPlayer(s.ID)})
			round = append(round, broadcastEntry{originID: s.ID, pkt: protocol.Message(protocol.SelfID, s.Username+" left the Server")})
		}
		_ = s.Close()
	}

	if len(departed) > 0 {
		h.mu.Lock()
		h.roster = removeAll(h.roster, departed)
		for _, s := range departed {
			h.releaseID(s.ID)
		}
		h.mu.Unlock()
		h.dirty.Store(true)

		h.mu.RLock()
		snapshot = append([]*session.Session(nil), h.roster...)
		h.mu.RUnlock()
	}

	if len(round) > 0 {
		for _, s := range snapshot {
			var toDeliver []*protocol.Packet
			for _, e := range round {
				if e.originID != s.ID {
					toDeliver = append(toDeliver, e.pkt)
				}
			}
			if len(toDeliver) > 0 {
				if err := s.SendDirect(toDeliver...); err != nil {
					h.log.WithError(err).WithField("session", s.ID).Debug("broadcast delivery failed")
				}
			}
		}
	}

	if elapsed := time.Since(start); elapsed > TickWarnThreshold {
		h.log.WithField("elapsed", elapsed).Warn("tick exceeded threshold")
	}
}

// removeAll returns roster with every Session in departed filtered
// out, never mutating roster in place while it is being ranged (the
// collect-then-remove pattern).
func removeAll(roster, departed []*session.Session) []*session.Session {
	skip := make(map[*session.Session]bool, len(departed))
	for _, s := range departed {
		skip[s] = true
	}
	out := make([]*session.Session, 0, len(roster))
	for _, s := range roster {
		if !skip[s] {
			out = append(out, s)
		}
	}
	return out
}

func (h *Hub) saveLoop(ctx context.Context) {
	interval := time.Duration(h.cfg.Server.SaveInterval) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.save()
		}
	}
}

func (h *Hub) save() {
	h.announce("Saving World..")
	if err := h.world.SaveToDisk(h.saveDir); err != nil {
		h.log.WithError(err).Error("world save failed")
		return
	}
	h.announce("Saving Complete")
}

// announce broadcasts a Console chat line (sender id 0xFF, text
// prefixed "<Console>: ") to every currently connected Session.
func (h *Hub) announce(text string) {
	h.mu.RLock()
	snapshot := append([]*session.Session(nil), h.roster...)
	h.mu.RUnlock()

	pkt := protocol.Message(protocol.SelfID, fmt.Sprintf("<%s>: %s", protocol.ConsoleName, text))
	for _, s := range snapshot {
		_ = s.SendDirect(pkt)
	}
}

// dirtyPollInterval is how often the heartbeat loop checks the dirty
// flag between its regular Cadence beats, so a roster change triggers
// an extra beat promptly rather than waiting out the full Cadence.
const dirtyPollInterval = 1 * time.Second

func (h *Hub) heartbeatLoop(ctx context.Context) {
	cadence := time.NewTicker(heartbeat.Cadence)
	defer cadence.Stop()
	poll := time.NewTicker(dirtyPollInterval)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-cadence.C:
			h.beatAll()
		case <-poll.C:
			if h.dirty.CompareAndSwap(true, false) {
				h.beatAll()
			}
		}
	}
}

func (h *Hub) beatAll() {
	status := h.status()
	for _, c := range h.clients {
		c.Build(status)
		if err := c.Beat(); err != nil {
			h.log.WithError(err).Warn("heartbeat failed")
		}
	}
}

func (h *Hub) status() heartbeat.Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.roster))
	for _, s := range h.roster {
		if s.LoggedIn {
			names = append(names, s.Username)
		}
	}
	return heartbeat.Status{
		Name:       h.cfg.Server.Name,
		MOTD:       h.cfg.Server.MOTD,
		Port:       h.cfg.Server.Port,
		Public:     h.cfg.Server.Public,
		OnlineMode: h.cfg.Server.OnlineMode,
		Players:    len(names),
		MaxPlayers: h.cfg.Server.MaxPlayers,
		Names:      names,
	}
}

// shutdown disconnects every Session, saves the world, and deregisters
// from every heartbeat target, per §4.4's shutdown sequence.
func (h *Hub) shutdown() {
	h.mu.Lock()
	snapshot := append([]*session.Session(nil), h.roster...)
	h.roster = nil
	h.mu.Unlock()

	for _, s := range snapshot {
		_ = s.SendDirect(protocol.DisconnectPlayer("Server shutting down"))
		_ = s.Close()
	}

	if err := h.world.SaveToDisk(h.saveDir); err != nil {
		h.log.WithError(err).Error("final world save failed")
	}

	for _, c := range h.clients {
		if err := c.Delete(); err != nil {
			h.log.WithError(err).Warn("heartbeat deregistration failed")
		}
	}

	h.log.Info("shutdown complete")
}
