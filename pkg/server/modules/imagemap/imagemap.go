package imagemap

import (
	"fmt"
	"os"

	"github.com/go-mclib/imageonmap/pkg/delivery"
	"github.com/go-mclib/imageonmap/pkg/imageloader"
	"github.com/go-mclib/imageonmap/pkg/mapcache"
	"github.com/go-mclib/imageonmap/pkg/mapimage"
	"github.com/go-mclib/imageonmap/pkg/server"
	jp "github.com/go-mclib/protocol/java_protocol"
)

const (
	ModuleName = "imagemap"
	Permission = "imageonmap.command"
)

// Module answers map info requests from the map cache and re-sends the
// answers a player received before it finished joining.
type Module struct {
	server *server.Server

	// CacheDir is where maps are loaded from on enable and saved to on
	// disable. Empty keeps maps in memory only.
	CacheDir string

	Cache   *mapcache.Cache
	Tracker *delivery.Tracker
	Loader  *imageloader.Loader

	onMapCreated []func(sender server.CommandSender, id mapimage.MapID, buf *mapimage.Buffer)
}

func New(cacheDir string, loader *imageloader.Loader) *Module {
	return &Module{
		CacheDir: cacheDir,
		Cache:    mapcache.New(),
		Tracker:  delivery.NewTracker(),
		Loader:   loader,
	}
}

func (m *Module) Name() string { return ModuleName }

func (m *Module) Init(s *server.Server) {
	m.server = s
	m.Cache.Logger = s.Logger
}

// Reset forgets readiness and queued packets. Cached maps are kept.
func (m *Module) Reset() {
	m.Tracker.Reset()
}

// From retrieves the imagemap module from a server.
func From(s *server.Server) *Module {
	mod := s.Module(ModuleName)
	if mod == nil {
		return nil
	}
	return mod.(*Module)
}

// events

// OnMapCreated registers a callback fired after a command created a map. The
// host uses it to hand the map item to the player.
func (m *Module) OnMapCreated(cb func(sender server.CommandSender, id mapimage.MapID, buf *mapimage.Buffer)) {
	m.onMapCreated = append(m.onMapCreated, cb)
}

// Enable loads the cached maps. A failure leaves the cache empty.
func (m *Module) Enable() error {
	if m.CacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(m.CacheDir, 0o755); err != nil {
		return fmt.Errorf("create map directory: %w", err)
	}
	if err := m.Cache.LoadAll(m.CacheDir); err != nil {
		return fmt.Errorf("load maps: %w", err)
	}
	m.server.Logger.Infof("loaded %d maps from %s", m.Cache.Len(), m.CacheDir)
	return nil
}

// Disable saves the cached maps.
func (m *Module) Disable() error {
	if m.CacheDir == "" {
		return nil
	}
	if err := m.Cache.SaveAll(m.CacheDir); err != nil {
		return fmt.Errorf("save maps: %w", err)
	}
	m.server.Logger.Infof("saved %d maps to %s", m.Cache.Len(), m.CacheDir)
	return nil
}

func (m *Module) HandlePacket(sess *server.Session, pkt *jp.WirePacket) {
	if pkt.PacketID != mapimage.MapInfoRequestID {
		return
	}
	id, err := mapimage.DecodeRequest(pkt)
	if err != nil {
		m.server.Logger.WithError(err).Warnf("dropping malformed map info request from %s", sess.Name())
		return
	}
	m.Serve(sess, id)
}

// Serve sends the map data for id to sess. Until sess has joined, the same
// packet is also queued so it can be sent again once the join completes.
func (m *Module) Serve(sess *server.Session, id mapimage.MapID) {
	resp := m.Cache.Get(id).BuildResponse(id)
	sess.SendPacket(resp)

	if !m.Cache.Contains(id) {
		m.server.Logger.WithField("player", sess.Name()).Debugf("unknown map id %d", id)
	}
	if m.Tracker.Hold(sess.Identity(), resp) {
		m.server.Logger.Debugf("queued map %d for %s until join", id, sess.Name())
	}
}

func (m *Module) OnJoin(sess *server.Session) {
	pkts := m.Tracker.Join(sess.Identity())
	for _, pkt := range pkts {
		sess.SendPacket(pkt)
	}
	if len(pkts) > 0 {
		m.server.Logger.Debugf("re-sent %d map packets to %s", len(pkts), sess.Name())
	}
}

func (m *Module) OnQuit(sess *server.Session) {
	if n := m.Tracker.Quit(sess.Identity()); n > 0 {
		m.server.Logger.Infof("discarded %d pending map packets of %s", n, sess.Name())
	}
}
