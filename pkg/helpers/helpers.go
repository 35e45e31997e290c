package helpers

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-mclib/imageonmap/pkg/config"
	"github.com/go-mclib/imageonmap/pkg/imageloader"
	"github.com/go-mclib/imageonmap/pkg/server"
	"github.com/go-mclib/imageonmap/pkg/server/modules/imagemap"
	"github.com/go-mclib/imageonmap/pkg/web"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Flags holds the CLI flags. Flags left at their zero value do not override
// the config file or environment.
type Flags struct {
	ConfigFile  string
	DataDir     string
	HTTPAddr    string
	Verbose     bool
	Interactive bool
}

// RegisterFlags registers the standard CLI flags on the default flag set.
func RegisterFlags(f *Flags) {
	flag.StringVar(&f.ConfigFile, "c", "", "config file (default: imageonmap.yaml if present)")
	flag.StringVar(&f.DataDir, "d", "", "data directory holding maps/ and images/")
	flag.StringVar(&f.HTTPAddr, "http", "", "admin http listen address (empty = config value)")
	flag.BoolVar(&f.Verbose, "v", false, "verbose logging")
	flag.BoolVar(&f.Interactive, "i", false, "enable the interactive console")
}

// Overrides returns the config keys set by f.
func (f Flags) Overrides() map[string]any {
	o := make(map[string]any)
	if f.DataDir != "" {
		o["data_dir"] = f.DataDir
	}
	if f.HTTPAddr != "" {
		o["http_addr"] = f.HTTPAddr
	}
	if f.Verbose {
		o["log_level"] = "debug"
	}
	if f.Interactive {
		o["interactive"] = true
	}
	return o
}

// NewServer creates a server from cfg with the imagemap module registered.
// logFile may be nil.
func NewServer(cfg *config.Config, logger *logrus.Logger, logFile io.Writer) (*server.Server, error) {
	if err := os.MkdirAll(cfg.ImagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create images directory: %w", err)
	}
	loader, err := imageloader.New(cfg.ImagesDir, cfg.SourceCacheMB<<20)
	if err != nil {
		return nil, err
	}

	s := server.New("imageonmap")
	s.Logger = logger
	s.LogFile = logFile
	s.Address = cfg.HTTPAddr
	s.Interactive = cfg.Interactive
	s.MaxLogLines = cfg.MaxLogLines
	s.SendQueueSize = cfg.SendQueueSize

	m := imagemap.New(cfg.CacheDir, loader)
	m.Tracker.RetainOnQuit = cfg.RetainPendingOnQuit
	s.Register(m)
	return s, nil
}

// Run serves s, plus the admin web when httpAddr is set, until ctx is done or
// the console is closed.
func Run(ctx context.Context, s *server.Server, httpAddr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if m := imagemap.From(s); m != nil && m.Loader != nil {
		defer m.Loader.Close()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.Run(ctx)
	})
	if httpAddr != "" {
		m := imagemap.From(s)
		h := web.NewHandler(m.Cache, m.Tracker, s.Logger)
		g.Go(func() error {
			return web.Serve(ctx, httpAddr, h, s.Logger)
		})
	}
	return g.Wait()
}
