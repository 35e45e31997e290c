package helpers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-mclib/imageonmap/pkg/config"
	"github.com/go-mclib/imageonmap/pkg/server/modules/imagemap"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestOverrides(t *testing.T) {
	tests := []struct {
		flags Flags
		want  map[string]any
	}{
		{Flags{}, map[string]any{}},
		{Flags{DataDir: "/d", Verbose: true}, map[string]any{"data_dir": "/d", "log_level": "debug"}},
		{Flags{HTTPAddr: ":80", Interactive: true}, map[string]any{"http_addr": ":80", "interactive": true}},
	}
	for _, tt := range tests {
		got := tt.flags.Overrides()
		if len(got) != len(tt.want) {
			t.Errorf("%+v.Overrides() = %v, want %v", tt.flags, got, tt.want)
			continue
		}
		for k, v := range tt.want {
			if got[k] != v {
				t.Errorf("%+v.Overrides()[%s] = %v, want %v", tt.flags, k, got[k], v)
			}
		}
	}
}

func TestNewServerAndRun(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:             dir,
		CacheDir:            filepath.Join(dir, "maps"),
		ImagesDir:           filepath.Join(dir, "images"),
		RetainPendingOnQuit: true,
		SendQueueSize:       8,
		SourceCacheMB:       1,
	}
	logger, _ := test.NewNullLogger()

	s, err := NewServer(cfg, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	m := imagemap.From(s)
	if m == nil || !m.Tracker.RetainOnQuit || m.CacheDir != cfg.CacheDir {
		t.Fatalf("imagemap module not configured: %+v", m)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Run(ctx, s, "") }()

	if err := s.Do(func() {}); err != nil {
		t.Fatal(err)
	}
	s.Shutdown()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v", err)
	}
}
