package mapcache

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/go-mclib/imageonmap/pkg/mapimage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func solid(c color.NRGBA) *mapimage.Buffer {
	img := image.NewNRGBA(image.Rect(0, 0, mapimage.Width, mapimage.Height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return mapimage.New(img, mapimage.Meta{Crop: mapimage.FullImage, Locked: true})
}

func TestGetUnknownReturnsBlank(t *testing.T) {
	c := New()
	for _, id := range []mapimage.MapID{0, 7, 1 << 31} {
		if got := c.Get(id); got != mapimage.Blank() {
			t.Errorf("Get(%d) did not return the blank buffer", id)
		}
		if c.Contains(id) {
			t.Errorf("Contains(%d) = true on empty cache", id)
		}
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after lookups, want 0", c.Len())
	}
}

func TestPutGet(t *testing.T) {
	c := New()
	a := solid(color.NRGBA{R: 255, A: 255})
	b := solid(color.NRGBA{G: 255, A: 255})

	c.Put(7, a)
	if got := c.Get(7); got != a {
		t.Error("Get(7) did not return the stored buffer")
	}
	if !c.Contains(7) {
		t.Error("Contains(7) = false after Put")
	}

	c.Put(7, b)
	if got := c.Get(7); got != b {
		t.Error("Get(7) did not return the overwriting buffer")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestAllocate(t *testing.T) {
	c := New()
	buf := solid(color.NRGBA{B: 255, A: 255})

	if id := c.Allocate(buf); id != 0 {
		t.Errorf("first Allocate = %d, want 0", id)
	}
	c.Put(10, buf)
	if id := c.Allocate(buf); id != 11 {
		t.Errorf("Allocate after Put(10) = %d, want 11", id)
	}
	if got := c.IDs(); len(got) != 3 || got[0] != 0 || got[1] != 10 || got[2] != 11 {
		t.Errorf("IDs() = %v, want [0 10 11]", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	src := New()
	translucent := solid(color.NRGBA{R: 10, G: 20, B: 30, A: 128})
	opaque := solid(color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	cropped := mapimage.New(translucent.Image(), mapimage.Meta{
		Crop:   mapimage.Crop{Source: "myimage.png", Size: 2, X: 1, Y: 0},
		Locked: true,
	})
	src.Put(1, translucent)
	src.Put(2, opaque)
	src.Put(500, cropped)
	src.Put(3, mapimage.Blank())

	if err := src.SaveAll(dir); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	dst := New()
	if err := dst.LoadAll(dir); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	if got, want := dst.IDs(), src.IDs(); len(got) != len(want) {
		t.Fatalf("IDs() = %v, want %v", got, want)
	}
	for _, id := range src.IDs() {
		want := src.Get(id)
		got, ok := dst.Lookup(id)
		if !ok {
			t.Errorf("map %d missing after load", id)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("map %d pixels differ after round trip", id)
		}
		if got.Meta() != want.Meta() {
			t.Errorf("map %d meta = %+v, want %+v", id, got.Meta(), want.Meta())
		}
	}
}

func TestSavePrunesDeletedMaps(t *testing.T) {
	dir := t.TempDir()
	c := New()
	c.Put(1, solid(color.NRGBA{A: 255}))
	c.Put(2, solid(color.NRGBA{A: 255}))
	if err := c.SaveAll(dir); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	c.Delete(2)
	if err := c.SaveAll(dir); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "2.png")); !os.IsNotExist(err) {
		t.Errorf("2.png still present after delete + save (err=%v)", err)
	}

	reloaded := New()
	if err := reloaded.LoadAll(dir); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if reloaded.Contains(2) || !reloaded.Contains(1) {
		t.Errorf("IDs() after reload = %v, want [1]", reloaded.IDs())
	}
}

func TestLoadMissingDirKeepsState(t *testing.T) {
	c := New()
	buf := solid(color.NRGBA{A: 255})
	c.Put(4, buf)

	err := c.LoadAll(filepath.Join(t.TempDir(), "does-not-exist"))
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("LoadAll(missing) = %v, want ErrAccessDenied", err)
	}
	if c.Get(4) != buf {
		t.Error("cache contents changed after failed load")
	}
}

func TestSaveUnwritableDir(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	parent := t.TempDir()
	if err := os.Chmod(parent, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(parent, 0o700) })

	c := New()
	c.Put(1, solid(color.NRGBA{A: 255}))
	err := c.SaveAll(filepath.Join(parent, "data"))
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("SaveAll(unwritable) = %v, want ErrAccessDenied", err)
	}
}

func TestLoadSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	c := New()
	c.Put(1, solid(color.NRGBA{R: 9, A: 255}))
	if err := c.SaveAll(dir); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "2.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	logger, hook := test.NewNullLogger()
	loaded := New()
	loaded.Logger = logger
	if err := loaded.LoadAll(dir); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if !loaded.Contains(1) || loaded.Contains(2) {
		t.Errorf("IDs() = %v, want [1]", loaded.IDs())
	}
	if e := hook.LastEntry(); e == nil || e.Level != logrus.WarnLevel {
		t.Errorf("expected a warning for the corrupt file, got %v", e)
	}
}

func TestSaveAfterFailedLoadKeepsStoredMaps(t *testing.T) {
	dir := t.TempDir()
	stored := New()
	one := mapimage.New(solid(color.NRGBA{R: 1, A: 255}).Image(), mapimage.Meta{
		Crop: mapimage.Crop{Source: "cat.png", Size: 2, X: 1}, Locked: true,
	})
	stored.Put(1, one)
	stored.Put(2, solid(color.NRGBA{G: 2, A: 255}))
	if err := stored.SaveAll(dir); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	// a dangling map file makes the whole load fail
	dangling := filepath.Join(dir, "9.png")
	if err := os.Symlink(filepath.Join(dir, "nowhere"), dangling); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	c := New()
	if err := c.LoadAll(dir); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("LoadAll = %v, want ErrAccessDenied", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after failed load, want 0", c.Len())
	}
	c.Put(5, solid(color.NRGBA{B: 5, A: 255}))
	if err := c.SaveAll(dir); err != nil {
		t.Fatalf("SaveAll after failed load: %v", err)
	}

	for _, name := range []string{"1.png", "2.png", "5.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s after save: %v", name, err)
		}
	}

	if err := os.Remove(dangling); err != nil {
		t.Fatal(err)
	}
	reloaded := New()
	if err := reloaded.LoadAll(dir); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if got := reloaded.IDs(); len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 5 {
		t.Fatalf("IDs() = %v, want [1 2 5]", got)
	}
	got, _ := reloaded.Lookup(1)
	if !got.Equal(one) || got.Meta() != one.Meta() {
		t.Errorf("map 1 = meta %+v, want %+v with identical pixels", got.Meta(), one.Meta())
	}
}

func TestDeleteThenPutIsNotPruned(t *testing.T) {
	dir := t.TempDir()
	c := New()
	c.Put(3, solid(color.NRGBA{A: 255}))
	c.Delete(3)
	c.Put(3, solid(color.NRGBA{R: 9, A: 255}))
	if err := c.SaveAll(dir); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "3.png")); err != nil {
		t.Errorf("3.png missing after delete, put and save: %v", err)
	}
}
