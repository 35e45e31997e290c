package mapcache

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/go-mclib/imageonmap/pkg/mapimage"
	"github.com/pkg/errors"
	"github.com/remeh/sizedwaitgroup"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

const (
	manifestName    = "maps.json"
	manifestVersion = 1
	mapExt          = ".png"
)

// ErrAccessDenied matches every error caused by the backing directory or one
// of its files being unreadable, unwritable or missing.
var ErrAccessDenied = errors.New("target file could not be accessed")

// AccessError records the operation and path that could not be accessed.
type AccessError struct {
	Op   string
	Path string
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

func (e *AccessError) Is(target error) bool { return target == ErrAccessDenied }

type manifest struct {
	Version int                      `json:"version"`
	Maps    map[string]mapimage.Meta `json:"maps"`
}

// LoadAll replaces the cache contents with the maps stored in dir. On error
// the cache is left untouched. Map files that fail to decode are skipped.
func (c *Cache) LoadAll(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return &AccessError{Op: "load", Path: dir, Err: err}
	}

	metas, err := readManifest(dir)
	if err != nil {
		return err
	}

	var (
		mu        sync.Mutex
		maps      = make(map[mapimage.MapID]*mapimage.Buffer)
		accessErr error
	)
	wg := sizedwaitgroup.New(runtime.NumCPU())
	for _, e := range entries {
		name := e.Name()
		id, ok := parseMapFile(name)
		if e.IsDir() || !ok {
			continue
		}
		meta, ok := metas[strconv.FormatUint(uint64(id), 10)]
		if !ok {
			meta = mapimage.Meta{Crop: mapimage.FullImage, Locked: true}
		}

		wg.Add()
		go func() {
			defer wg.Done()
			buf, err := readMap(filepath.Join(dir, name), meta)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				maps[id] = buf
			case errors.Is(err, ErrAccessDenied):
				if accessErr == nil {
					accessErr = err
				}
			default:
				c.Logger.WithError(err).Warnf("skipping cached map %s", name)
			}
		}()
	}
	wg.Wait()

	if accessErr != nil {
		return accessErr
	}
	c.replace(maps)
	return nil
}

// SaveAll writes every cached map into dir and removes the files of maps
// removed with Delete. Other map files already in dir are left in place with
// their manifest entries, so a save after a failed LoadAll loses nothing.
func (c *Cache) SaveAll(dir string) error {
	snap, deleted := c.snapshot()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &AccessError{Op: "save", Path: dir, Err: err}
	}

	prev, err := readManifest(dir)
	if err != nil {
		return err
	}
	m := manifest{Version: manifestVersion, Maps: make(map[string]mapimage.Meta, len(snap))}
	for key, meta := range prev {
		id, err := strconv.ParseUint(key, 10, 32)
		if err != nil || slices.Contains(deleted, mapimage.MapID(id)) {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, mapFileName(mapimage.MapID(id)))); err == nil {
			m.Maps[key] = meta
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for id, buf := range snap {
		m.Maps[strconv.FormatUint(uint64(id), 10)] = buf.Meta()
		g.Go(func() error {
			return writeMap(dir, id, buf)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	if err := writeAtomic(dir, manifestName, data); err != nil {
		return err
	}

	if err := prune(dir, deleted, snap); err != nil {
		return err
	}
	c.pruned(deleted)
	return nil
}

func parseMapFile(name string) (mapimage.MapID, bool) {
	if !strings.HasSuffix(name, mapExt) {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSuffix(name, mapExt), 10, 32)
	if err != nil {
		return 0, false
	}
	return mapimage.MapID(n), true
}

func mapFileName(id mapimage.MapID) string {
	return strconv.FormatUint(uint64(id), 10) + mapExt
}

func readManifest(dir string) (map[string]mapimage.Meta, error) {
	path := filepath.Join(dir, manifestName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &AccessError{Op: "load", Path: path, Err: err}
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		// metadata is optional, pixels still load with defaults
		return nil, nil
	}
	return m.Maps, nil
}

func readMap(path string, meta mapimage.Meta) (*mapimage.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &AccessError{Op: "load", Path: path, Err: err}
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}

	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || b.Min != (image.Point{}) || nrgba.Stride != b.Dx()*4 {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	return mapimage.FromPixels(b.Dx(), b.Dy(), nrgba.Pix, meta)
}

func writeMap(dir string, id mapimage.MapID, buf *mapimage.Buffer) error {
	f, err := os.CreateTemp(dir, ".map-*.tmp")
	if err != nil {
		return &AccessError{Op: "save", Path: dir, Err: err}
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := png.Encode(f, buf.Image()); err != nil {
		f.Close()
		return errors.Wrapf(err, "encode map %d", id)
	}
	if err := f.Close(); err != nil {
		return &AccessError{Op: "save", Path: tmp, Err: err}
	}
	path := filepath.Join(dir, mapFileName(id))
	if err := os.Rename(tmp, path); err != nil {
		return &AccessError{Op: "save", Path: path, Err: err}
	}
	return nil
}

func writeAtomic(dir, name string, data []byte) error {
	f, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return &AccessError{Op: "save", Path: dir, Err: err}
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return &AccessError{Op: "save", Path: tmp, Err: err}
	}
	if err := f.Close(); err != nil {
		return &AccessError{Op: "save", Path: tmp, Err: err}
	}
	path := filepath.Join(dir, name)
	if err := os.Rename(tmp, path); err != nil {
		return &AccessError{Op: "save", Path: path, Err: err}
	}
	return nil
}

func prune(dir string, deleted []mapimage.MapID, keep map[mapimage.MapID]*mapimage.Buffer) error {
	for _, id := range deleted {
		if _, cached := keep[id]; cached {
			continue
		}
		path := filepath.Join(dir, mapFileName(id))
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &AccessError{Op: "save", Path: path, Err: err}
		}
	}
	return nil
}
