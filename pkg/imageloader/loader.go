package imageloader

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-mclib/imageonmap/pkg/mapimage"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	ErrImageNotFound = errors.New("image not found")
	ErrInvalidCrop   = errors.New("invalid crop parameters")
)

// Extensions lists the source image formats, in lookup order.
var Extensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".webp"}

// Crop selects tile (X, Y) of an image split into a Size×Size grid.
type Crop struct {
	Size int
	X, Y int
}

// Validate checks Size >= 1 and 0 <= X, Y < Size.
func (c Crop) Validate() error {
	if c.Size < 1 {
		return errors.Wrapf(ErrInvalidCrop, "crop size %d is lower than 1", c.Size)
	}
	if c.X < 0 || c.Y < 0 || c.X >= c.Size || c.Y >= c.Size {
		return errors.Wrapf(ErrInvalidCrop, "no tile at %d:%d with crop size %d", c.X, c.Y, c.Size)
	}
	return nil
}

// Loader turns source images from a directory into map buffers. Decoded
// source images are kept in a cost-bounded cache keyed by path.
type Loader struct {
	Dir string

	decoded *ristretto.Cache[string, image.Image]
}

// New creates a loader for dir that keeps up to cacheBytes of decoded
// source pixels in memory.
func New(dir string, cacheBytes int64) (*Loader, error) {
	if cacheBytes <= 0 {
		cacheBytes = 64 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, image.Image]{
		NumCounters: 1000,
		MaxCost:     cacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create decoded image cache")
	}
	return &Loader{Dir: dir, decoded: cache}, nil
}

// Close releases the decoded image cache.
func (l *Loader) Close() {
	l.decoded.Close()
}

// List returns the names of available images without extension, sorted.
func (l *Loader) List() ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", l.Dir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if slices.Contains(Extensions, ext) {
			names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// Resolve maps an image name, with or without extension, to a file name in
// the image directory.
func (l *Loader) Resolve(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", errors.Wrapf(ErrImageNotFound, "image %q", name)
	}
	if slices.Contains(Extensions, strings.ToLower(filepath.Ext(name))) {
		if isFile(filepath.Join(l.Dir, name)) {
			return name, nil
		}
		return "", errors.Wrapf(ErrImageNotFound, "image %q", name)
	}
	for _, ext := range Extensions {
		if isFile(filepath.Join(l.Dir, name+ext)) {
			return name + ext, nil
		}
	}
	return "", errors.Wrapf(ErrImageNotFound, "image %q", name)
}

// Load produces the map buffer for one tile of the named image.
func (l *Loader) Load(name string, crop Crop) (*mapimage.Buffer, error) {
	if err := crop.Validate(); err != nil {
		return nil, err
	}
	file, err := l.Resolve(name)
	if err != nil {
		return nil, err
	}
	src, err := l.decode(filepath.Join(l.Dir, file))
	if err != nil {
		return nil, err
	}

	tile := Tile(src, crop)
	if tile.Bounds().Empty() {
		return nil, errors.Wrapf(ErrInvalidCrop, "image %s is too small for crop size %d", file, crop.Size)
	}
	scaled := resize.Resize(mapimage.Width, mapimage.Height, tile, resize.Lanczos3)
	return mapimage.New(scaled, mapimage.Meta{
		Crop: mapimage.Crop{
			Source: file,
			Size:   crop.Size,
			X:      crop.X,
			Y:      crop.Y,
		},
		Locked: true,
	}), nil
}

// Tile returns the sub image of src selected by crop. Column X counts from
// the left edge, row Y from the top.
func Tile(src image.Image, crop Crop) image.Image {
	b := src.Bounds()
	r := image.Rect(
		b.Min.X+b.Dx()*crop.X/crop.Size,
		b.Min.Y+b.Dy()*crop.Y/crop.Size,
		b.Min.X+b.Dx()*(crop.X+1)/crop.Size,
		b.Min.Y+b.Dy()*(crop.Y+1)/crop.Size,
	)
	if si, ok := src.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return si.SubImage(r)
	}
	return &subImage{Image: src, r: r}
}

type subImage struct {
	image.Image
	r image.Rectangle
}

func (s *subImage) Bounds() image.Rectangle { return s.r }

func (l *Loader) decode(path string) (image.Image, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	// a replaced file gets a new key
	key := fmt.Sprintf("%s|%d|%d", path, st.Size(), st.ModTime().UnixNano())
	if img, ok := l.decoded.Get(key); ok {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}

	b := img.Bounds()
	l.decoded.Set(key, img, int64(b.Dx())*int64(b.Dy())*4)
	l.decoded.Wait()
	return img, nil
}

func isFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
