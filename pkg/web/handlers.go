package web

import (
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-mclib/imageonmap/pkg/delivery"
	"github.com/go-mclib/imageonmap/pkg/mapcache"
	"github.com/go-mclib/imageonmap/pkg/mapimage"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/nfnt/resize"
	"github.com/sirupsen/logrus"
)

// MaxScale bounds the preview upscale factor.
const MaxScale = 8

type Handler struct {
	cache   *mapcache.Cache
	tracker *delivery.Tracker
	logger  logrus.FieldLogger
}

// MapInfo describes one cached map in the /maps listing.
type MapInfo struct {
	ID       mapimage.MapID `json:"id"`
	Source   string         `json:"source,omitempty"`
	CropSize int            `json:"crop_size"`
	X        int            `json:"x"`
	Y        int            `json:"y"`
	Bytes    int            `json:"bytes"`
	Size     string         `json:"size"`
}

// NewHandler constructs the admin handler over the map cache and the
// delivery tracker.
func NewHandler(cache *mapcache.Cache, tracker *delivery.Tracker, logger logrus.FieldLogger) *Handler {
	return &Handler{cache: cache, tracker: tracker, logger: logger}
}

func (h *Handler) mapsHandler(w http.ResponseWriter, r *http.Request) {
	infos := []MapInfo{}
	for _, id := range h.cache.IDs() {
		buf, ok := h.cache.Lookup(id)
		if !ok {
			continue // deleted since IDs()
		}
		crop := buf.Meta().Crop
		infos = append(infos, MapInfo{
			ID:       id,
			Source:   crop.Source,
			CropSize: crop.Size,
			X:        crop.X,
			Y:        crop.Y,
			Bytes:    buf.Len(),
			Size:     humanize.Bytes(uint64(buf.Len())),
		})
	}
	h.writeJSON(w, infos)
}

func (h *Handler) mapPNGHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		http.Error(w, "id not a number", http.StatusBadRequest)
		return
	}

	scale := 1
	if s := r.URL.Query().Get("scale"); s != "" {
		scale, err = strconv.Atoi(s)
		if err != nil || scale < 1 || scale > MaxScale {
			http.Error(w, "scale must be between 1 and "+strconv.Itoa(MaxScale), http.StatusBadRequest)
			return
		}
	}

	buf, ok := h.cache.Lookup(mapimage.MapID(id))
	if !ok {
		http.Error(w, "map not found", http.StatusNotFound)
		return
	}

	img := buf.Image()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if scale > 1 {
		err = png.Encode(w, resize.Resize(uint(buf.Width()*scale), uint(buf.Height()*scale), img, resize.NearestNeighbor))
	} else {
		err = png.Encode(w, img)
	}
	if err != nil {
		h.logger.WithError(err).Warnf("writing preview of map %d", id)
	}
}

func (h *Handler) pendingHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.tracker.Stats())
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		h.logger.WithError(err).Warn("writing json response")
	}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/maps", h.mapsHandler).Methods(http.MethodGet)
	r.HandleFunc("/maps/{id:[0-9]+}.png", h.mapPNGHandler).Methods(http.MethodGet)
	r.HandleFunc("/pending", h.pendingHandler).Methods(http.MethodGet)
}

// Router returns the admin routes wrapped in request logging written to
// accessLog and panic recovery.
func (h *Handler) Router(accessLog io.Writer) http.Handler {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return handlers.RecoveryHandler()(handlers.CombinedLoggingHandler(accessLog, r))
}
