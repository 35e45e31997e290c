package mapcache

import (
	"slices"
	"sync"

	"github.com/go-mclib/imageonmap/pkg/mapimage"
	"github.com/sirupsen/logrus"
)

// Cache maps identifiers to decoded map buffers. Unknown identifiers resolve
// to the shared blank buffer.
type Cache struct {
	// Logger receives warnings about map files skipped during LoadAll.
	Logger logrus.FieldLogger

	mu     sync.RWMutex
	maps   map[mapimage.MapID]*mapimage.Buffer
	nextID mapimage.MapID
	// ids removed with Delete whose files SaveAll has not pruned yet
	deleted map[mapimage.MapID]struct{}
}

func New() *Cache {
	return &Cache{
		Logger: logrus.StandardLogger(),
		maps:    make(map[mapimage.MapID]*mapimage.Buffer),
		deleted: make(map[mapimage.MapID]struct{}),
	}
}

// Get returns the buffer cached under id, or the blank buffer.
func (c *Cache) Get(id mapimage.MapID) *mapimage.Buffer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if buf, ok := c.maps[id]; ok {
		return buf
	}
	return mapimage.Blank()
}

// Lookup returns the buffer cached under id without falling back.
func (c *Cache) Lookup(id mapimage.MapID) (*mapimage.Buffer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	buf, ok := c.maps[id]
	return buf, ok
}

func (c *Cache) Contains(id mapimage.MapID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.maps[id]
	return ok
}

// Put stores buf under id, replacing any previous buffer.
func (c *Cache) Put(id mapimage.MapID, buf *mapimage.Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maps[id] = buf
	delete(c.deleted, id)
	if id >= c.nextID {
		c.nextID = id + 1
	}
}

// Allocate stores buf under a fresh identifier and returns it.
func (c *Cache) Allocate(buf *mapimage.Buffer) mapimage.MapID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	for {
		if _, taken := c.maps[id]; !taken {
			break
		}
		id++
	}
	c.maps[id] = buf
	delete(c.deleted, id)
	c.nextID = id + 1
	return id
}

func (c *Cache) Delete(id mapimage.MapID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.maps[id]; ok {
		delete(c.maps, id)
		c.deleted[id] = struct{}{}
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.maps)
}

// IDs returns all cached identifiers in ascending order.
func (c *Cache) IDs() []mapimage.MapID {
	c.mu.RLock()
	ids := make([]mapimage.MapID, 0, len(c.maps))
	for id := range c.maps {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Bytes returns the total size of cached pixel data.
func (c *Cache) Bytes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, buf := range c.maps {
		n += buf.Len()
	}
	return n
}

// snapshot copies the cached maps and the ids deleted since the last save.
func (c *Cache) snapshot() (map[mapimage.MapID]*mapimage.Buffer, []mapimage.MapID) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[mapimage.MapID]*mapimage.Buffer, len(c.maps))
	for id, buf := range c.maps {
		out[id] = buf
	}
	deleted := make([]mapimage.MapID, 0, len(c.deleted))
	for id := range c.deleted {
		deleted = append(deleted, id)
	}
	return out, deleted
}

// pruned forgets deleted ids whose files are gone, unless they were cached
// again meanwhile.
func (c *Cache) pruned(ids []mapimage.MapID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.deleted, id)
	}
}

func (c *Cache) replace(maps map[mapimage.MapID]*mapimage.Buffer) {
	var next mapimage.MapID
	for id := range maps {
		if id >= next {
			next = id + 1
		}
	}
	c.mu.Lock()
	c.maps = maps
	c.nextID = next
	c.deleted = make(map[mapimage.MapID]struct{})
	c.mu.Unlock()
}
