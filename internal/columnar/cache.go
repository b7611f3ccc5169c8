package columnar

import (
	"container/list"
	"sync"

	"github.com/cuemby/wal-cas/internal/types"
)

// metadataCache is a small thread-safe LRU cache of dataset metadata,
// keyed by CID. It never holds table data, only the DatasetArtifact
// record, so a cache hit still requires the underlying columnar read.
type metadataCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type cacheEntry struct {
	cid   string
	value types.DatasetArtifact
}

func newMetadataCache(capacity int) *metadataCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &metadataCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *metadataCache) get(cid string) (types.DatasetArtifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[cid]
	if !ok {
		return types.DatasetArtifact{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

func (c *metadataCache) put(cid string, v types.DatasetArtifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[cid]; ok {
		el.Value.(*cacheEntry).value = v
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{cid: cid, value: v})
	c.items[cid] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).cid)
		}
	}
}

func (c *metadataCache) remove(cid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[cid]; ok {
		c.ll.Remove(el)
		delete(c.items, cid)
	}
}

func (c *metadataCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
