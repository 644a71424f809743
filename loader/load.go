package loader

import (
	"encoding/base64"
	"io"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/evanphx/nachos/fs"
	"github.com/evanphx/nachos/log"
	hclog "github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
)

// HeaderCache remembers decoded headers by image digest.
type HeaderCache struct {
	mu sync.RWMutex

	cache *lru.ARCCache
}

func NewHeaderCache(size int) *HeaderCache {
	cache, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}

	return &HeaderCache{cache: cache}
}

func (c *HeaderCache) Lookup(key string) (*Header, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	val, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}

	h := *val.(*Header)
	return &h, true
}

func (c *HeaderCache) Set(key string, h *Header) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := *h
	c.cache.Add(key, &cp)
}

func (c *HeaderCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.cache.Len()
}

type Loader struct {
	L     hclog.Logger
	cache *HeaderCache

	// ReadOnlyData selects the header layout with a read-only data
	// segment.
	ReadOnlyData bool
}

// NewLoader returns a Loader. cache may be nil.
func NewLoader(cache *HeaderCache, withReadOnly bool) *Loader {
	return &Loader{
		L:            log.Named("loader"),
		cache:        cache,
		ReadOnlyData: withReadOnly,
	}
}

// Digest is the cache key of an image file.
func (l *Loader) Digest(f fs.File) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}

	_, err = io.Copy(h, io.NewSectionReader(f, 0, f.Length()))
	if err != nil {
		return "", err
	}

	key := base64.URLEncoding.EncodeToString(h.Sum(nil))

	if l.ReadOnlyData {
		key = "ro:" + key
	}

	return key, nil
}

// ReadHeader decodes the header of f, consulting the cache first.
func (l *Loader) ReadHeader(f fs.File) (*Header, error) {
	var cacheKey string

	if l.cache != nil {
		l.L.Trace("calculating image cache key")

		key, err := l.Digest(f)
		if err != nil {
			return nil, err
		}

		cacheKey = key

		if h, ok := l.cache.Lookup(cacheKey); ok {
			l.L.Trace("using cached header", "key", cacheKey)
			return h, nil
		}
	}

	h, err := ParseHeader(f, l.ReadOnlyData)
	if err != nil {
		return nil, err
	}

	if h.Swapped {
		l.L.Debug("swapped noff header byte order")
	}

	l.L.Debug("noff header",
		"code", h.Code.Size,
		"readonly", h.ReadOnlyData.Size,
		"init", h.InitData.Size,
		"uninit", h.UninitData.Size)

	if l.cache != nil {
		l.L.Trace("cached header", "key", cacheKey)
		l.cache.Set(cacheKey, h)
	}

	return h, nil
}
