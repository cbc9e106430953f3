package emb

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// ScoreCache keeps model outputs per token sequence in memory and, when dir
// is set, as little-endian float32 blobs on disk.
type ScoreCache struct {
	dir     string
	modelID string
	mu      sync.RWMutex
	mem     map[string][]float32
}

// NewScoreCache prepares dir. An empty dir keeps the cache memory-only.
func NewScoreCache(dir, modelID string) (*ScoreCache, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create score cache dir: %w", err)
		}
	}
	return &ScoreCache{dir: dir, modelID: modelID, mem: make(map[string][]float32)}, nil
}

// Key hashes the model id together with the token ids.
func (c *ScoreCache) Key(ids []int) string {
	h := sha1.New()
	_, _ = io.WriteString(h, c.modelID)
	_, _ = io.WriteString(h, "|")
	var buf []byte
	for i, id := range ids {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, int64(id), 10)
	}
	_, _ = h.Write(buf)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached scores for key.
func (c *ScoreCache) Get(key string) ([]float32, bool) {
	c.mu.RLock()
	v, ok := c.mem[key]
	c.mu.RUnlock()
	if ok {
		return clone(v), true
	}
	v, err := c.load(key)
	if err != nil {
		return nil, false
	}
	c.mu.Lock()
	c.mem[key] = v
	c.mu.Unlock()
	return clone(v), true
}

// Put stores scores under key. Disk write failures leave the memory entry
// in place and are reported.
func (c *ScoreCache) Put(key string, v []float32) error {
	c.mu.Lock()
	c.mem[key] = clone(v)
	c.mu.Unlock()
	return c.save(key, v)
}

func (c *ScoreCache) path(key string) string {
	return filepath.Join(c.dir, key+".bin")
}

func (c *ScoreCache) load(key string) ([]float32, error) {
	if c.dir == "" {
		return nil, os.ErrNotExist
	}
	path := c.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("cache file too small: %s", path)
	}
	n := int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]
	if len(data) != n*4 {
		return nil, fmt.Errorf("cache length mismatch: %s", path)
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}

func (c *ScoreCache) save(key string, v []float32) error {
	if c.dir == "" {
		return nil
	}
	buf := make([]byte, 4+len(v)*4)
	binary.LittleEndian.PutUint32(buf, uint32(len(v)))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4+i*4:], math.Float32bits(x))
	}
	path := c.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("write score cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit score cache: %w", err)
	}
	return nil
}

func clone(v []float32) []float32 {
	return append([]float32(nil), v...)
}
