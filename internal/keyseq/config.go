package keyseq

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// KeySequenceConfig is the persisted state of one sequence. Fields are atomic
// so a single instance can be shared as a live view between a KeySequence and
// its readers; Copy yields a frozen snapshot.
type KeySequenceConfig struct {
	seqID       int64
	ownerID     atomic.Int64
	readerIndex atomic.Int64
	writerIndex atomic.Int64
	expireAt    atomic.Int64
}

// NewKeySequenceConfig builds a config. expireAt is epoch millis.
func NewKeySequenceConfig(seqID, ownerID, readerIndex, writerIndex, expireAt int64) *KeySequenceConfig {
	c := &KeySequenceConfig{seqID: seqID}
	c.ownerID.Store(ownerID)
	c.readerIndex.Store(readerIndex)
	c.writerIndex.Store(writerIndex)
	c.expireAt.Store(expireAt)
	return c
}

// NewSequenceAtFloor builds a config for a sequence that has never been written.
func NewSequenceAtFloor(seqID, ownerID int64) *KeySequenceConfig {
	return NewKeySequenceConfig(seqID, ownerID, ReservedKeys, ReservedKeys, 0)
}

func (c *KeySequenceConfig) SeqID() int64       { return c.seqID }
func (c *KeySequenceConfig) OwnerID() int64     { return c.ownerID.Load() }
func (c *KeySequenceConfig) ReaderIndex() int64 { return c.readerIndex.Load() }
func (c *KeySequenceConfig) WriterIndex() int64 { return c.writerIndex.Load() }
func (c *KeySequenceConfig) ExpireAt() int64    { return c.expireAt.Load() }

func (c *KeySequenceConfig) SetOwnerID(id int64)  { c.ownerID.Store(id) }
func (c *KeySequenceConfig) SetExpireAt(ms int64) { c.expireAt.Store(ms) }

// Key returns the store key of this config.
func (c *KeySequenceConfig) Key() Key { return ConfigKey(c.seqID) }

// Copy returns a point-in-time snapshot.
func (c *KeySequenceConfig) Copy() *KeySequenceConfig {
	return NewKeySequenceConfig(c.seqID, c.OwnerID(), c.ReaderIndex(), c.WriterIndex(), c.ExpireAt())
}

// Equal compares the persisted fields.
func (c *KeySequenceConfig) Equal(o *KeySequenceConfig) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.seqID == o.seqID &&
		c.OwnerID() == o.OwnerID() &&
		c.ReaderIndex() == o.ReaderIndex() &&
		c.WriterIndex() == o.WriterIndex() &&
		c.ExpireAt() == o.ExpireAt()
}

func (c *KeySequenceConfig) String() string {
	return fmt.Sprintf("KeySequenceConfig{seqId=%d, ownerId=%d, readerIndex=%d, writerIndex=%d, expireAt=%d}",
		c.seqID, c.OwnerID(), c.ReaderIndex(), c.WriterIndex(), c.ExpireAt())
}

// KeySequenceConfigKeys is the directory of registered config keys.
type KeySequenceConfigKeys struct {
	mu   sync.RWMutex
	keys map[Key]struct{}
}

// NewKeySequenceConfigKeys builds a directory holding keys.
func NewKeySequenceConfigKeys(keys ...Key) *KeySequenceConfigKeys {
	d := &KeySequenceConfigKeys{keys: make(map[Key]struct{}, len(keys))}
	for _, k := range keys {
		d.keys[k] = struct{}{}
	}
	return d
}

// Add registers key; it reports false if the key was already present.
func (d *KeySequenceConfigKeys) Add(key Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.keys[key]; ok {
		return false
	}
	d.keys[key] = struct{}{}
	return true
}

// Remove unregisters key; it reports false if the key was not present.
func (d *KeySequenceConfigKeys) Remove(key Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.keys[key]; !ok {
		return false
	}
	delete(d.keys, key)
	return true
}

func (d *KeySequenceConfigKeys) Contains(key Key) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.keys[key]
	return ok
}

func (d *KeySequenceConfigKeys) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.keys)
}

// Keys returns the registered keys in ascending order.
func (d *KeySequenceConfigKeys) Keys() []Key {
	d.mu.RLock()
	out := make([]Key, 0, len(d.keys))
	for k := range d.keys {
		out = append(out, k)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}
