package keyseq

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
)

// ReservedKeys is the cursor floor. Both cursors of a fresh sequence start
// here, so the first data key has index ReservedKeys+1 and index 0 stays free
// for the sequence's config entry.
const ReservedKeys int64 = 4

// Key is a 128-bit store key encoded as 16 bytes big-endian:
// [8 bytes seqID][8 bytes index]. Byte-wise comparison preserves
// (seqID, index) ordering.
type Key [16]byte

// DirectoryKey is the well-known key holding KeySequenceConfigKeys.
var DirectoryKey = NewKey(0, 0)

// NewKey encodes (seqID, index).
func NewKey(seqID, index int64) Key {
	var k Key
	binary.BigEndian.PutUint64(k[0:8], uint64(seqID))
	binary.BigEndian.PutUint64(k[8:16], uint64(index))
	return k
}

// ConfigKey returns the key under which the config of seqID is stored.
func ConfigKey(seqID int64) Key { return NewKey(seqID, 0) }

// KeyFromBytes parses a 16-byte key.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != len(k) {
		return k, errors.New("keyseq: key must be 16 bytes")
	}
	copy(k[:], b)
	return k, nil
}

// SeqID returns the high half.
func (k Key) SeqID() int64 { return int64(binary.BigEndian.Uint64(k[0:8])) }

// Index returns the low half.
func (k Key) Index() int64 { return int64(binary.BigEndian.Uint64(k[8:16])) }

// Bytes returns the raw 16-byte representation.
func (k Key) Bytes() []byte {
	b := make([]byte, len(k))
	copy(b, k[:])
	return b
}

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Compare orders keys by (seqID, index).
func (k Key) Compare(other Key) int { return bytes.Compare(k[:], other[:]) }
