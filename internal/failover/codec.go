package failover

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/rfoltyns/esfailover/internal/keyseq"
)

// Value encoding: kind(1B) | body | crc32c(kind|body)
//
//	I  targetLen(2B BE) | target | payload
//	C  seqID | ownerID | readerIndex | writerIndex | expireAt   (8B BE each)
//	D  count(4B BE) | count x 16B keys
//	R  opaque bytes

const (
	kindItem      byte = 'I'
	kindConfig    byte = 'C'
	kindDirectory byte = 'D'
	kindRaw       byte = 'R'
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// RawValue is a value the codec could not map to a known type: foreign
// records, unknown kinds and frames that failed their checksum.
type RawValue []byte

var errMalformed = errors.New("failover: malformed record body")

func encodeValue(v any) ([]byte, error) {
	var kind byte
	var body []byte
	switch val := v.(type) {
	case *FailedItem:
		if len(val.Info.TargetName) > math.MaxUint16 {
			return nil, fmt.Errorf("failover: target name too long (%d bytes)", len(val.Info.TargetName))
		}
		kind = kindItem
		body = make([]byte, 0, 2+len(val.Info.TargetName)+len(val.Payload))
		body = binary.BigEndian.AppendUint16(body, uint16(len(val.Info.TargetName)))
		body = append(body, val.Info.TargetName...)
		body = append(body, val.Payload...)
	case *keyseq.KeySequenceConfig:
		kind = kindConfig
		body = make([]byte, 0, 40)
		for _, n := range []int64{val.SeqID(), val.OwnerID(), val.ReaderIndex(), val.WriterIndex(), val.ExpireAt()} {
			body = binary.BigEndian.AppendUint64(body, uint64(n))
		}
	case *keyseq.KeySequenceConfigKeys:
		kind = kindDirectory
		keys := val.Keys()
		body = make([]byte, 0, 4+16*len(keys))
		body = binary.BigEndian.AppendUint32(body, uint32(len(keys)))
		for _, k := range keys {
			body = append(body, k[:]...)
		}
	case RawValue:
		kind, body = kindRaw, val
	case []byte:
		kind, body = kindRaw, val
	default:
		return nil, fmt.Errorf("failover: cannot encode %T", v)
	}

	return frame(kind, body), nil
}

func frame(kind byte, body []byte) []byte {
	out := make([]byte, 0, 1+len(body)+4)
	out = append(out, kind)
	out = append(out, body...)
	crc := crc32.Checksum(out, castagnoli)
	return binary.BigEndian.AppendUint32(out, crc)
}

// decodeValue never fails: anything it cannot interpret comes back as a
// RawValue. corrupt is set when the frame is truncated, fails its checksum or
// carries a body inconsistent with its kind.
func decodeValue(b []byte) (v any, corrupt bool) {
	if len(b) < 1+4 {
		return RawValue(append([]byte(nil), b...)), true
	}
	framed := b[:len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Checksum(framed, castagnoli) != expect {
		return RawValue(append([]byte(nil), b...)), true
	}

	kind, body := framed[0], framed[1:]
	var err error
	switch kind {
	case kindItem:
		v, err = decodeItem(body)
	case kindConfig:
		v, err = decodeConfig(body)
	case kindDirectory:
		v, err = decodeDirectory(body)
	case kindRaw:
		return RawValue(append([]byte(nil), body...)), false
	default:
		return RawValue(append([]byte(nil), b...)), false
	}
	if err != nil {
		return RawValue(append([]byte(nil), b...)), true
	}
	return v, false
}

func decodeItem(body []byte) (*FailedItem, error) {
	if len(body) < 2 {
		return nil, errMalformed
	}
	n := int(binary.BigEndian.Uint16(body))
	if 2+n > len(body) {
		return nil, errMalformed
	}
	target := string(body[2 : 2+n])
	payload := append([]byte(nil), body[2+n:]...)
	return NewFailedItem(target, payload, nil), nil
}

func decodeConfig(body []byte) (*keyseq.KeySequenceConfig, error) {
	if len(body) != 40 {
		return nil, errMalformed
	}
	var f [5]int64
	for i := range f {
		f[i] = int64(binary.BigEndian.Uint64(body[i*8:]))
	}
	return keyseq.NewKeySequenceConfig(f[0], f[1], f[2], f[3], f[4]), nil
}

func decodeDirectory(body []byte) (*keyseq.KeySequenceConfigKeys, error) {
	if len(body) < 4 {
		return nil, errMalformed
	}
	n := int(binary.BigEndian.Uint32(body))
	if len(body) != 4+16*n {
		return nil, errMalformed
	}
	keys := make([]keyseq.Key, n)
	for i := range keys {
		copy(keys[i][:], body[4+16*i:])
	}
	return keyseq.NewKeySequenceConfigKeys(keys...), nil
}
