package failover

import (
	"encoding/json"
	"io"
	"sync"
)

// ItemRecord is the JSON form written by JSONLinesListener. Payloads that are
// valid JSON are embedded as-is; anything else goes to Raw.
type ItemRecord struct {
	Target  string          `json:"target"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Raw     string          `json:"raw,omitempty"`
}

// JSONLinesListener writes each item as one JSON line.
type JSONLinesListener struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLinesListener writes to w.
func NewJSONLinesListener(w io.Writer) *JSONLinesListener {
	return &JSONLinesListener{enc: json.NewEncoder(w)}
}

func (l *JSONLinesListener) Notify(item *FailedItem) bool {
	rec := ItemRecord{Target: item.Info.TargetName}
	if json.Valid(item.Payload) {
		rec.Payload = item.Payload
	} else {
		rec.Raw = string(item.Payload)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(rec) == nil
}
