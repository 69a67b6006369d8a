package failover

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONLinesListener(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLinesListener(&buf)

	require.True(t, l.Notify(NewFailedItem("idx-a", []byte(`{"a":1}`), nil)))
	require.True(t, l.Notify(NewFailedItem("idx-b", []byte("not json"), nil)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var rec ItemRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "idx-a", rec.Target)
	require.JSONEq(t, `{"a":1}`, string(rec.Payload))
	require.Empty(t, rec.Raw)

	rec = ItemRecord{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	require.Equal(t, "not json", rec.Raw)
	require.Nil(t, rec.Payload)
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONLinesListenerReportsWriteFailure(t *testing.T) {
	l := NewJSONLinesListener(brokenWriter{})
	require.False(t, l.Notify(NewFailedItem("idx", []byte(`1`), nil)))
}
