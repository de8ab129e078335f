package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMessagesDistinguishDeleteFromEmpty(t *testing.T) {
	empty, err := Encode(SyncWrite("/project/a.txt", nil))
	require.NoError(t, err)
	del, err := Encode(SyncDelete("/project/a.txt"))
	require.NoError(t, err)

	m, err := Decode(empty)
	require.NoError(t, err)
	assert.False(t, m.Deleted())
	assert.Empty(t, *m.Content)

	m, err = Decode(del)
	require.NoError(t, err)
	assert.True(t, m.Deleted())
	assert.Equal(t, "/project/a.txt", m.Path)
}

func TestSyncFileWireFormat(t *testing.T) {
	data, err := Encode(SyncWrite("/project/a.js", []byte("hi")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"syncFile","path":"/project/a.js","content":"hi"}`, string(data))

	data, err = Encode(SyncDelete("/project/a.js"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"syncFile","path":"/project/a.js","content":null}`, string(data))

	data, err = Encode(Message{Type: TypeReady})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ready"}`, string(data))
}

func TestDecodeSyncFileFromPeer(t *testing.T) {
	m, err := Decode([]byte(`{"type":"syncFile","path":"/project/a.js","content":"hi"}`))
	require.NoError(t, err)
	require.False(t, m.Deleted())
	assert.Equal(t, "hi", *m.Content)

	m, err = Decode([]byte(`{"type":"syncFile","path":"/project/a.js","content":null}`))
	require.NoError(t, err)
	assert.True(t, m.Deleted())

	m, err = Decode([]byte(`{"type":"syncFile","path":"/project/a.js"}`))
	require.NoError(t, err)
	assert.True(t, m.Deleted())
}

func TestDecodeRequiresType(t *testing.T) {
	_, err := Decode([]byte(`{"id":3}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestOriginOf(t *testing.T) {
	tests := map[string]string{
		"ws://127.0.0.1:8788/ws":           "http://127.0.0.1:8788",
		"wss://sandbox.example/ws?x=1":     "https://sandbox.example",
		"https://app.example:8443/preview": "https://app.example:8443",
	}
	for in, want := range tests {
		got, err := OriginOf(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := OriginOf("/relative")
	assert.Error(t, err)
}
