package vfs

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "root relative", in: "/package.json", want: "/project/package.json"},
		{name: "bare relative", in: "src/main.js", want: "/project/src/main.js"},
		{name: "already rooted", in: "/project/src/main.js", want: "/project/src/main.js"},
		{name: "dot segments", in: "./src/../index.html", want: "/project/index.html"},
		{name: "escape attempt", in: "../../etc/passwd", want: "/project/etc/passwd"},
		{name: "windows separators", in: "src\\app.tsx", want: "/project/src/app.tsx"},
		{name: "prefix lookalike", in: "/projectx/a.js", want: "/project/projectx/a.js"},
		{name: "root itself", in: "/", want: "/project"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize("/project", tt.in))
		})
	}
}

func TestRel(t *testing.T) {
	assert.Equal(t, "src/a.js", Rel("/project", "/project/src/a.js"))
	assert.Equal(t, "", Rel("/project", "/project"))
}

func TestWriteReadImpliesDirectories(t *testing.T) {
	fs := NewMemFS("/project")

	require.NoError(t, fs.WriteFile("/src/components/App.tsx", []byte("export default 1")))

	data, err := fs.ReadFile("src/components/App.tsx")
	require.NoError(t, err)
	assert.Equal(t, "export default 1", string(data))

	assert.True(t, fs.Exists("/src/components"))
	names, err := fs.ReadDir("/src")
	require.NoError(t, err)
	assert.Equal(t, []string{"components"}, names)
}

func TestReadMissing(t *testing.T) {
	fs := NewMemFS("/project")

	_, err := fs.ReadFile("/nope.txt")
	assert.True(t, errors.Is(err, ErrNotExist))

	_, err = fs.ReadDir("/nope")
	assert.True(t, errors.Is(err, ErrNotExist))

	assert.True(t, errors.Is(fs.Remove("/nope.txt"), ErrNotExist))
	assert.NoError(t, fs.RemoveAll("/nope"))
}

func TestWriteCopiesContent(t *testing.T) {
	fs := NewMemFS("/project")
	buf := []byte("one")
	require.NoError(t, fs.WriteFile("a.txt", buf))
	buf[0] = 'X'

	data, err := fs.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
}

func TestSubscribeDeliversInOrder(t *testing.T) {
	fs := NewMemFS("/project")

	var events []Event
	guard := fs.Subscribe(func(ev Event) { events = append(events, ev) })

	require.NoError(t, fs.WriteFile("a.txt", []byte("1")))
	require.NoError(t, fs.WriteFile("a.txt", []byte("2")))
	require.NoError(t, fs.Remove("a.txt"))

	require.Len(t, events, 3)
	assert.Equal(t, Event{Path: "/project/a.txt", Content: []byte("1")}, events[0])
	assert.Equal(t, "2", string(events[1].Content))
	assert.True(t, events[2].Deleted)

	guard.Release()
	guard.Release()
	assert.False(t, guard.Active())
	assert.Equal(t, 0, fs.Listeners())

	require.NoError(t, fs.WriteFile("b.txt", []byte("x")))
	assert.Len(t, events, 3)
}

func TestConcurrentWritersKeepEventOrder(t *testing.T) {
	fs := NewMemFS("/project")

	var mu sync.Mutex
	last := map[string]string{}
	guard := fs.Subscribe(func(ev Event) {
		mu.Lock()
		last[ev.Path] = string(ev.Content)
		mu.Unlock()
	})
	defer guard.Release()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = fs.WriteFile("shared.txt", []byte{byte('a' + i)})
			}
		}(i)
	}
	wg.Wait()

	data, err := fs.ReadFile("shared.txt")
	require.NoError(t, err)
	// The last delivered event always matches the stored content.
	assert.Equal(t, string(data), last["/project/shared.txt"])
}

func TestRemoveAllWorkDirKeepsRoot(t *testing.T) {
	fs := NewMemFS("/project")
	require.NoError(t, fs.WriteFile("node_modules/react/package.json", []byte("{}")))
	require.NoError(t, fs.WriteFile("index.html", []byte("<html></html>")))

	var deleted []string
	guard := fs.Subscribe(func(ev Event) {
		if ev.Deleted {
			deleted = append(deleted, ev.Path)
		}
	})
	defer guard.Release()

	require.NoError(t, fs.RemoveAll("/"))
	assert.True(t, fs.Exists("/"))
	assert.False(t, fs.Exists("index.html"))
	assert.Equal(t, []string{"/project"}, deleted)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	src := NewMemFS("/project")
	require.NoError(t, src.WriteFile("package.json", []byte(`{"name":"a"}`)))
	require.NoError(t, src.WriteFile("src/main.js", []byte("console.log(1)")))
	require.NoError(t, src.WriteFile("public/logo.bin", []byte{0, 1, 2, 255}))

	snap, err := src.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []string{"/project/package.json", "/project/public/logo.bin", "/project/src/main.js"}, snap.Paths())

	encoded, err := snap.Encode()
	require.NoError(t, err)
	decoded, err := DecodeSnapshot(encoded)
	require.NoError(t, err)

	dst := NewMemFS("/project")
	require.NoError(t, dst.WriteFile("stale.txt", []byte("old")))

	notified := false
	guard := dst.Subscribe(func(Event) { notified = true })
	defer guard.Release()

	require.NoError(t, dst.Restore(decoded))
	assert.False(t, notified, "restore must not emit change events")
	assert.False(t, dst.Exists("stale.txt"))

	for _, p := range snap.Paths() {
		got, err := dst.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, snap.Files[p], got)
	}
	assert.Equal(t, snap.Size(), decoded.Size())
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	_, err := DecodeSnapshot([]byte("definitely not zstd"))
	assert.Error(t, err)
}
