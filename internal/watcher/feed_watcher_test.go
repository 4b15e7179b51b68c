package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeReloader struct {
	mu      sync.Mutex
	calls   int
	changed bool
	err     error
}

func (f *fakeReloader) Reload(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.changed, f.err
}

func (f *fakeReloader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Broadcast(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return 1
}

func (f *fakeNotifier) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func setup(t *testing.T, reloader Reloader, debounce time.Duration) (*FeedWatcher, *fakeNotifier, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "equiscore.xml")
	require.NoError(t, os.WriteFile(path, []byte("<r/>"), 0644))

	notifier := &fakeNotifier{}
	fw, err := New(path, reloader, notifier, "data_updated", debounce)
	require.NoError(t, err)
	require.NoError(t, fw.Start(context.Background()))
	t.Cleanup(fw.Stop)
	return fw, notifier, path
}

func TestFeedWatcher_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	fw, err := New(filepath.Join(dir, "feed.xml"), &fakeReloader{}, &fakeNotifier{}, "data_updated", 0)
	require.NoError(t, err)

	require.NoError(t, fw.Start(context.Background()))
	require.NoError(t, fw.Start(context.Background()), "second Start is a no-op")
	assert.True(t, fw.IsWatching())

	fw.Stop()
	fw.Stop()
	assert.False(t, fw.IsWatching())
}

func TestFeedWatcher_ModificationReloadsAndNotifies(t *testing.T) {
	reloader := &fakeReloader{changed: true}
	fw, notifier, path := setup(t, reloader, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("<r><TResultsProvider/></r>"), 0644))

	require.Eventually(t, func() bool { return len(notifier.Events()) >= 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "data_updated", notifier.Events()[0])

	stats := fw.Stats()
	assert.GreaterOrEqual(t, stats.Reloads, 1)
	assert.GreaterOrEqual(t, stats.Notifications, 1)
	assert.Equal(t, path, filepath.Clean(stats.LastEventPath))
}

func TestFeedWatcher_DebounceCoalescesBursts(t *testing.T) {
	reloader := &fakeReloader{changed: true}
	_, notifier, path := setup(t, reloader, 300*time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("<r>burst</r>"), 0644))
	}

	require.Eventually(t, func() bool { return reloader.Calls() == 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, reloader.Calls())
	assert.Len(t, notifier.Events(), 1)
}

func TestFeedWatcher_IgnoresOtherFiles(t *testing.T) {
	reloader := &fakeReloader{changed: true}
	fw, notifier, path := setup(t, reloader, 0)

	other := filepath.Join(filepath.Dir(path), "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0644))

	require.Eventually(t, func() bool { return fw.Stats().EventsIgnored >= 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Zero(t, reloader.Calls())
	assert.Empty(t, notifier.Events())
}

func TestFeedWatcher_AtomicReplace(t *testing.T) {
	reloader := &fakeReloader{changed: true}
	_, notifier, path := setup(t, reloader, 20*time.Millisecond)

	tmp := filepath.Join(filepath.Dir(path), "equiscore.xml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("<r>new</r>"), 0644))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool { return len(notifier.Events()) >= 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestFeedWatcher_MovedAwayKeepsResults(t *testing.T) {
	reloader := &fakeReloader{changed: true}
	fw, notifier, path := setup(t, reloader, 0)

	require.NoError(t, os.Rename(path, path+".bak"))

	require.Eventually(t, func() bool {
		st := fw.Stats()
		return st.LastEventType == "rename" && st.EventsIgnored >= 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Zero(t, reloader.Calls())
	assert.Empty(t, notifier.Events())
}

func TestFeedWatcher_UnchangedDoesNotNotify(t *testing.T) {
	reloader := &fakeReloader{changed: false}
	fw, notifier, path := setup(t, reloader, 0)

	require.NoError(t, os.WriteFile(path, []byte("<r/>"), 0644))

	require.Eventually(t, func() bool { return fw.Stats().Unchanged >= 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Empty(t, notifier.Events())
}

func TestFeedWatcher_ReloadErrorKeepsQuiet(t *testing.T) {
	reloader := &fakeReloader{err: errors.New("half written")}
	fw, notifier, path := setup(t, reloader, 0)

	require.NoError(t, os.WriteFile(path, []byte("<r>"), 0644))

	require.Eventually(t, func() bool { return fw.Stats().Errors >= 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "half written", fw.Stats().LastError)
	assert.Empty(t, notifier.Events())
}

func TestFeedWatcher_StopCancelsPendingReload(t *testing.T) {
	reloader := &fakeReloader{changed: true}
	dir := t.TempDir()
	path := filepath.Join(dir, "equiscore.xml")
	require.NoError(t, os.WriteFile(path, []byte("<r/>"), 0644))

	fw, err := New(path, reloader, &fakeNotifier{}, "data_updated", time.Hour)
	require.NoError(t, err)
	require.NoError(t, fw.Start(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte("<r>x</r>"), 0644))
	require.Eventually(t, func() bool { return fw.Stats().EventsSeen >= 1 }, 3*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		fw.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop blocked on a pending debounced reload")
	}
	assert.Zero(t, reloader.Calls())
}

func TestFeedWatcher_ContextCancelEndsLoop(t *testing.T) {
	dir := t.TempDir()
	fw, err := New(filepath.Join(dir, "feed.xml"), &fakeReloader{}, &fakeNotifier{}, "data_updated", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, fw.Start(ctx))
	cancel()

	waited := make(chan struct{})
	go func() {
		fw.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(3 * time.Second):
		t.Fatal("loop did not exit on context cancel")
	}
	fw.Stop()
}

func TestFeedWatcher_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "feed.xml")
	fw, err := New(path, &fakeReloader{}, &fakeNotifier{}, "data_updated", 0)
	require.NoError(t, err)
	defer fw.Stop()

	assert.Error(t, fw.Start(context.Background()))
	assert.False(t, fw.IsWatching())
}

func TestDebouncer(t *testing.T) {
	t.Run("zero duration runs inline", func(t *testing.T) {
		d := newDebouncer(0)
		ran := false
		assert.False(t, d.debounce(func() { ran = true }))
		assert.True(t, ran)
	})

	t.Run("later call supersedes earlier", func(t *testing.T) {
		d := newDebouncer(50 * time.Millisecond)
		var mu sync.Mutex
		var got []int
		record := func(i int) func() {
			return func() {
				mu.Lock()
				got = append(got, i)
				mu.Unlock()
			}
		}
		assert.False(t, d.debounce(record(1)))
		assert.True(t, d.debounce(record(2)))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) == 1
		}, time.Second, 5*time.Millisecond)
		mu.Lock()
		assert.Equal(t, []int{2}, got)
		mu.Unlock()
	})

	t.Run("cancel drops pending", func(t *testing.T) {
		d := newDebouncer(time.Hour)
		d.debounce(func() { t.Error("should not run") })
		assert.True(t, d.cancel())
		assert.False(t, d.cancel())
	})
}
