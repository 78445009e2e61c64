package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reloadRecorder struct {
	mu      sync.Mutex
	configs []RunboatConfig
}

func (r *reloadRecorder) record(cfg RunboatConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, cfg)
}

func (r *reloadRecorder) snapshot() []RunboatConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunboatConfig(nil), r.configs...)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := writeConfig(t, "controller:\n  maxStarted: 1\n")
	recorder := &reloadRecorder{}

	w := NewWatcher(path, 20*time.Millisecond, recorder.record)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("controller:\n  maxStarted: 7\n"), 0o600))

	require.Eventually(t, func() bool {
		configs := recorder.snapshot()
		return len(configs) > 0 && configs[len(configs)-1].Controller.MaxStarted == 7
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherSkipsInvalidChange(t *testing.T) {
	path := writeConfig(t, "controller:\n  maxStarted: 1\n")
	recorder := &reloadRecorder{}

	w := NewWatcher(path, 20*time.Millisecond, recorder.record)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("controller:\n  workers: 0\n"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, recorder.snapshot())

	require.NoError(t, os.WriteFile(path, []byte("controller:\n  maxStarted: 2\n"), 0o600))
	require.Eventually(t, func() bool {
		return len(recorder.snapshot()) > 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, recorder.snapshot()[0].Controller.MaxStarted)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	path := writeConfig(t, "controller:\n  maxStarted: 1\n")
	recorder := &reloadRecorder{}

	w := NewWatcher(path, 20*time.Millisecond, recorder.record)
	require.NoError(t, w.Start())
	defer w.Stop()

	other := filepath.Join(filepath.Dir(path), "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("hello"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, recorder.snapshot())
}

func TestWatcherStartErrors(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing-dir", "runboat.yaml"), 0, nil)
	assert.Error(t, w.Start())

	// Stop on a watcher that never started is a no-op.
	w.Stop()
}

func TestWatcherStartStopIdempotent(t *testing.T) {
	path := writeConfig(t, "")
	w := NewWatcher(path, 0, nil)
	assert.Equal(t, DefaultDebounceInterval, w.debounce)

	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	w.Stop()
	w.Stop()
}
