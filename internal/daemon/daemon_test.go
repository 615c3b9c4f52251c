package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wikiexport/internal/config"
	"git.home.luguber.info/inful/wikiexport/internal/export"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
)

type fakeRunner struct {
	mu     sync.Mutex
	runs   []bool
	closed bool
}

func (r *fakeRunner) Run(_ context.Context, force bool) (*export.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, force)
	return &export.Result{RunID: "run"}, nil
}

func (r *fakeRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRunner) forces() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.runs...)
}

func (r *fakeRunner) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type factory struct {
	mu      sync.Mutex
	runners []*fakeRunner
	configs []*config.Config
}

func (f *factory) build(cfg *config.Config) (Runner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &fakeRunner{}
	f.runners = append(f.runners, r)
	f.configs = append(f.configs, cfg)
	return r, nil
}

func (f *factory) runner(i int) *fakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runners[i]
}

func testConfig() *config.Config {
	return &config.Config{
		Corpora: []config.Corpus{{Space: "CXF"}, {Space: "CAMEL", Dir: "camel"}},
		Daemon:  config.DaemonConfig{Interval: time.Hour},
	}
}

func TestDaemonRunsImmediatelyAndOnTrigger(t *testing.T) {
	f := &factory{}
	d, err := New(testConfig(), nil, f.build)
	require.NoError(t, err)
	assert.Equal(t, StateStarting, d.State())
	assert.Equal(t, []string{"CXF", "CAMEL"}, d.Corpora())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	r := f.runner(0)
	require.Eventually(t, func() bool { return len(r.forces()) == 1 }, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return d.Trigger(true) }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(r.forces()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []bool{false, true}, r.forces())
	assert.False(t, d.StartTime().IsZero())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.Equal(t, StateStopping, d.State())
	assert.True(t, r.isClosed())
}

func TestTriggerIsCoalesced(t *testing.T) {
	d, err := New(testConfig(), nil, (&factory{}).build)
	require.NoError(t, err)
	assert.True(t, d.Trigger(false))
	assert.False(t, d.Trigger(true))
}

func TestReloadSwapsRunner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wiki.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway: {endpoints: [https://wiki.example.org/confluence]}
site: {host: https://wiki.example.org}
daemon: {interval: 30m}
corpora: [{space: CXF}, {space: CAMEL, dir: camel}, {space: AMQ, dir: amq}]
`), 0o600))

	f := &factory{}
	d, err := New(testConfig(), []string{path}, f.build)
	require.NoError(t, err)

	require.NoError(t, d.Reload(t.Context()))
	assert.Len(t, f.runners, 2)
	assert.True(t, f.runner(0).isClosed())
	assert.False(t, f.runner(1).isClosed())
	assert.Equal(t, 30*time.Minute, d.Interval())
	assert.Equal(t, []string{"CXF", "CAMEL", "AMQ"}, d.Corpora())
}

func TestReloadKeepsConfigOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wiki.yaml")
	require.NoError(t, os.WriteFile(path, []byte("corpora: []\n"), 0o600))

	f := &factory{}
	cfg := testConfig()
	d, err := New(cfg, []string{path}, f.build)
	require.NoError(t, err)

	err = d.Reload(t.Context())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	assert.Same(t, cfg, d.Config())
	assert.Len(t, f.runners, 1)
}

func TestConfigWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wiki.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o600))
	other := filepath.Join(dir, "unrelated.txt")

	var mu sync.Mutex
	reloads := 0
	cw, err := NewConfigWatcher([]string{path}, func(context.Context) error {
		mu.Lock()
		reloads++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	cw.debounceTime = 20 * time.Millisecond
	require.NoError(t, cw.Start(t.Context()))
	defer cw.Stop()

	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("a: 3\n"), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reloads >= 1
	}, 5*time.Second, 10*time.Millisecond)

	cw.Stop()
}

func TestSchedulerReschedule(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	s, err := NewScheduler(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NoError(t, s.Schedule(time.Hour))
	s.Start()
	defer func() { _ = s.Stop() }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Schedule(time.Hour))
	require.NoError(t, s.Schedule(2*time.Hour))
	assert.Equal(t, 2*time.Hour, s.Interval())
}
