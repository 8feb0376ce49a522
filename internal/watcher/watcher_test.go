package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"onisai/internal/domain"
	"onisai/internal/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSubmitter struct {
	mu       sync.Mutex
	texts    []string
	busyOnce bool
}

func (f *fakeSubmitter) SubmitOffer(_ context.Context, text string, _ time.Time) (*service.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.busyOnce {
		f.busyOnce = false
		return nil, service.ErrLockHeld
	}
	f.texts = append(f.texts, text)
	if strings.Contains(text, "junk") {
		return nil, service.ErrNotAnOffer
	}
	return &service.Result{Trip: &domain.Trip{ID: "T20250314-093000"}}, nil
}

func (f *fakeSubmitter) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func startWatcher(t *testing.T, sub Submitter, dir string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	w := New(sub, dir, 20*time.Millisecond, zap.NewNop())
	go func() { done <- w.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ──────────────────────────────────────────────────────────────
// Inbox flow
// ──────────────────────────────────────────────────────────────

func TestWatcher_SubmitsExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "early.txt"), []byte("£12.50 card"), 0o644))

	sub := &fakeSubmitter{}
	startWatcher(t, sub, dir)

	require.Eventually(t, func() bool {
		return exists(filepath.Join(dir, processedDir, "early.txt"))
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.txt"), []byte("£9.00 card"), 0o644))
	require.Eventually(t, func() bool {
		return exists(filepath.Join(dir, processedDir, "late.txt"))
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{"£12.50 card", "£9.00 card"}, sub.submitted())
	assert.False(t, exists(filepath.Join(dir, "early.txt")))
}

func TestWatcher_RejectedGoesToFailed(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	startWatcher(t, sub, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.txt"), []byte("junk"), 0o644))
	require.Eventually(t, func() bool {
		return exists(filepath.Join(dir, failedDir, "junk.txt"))
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_RetriesWhileLockHeld(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "offer.txt"), []byte("£12.50 card"), 0o644))

	sub := &fakeSubmitter{busyOnce: true}
	startWatcher(t, sub, dir)

	require.Eventually(t, func() bool {
		return exists(filepath.Join(dir, processedDir, "offer.txt"))
	}, 5*time.Second, 20*time.Millisecond)
	assert.Len(t, sub.submitted(), 1)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.True(t, isInboxFile(dir, filepath.Join(dir, "a.txt")))
	assert.False(t, isInboxFile(dir, filepath.Join(dir, "a.png")))
	assert.False(t, isInboxFile(dir, filepath.Join(dir, ".a.txt")))
	assert.False(t, isInboxFile(dir, filepath.Join(dir, processedDir, "a.txt")))
}
