package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/fakeyudi/eyetrial/internal/watch"
)

func startWatcher(t *testing.T, root string) <-chan []string {
	t.Helper()
	w, err := watch.New(root, "*.asc", 50*time.Millisecond)
	gt.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	batches := make(chan []string, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(_ context.Context, paths []string) { batches <- paths })
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	return batches
}

func waitBatch(t *testing.T, batches <-chan []string) []string {
	t.Helper()
	select {
	case b := <-batches:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher callback")
		return nil
	}
}

func TestWatchFiresOnNewRecording(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "VGS", "g", "s")
	gt.NoError(t, os.MkdirAll(dir, 0o755))
	batches := startWatcher(t, root)

	path := filepath.Join(dir, "run.asc")
	gt.NoError(t, os.WriteFile(path, []byte("MSG\t1 TRIALID\n"), 0o644))

	got := waitBatch(t, batches)
	gt.A(t, got).Length(1)
	gt.Equal(t, got[0], path)
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	batches := startWatcher(t, root)

	gt.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	asc := filepath.Join(root, "a.asc")
	gt.NoError(t, os.WriteFile(asc, []byte("x"), 0o644))

	got := waitBatch(t, batches)
	gt.Equal(t, got, []string{asc})
}

func TestWatchPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()
	batches := startWatcher(t, root)

	dir := filepath.Join(root, "MGS", "g", "s")
	gt.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "run.asc")
	gt.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	got := waitBatch(t, batches)
	gt.A(t, got).Length(1)
	gt.Equal(t, got[0], path)
}

func TestNewMissingRoot(t *testing.T) {
	_, err := watch.New(filepath.Join(t.TempDir(), "absent"), "", 0)
	gt.Error(t, err)
}

func TestTasks(t *testing.T) {
	base := filepath.Join("data", "study")
	paths := []string{
		filepath.Join(base, "VGS", "g", "s", "a.asc"),
		filepath.Join(base, "MGS", "g", "s", "b.asc"),
		filepath.Join(base, "VGS", "g", "t", "c.asc"),
		filepath.Join(base, "loose.asc"),
		filepath.Join("elsewhere", "x.asc"),
	}
	gt.Equal(t, watch.Tasks(base, paths), []string{"MGS", "VGS"})
	gt.A(t, watch.Tasks(base, nil)).Length(0)
}
