package bootstrap

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"maestro/internal/adapter/memory"
	"maestro/internal/domain"
	"maestro/internal/infra"
)

func devConfig(t *testing.T) *infra.Config {
	t.Helper()
	root := t.TempDir()
	return &infra.Config{
		AppEnv:            "development",
		StoragePath:       filepath.Join(root, "media"),
		ScratchPath:       filepath.Join(root, "scratch"),
		DefaultProvider:   "mock",
		MockDelay:         -time.Millisecond,
		MaskTolerance:     30,
		WorkerConcurrency: 2,
		QueueSize:         10,
		WorkerPoll:        time.Hour,
	}
}

func TestNewRequiresDatabaseWhenAsked(t *testing.T) {
	if _, err := New(context.Background(), devConfig(t), infra.NopLogger(), Options{RequireDB: true}); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestInMemoryRuntimeProcessesJobs(t *testing.T) {
	cfg := devConfig(t)
	src := filepath.Join(cfg.StoragePath, "catalog", "shoe.png")
	_ = os.MkdirAll(filepath.Dir(src), 0o755)
	if err := imaging.Save(imaging.New(2, 2, color.NRGBA{G: 255, A: 255}), src); err != nil {
		t.Fatalf("write source: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := New(ctx, cfg, infra.NopLogger(), Options{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer rt.Close()

	seeded, err := rt.Media.Get(ctx, 1)
	if err != nil || seeded.StorageKey != "catalog/shoe.png" {
		t.Fatalf("expected seeded media, got %+v %v", seeded, err)
	}

	manager := rt.NewManager(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		rt.RunWorkers(ctx)
	}()

	id, err := manager.CreateJob(ctx, domain.Principal{UserID: 1, Role: domain.UserRoleAdmin}, 1, "remove_bg", nil)
	if err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	var view domain.JobView
	for time.Now().Before(deadline) {
		view, _ = manager.GetJob(ctx, id)
		if view.Status.Terminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if view.Status != domain.JobStatusCompleted || len(view.Result) != 1 {
		t.Fatalf("unexpected job state %+v", view)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop")
	}
}

func TestSeedFromStorageSkipsNonImages(t *testing.T) {
	cfg := devConfig(t)
	_ = os.MkdirAll(cfg.StoragePath, 0o755)
	_ = os.WriteFile(filepath.Join(cfg.StoragePath, "b.jpg"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(cfg.StoragePath, "a.png"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(cfg.StoragePath, "notes.txt"), []byte("x"), 0o644)

	rt, err := New(context.Background(), cfg, infra.NopLogger(), Options{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	mem := rt.Media.(*memory.MediaStore)
	first, _ := mem.Get(context.Background(), 1)
	second, _ := mem.Get(context.Background(), 2)
	if first == nil || first.Filename != "a.png" || second == nil || second.MIME != "image/jpeg" {
		t.Fatalf("unexpected seed %+v %+v", first, second)
	}
	if _, err := mem.Get(context.Background(), 3); err == nil {
		t.Fatal("text file must not be seeded")
	}
}
