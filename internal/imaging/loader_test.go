package imaging

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ironsheep/region-lens/internal/failure"
)

func TestNewPhotoCache(t *testing.T) {
	cache := NewPhotoCache(0)
	if cache == nil {
		t.Fatal("NewPhotoCache returned nil")
	}
	if cache.maxEntries != DefaultCacheEntries {
		t.Errorf("maxEntries: got %d, want %d", cache.maxEntries, DefaultCacheEntries)
	}
}

func TestPhotoCache_Load(t *testing.T) {
	cache := NewPhotoCache(4)
	path := writePNG(t, createInMemoryImage(100, 80, red))

	p1, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := p1.Size(); got.Width != 100 || got.Height != 80 {
		t.Errorf("unexpected size: got %vx%v, want 100x80", got.Width, got.Height)
	}
	if p1.Format != "png" {
		t.Errorf("Format: got %s, want png", p1.Format)
	}

	p2, err := cache.Load(path)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if p1 != p2 {
		t.Error("second Load did not return cached photo")
	}
}

func TestPhotoCache_Load_NonExistent(t *testing.T) {
	cache := NewPhotoCache(0)
	if _, err := cache.Load("/nonexistent/path/to/image.png"); err == nil {
		t.Error("Load should fail for non-existent file")
	}
}

func TestPhotoCache_Load_InvalidImage(t *testing.T) {
	cache := NewPhotoCache(0)
	path := filepath.Join(t.TempDir(), "invalid.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	_, err := cache.Load(path)
	if !errors.Is(err, failure.ErrDecodeFailure) {
		t.Errorf("Load error: got %v, want ErrDecodeFailure", err)
	}
}

func TestPhotoCache_EvictsOldest(t *testing.T) {
	cache := NewPhotoCache(2)
	dir := t.TempDir()
	paths := make([]string, 3)
	for i := range paths {
		paths[i] = filepath.Join(dir, string(rune('a'+i))+".png")
		src := writePNG(t, createInMemoryImage(10, 10, blue))
		data, err := os.ReadFile(src)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(paths[i], data, 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := cache.Load(paths[i]); err != nil {
			t.Fatalf("Load %s: %v", paths[i], err)
		}
	}

	if cache.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", cache.Len())
	}
	cache.mu.RLock()
	_, first := cache.photos[paths[0]]
	_, last := cache.photos[paths[2]]
	cache.mu.RUnlock()
	if first {
		t.Error("oldest photo was not evicted")
	}
	if !last {
		t.Error("newest photo is missing")
	}
}

func TestPhotoCache_ClearAndEvict(t *testing.T) {
	cache := NewPhotoCache(0)
	path := writePNG(t, createInMemoryImage(50, 50, green))

	if _, err := cache.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cache.Evict(path)
	if cache.Len() != 0 {
		t.Errorf("Evict did not remove photo: %d remain", cache.Len())
	}
	cache.Evict("/nonexistent/path")

	if _, err := cache.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Clear did not empty cache: %d remain", cache.Len())
	}
}

func TestPhotoCache_ConcurrentAccess(t *testing.T) {
	cache := NewPhotoCache(0)
	path := writePNG(t, createInMemoryImage(50, 50, white))

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Load(path); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Load error: %v", err)
	}
}

func TestPhotoCache_Info(t *testing.T) {
	cache := NewPhotoCache(0)
	path := writePNG(t, createInMemoryImage(200, 150, red))

	info, err := cache.Info(path)
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Width != 200 || info.Height != 150 {
		t.Errorf("dimensions: got %dx%d, want 200x150", info.Width, info.Height)
	}
	if info.Format != "png" {
		t.Errorf("Format: got %s, want png", info.Format)
	}
	if info.FileSizeBytes <= 0 {
		t.Error("FileSizeBytes should be positive")
	}
}
