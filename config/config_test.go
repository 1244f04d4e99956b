package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sdupdate-project/sdupdate/config"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := config.Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ChunkSize != 256 {
		t.Fatalf("ChunkSize = %d, want 256", cfg.ChunkSize)
	}
	if cfg.ImageFileName != "firmware.bin" {
		t.Fatalf("ImageFileName = %q, want firmware.bin", cfg.ImageFileName)
	}
}

func TestLoadYamlOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sdupdate.yaml")
	content := "sd_mount_point: /mnt/sdcard\nimage_file_name: CANDIDATE.BIN\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SDMountPoint != "/mnt/sdcard" {
		t.Fatalf("SDMountPoint = %q, want /mnt/sdcard", cfg.SDMountPoint)
	}
	if cfg.ImageFileName != "CANDIDATE.BIN" {
		t.Fatalf("ImageFileName = %q, want CANDIDATE.BIN", cfg.ImageFileName)
	}
	if cfg.ChunkSize != 256 {
		t.Fatalf("ChunkSize should fall back to default, got %d", cfg.ChunkSize)
	}
}

func TestLoadFieldOverridesWinOverYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sdupdate.yaml")
	if err := os.WriteFile(path, []byte("chunk_size: 1024\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path, map[string]interface{}{
		"chunk_size": "512",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ChunkSize != 512 {
		t.Fatalf("ChunkSize = %d, want 512", cfg.ChunkSize)
	}
}

func TestLoadRejectsNonPositiveChunkSize(t *testing.T) {
	_, err := config.Load("", map[string]interface{}{"chunk_size": 0})
	if err == nil {
		t.Fatalf("expected error for chunk_size=0")
	}
}

func TestLoadParsesFlashMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sdupdate.yaml")
	content := "flash_map:\n" +
		"  - name: boot\n" +
		"    id: 0\n" +
		"    device: 0\n" +
		"    offset: 0\n" +
		"    size: 32768\n" +
		"  - name: primary\n" +
		"    id: 1\n" +
		"    device: 0\n" +
		"    offset: 32768\n" +
		"    size: 262144\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.FlashMap) != 2 {
		t.Fatalf("FlashMap len = %d, want 2", len(cfg.FlashMap))
	}
	if cfg.FlashMap[1].Name != "primary" || cfg.FlashMap[1].Offset != 32768 {
		t.Fatalf("FlashMap[1] = %+v, want primary at offset 32768", cfg.FlashMap[1])
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ChunkSize != 256 {
		t.Fatalf("ChunkSize = %d, want 256", cfg.ChunkSize)
	}
}
