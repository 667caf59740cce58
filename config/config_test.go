package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/soypat/sdfvol/distvol"
	"github.com/soypat/sdfvol/signdist"
)

func TestLoadMissingConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	def := DefaultConfig()
	if cfg.Distance != def.Distance || cfg.Grid != def.Grid {
		t.Errorf("missing file did not yield defaults: %+v", cfg)
	}
	p, err := cfg.Params()
	if err != nil {
		t.Fatal(err)
	}
	if p.Winding != signdist.EvenOdd || p.ExactLimit != 5 || p.ApproxLimit != 20 || p.ROI != distvol.ROIInside {
		t.Errorf("unexpected default params %+v", p)
	}
}

func TestSaveLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sdfvol.yaml")
	cfg := DefaultConfig()
	cfg.Distance.Winding = "NORMALS"
	cfg.Distance.ExactLimit = 3
	cfg.Distance.ROIComputed = true
	cfg.Grid.Spacing = 0.5
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatal(err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Distance != cfg.Distance || got.Grid != cfg.Grid || got.Processing != cfg.Processing {
		t.Errorf("round trip got %+v, want %+v", got, cfg)
	}
	p, err := got.Params()
	if err != nil {
		t.Fatal(err)
	}
	if p.Winding != signdist.Normals || p.ROI != distvol.ROIComputed || p.ExactLimit != 3 {
		t.Errorf("unexpected params %+v", p)
	}
}

func TestPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	yml := "distance:\n  winding: winding\n  approxLimit: 8\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Distance.ApproxLimit != 8 || cfg.Distance.ExactLimit != 5 || cfg.Grid.Spacing != 1 {
		t.Errorf("partial file should keep unset defaults: %+v", cfg.Distance)
	}
	p, err := cfg.Params()
	if err != nil {
		t.Fatal(err)
	}
	if p.Winding != signdist.NonZero {
		t.Errorf("winding %v", p.Winding)
	}
}

func TestInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Distance.Winding = "sideways"
	if _, err := cfg.Params(); err == nil {
		t.Error("expected error for unknown winding")
	}
	cfg = DefaultConfig()
	cfg.Distance.ApproxLimit = 1
	if _, err := cfg.Params(); !errors.Is(err, distvol.ErrInvalidParams) {
		t.Errorf("got %v, want ErrInvalidParams", err)
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("distance: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}
