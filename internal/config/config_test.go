package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTopologyHostingSites(t *testing.T) {
	topo := DefaultTopology()

	even := topo.HostingSites(6)
	if len(even) != 10 {
		t.Fatalf("expected even variable replicated at all 10 sites, got %v", even)
	}

	odd := topo.HostingSites(1)
	if len(odd) != 1 || odd[0] != 2 {
		t.Fatalf("expected x1 only at site 2, got %v", odd)
	}

	odd11 := topo.HostingSites(11)
	if len(odd11) != 1 || odd11[0] != 2 {
		t.Fatalf("expected x11 only at site 2, got %v", odd11)
	}
}

func TestDefaultTopologyInitialValue(t *testing.T) {
	topo := DefaultTopology()
	if v := topo.InitialValue(7); v != 70 {
		t.Fatalf("expected 70, got %d", v)
	}
}

func TestLoadTopologyFileOverridesOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.yaml")
	if err := os.WriteFile(path, []byte("site_count: 4\n"), 0o644); err != nil {
		t.Fatalf("write topology file: %v", err)
	}

	topo, err := LoadTopologyFile(path)
	if err != nil {
		t.Fatalf("LoadTopologyFile: %v", err)
	}
	if topo.SiteCount != 4 {
		t.Fatalf("expected overridden site count 4, got %d", topo.SiteCount)
	}
	if topo.VariableCount != 20 {
		t.Fatalf("expected default variable count 20, got %d", topo.VariableCount)
	}
}

func TestValidateRejectsNonPositiveCounts(t *testing.T) {
	topo := Topology{SiteCount: 0, VariableCount: 20, InitialValueStep: 10}
	if err := topo.Validate(); err == nil {
		t.Fatalf("expected validation error for zero site count")
	}
}
