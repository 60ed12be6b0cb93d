package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Embedded(t *testing.T) {
	seed, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(seed.Verticals) != 6 {
		t.Errorf("expected 6 verticals, got %d", len(seed.Verticals))
	}
	if len(seed.Achievements) != 6 {
		t.Errorf("expected 6 achievements, got %d", len(seed.Achievements))
	}

	active, ok := seed.Vertical("HaiActive")
	if !ok {
		t.Fatal("HaiActive missing")
	}
	var base []string
	for _, m := range active.Modules {
		if m.IsBase {
			base = append(base, m.Key)
		}
	}
	want := []string{"miembros", "acceso", "planes", "reservas_clases", "facturacion_recurrente", "asistencia"}
	if len(base) != len(want) {
		t.Fatalf("base modules = %v, want %v", base, want)
	}
	for i := range want {
		if base[i] != want[i] {
			t.Errorf("base[%d] = %q, want %q", i, base[i], want[i])
		}
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed", `{"verticals": [`},
		{"duplicate vertical", `{"verticals":[{"slug":"A"},{"slug":"A"}]}`},
		{"duplicate module", `{"verticals":[{"slug":"A","modules":[{"key":"x"},{"key":"x"}]}]}`},
		{"achievement without key", `{"achievements":[{"name":"nameless"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	data := `{"verticals":[{"slug":"HaiTest","modules":[{"key":"uno","isBase":true}]}]}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	seed, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := seed.Vertical("HaiTest"); !ok {
		t.Error("expected HaiTest from file")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
