package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/npillmayer/schuko/tracing"

	"exprfutures-go/packages/lowering/config"
)

func TestNewLoweringConfig(t *testing.T) {
	want := &config.LoweringConfig{
		OptimizeBlocks:      true,
		PreferSealedDispose: true,
		SpillVariables:      true,
		TraceLevel:          "error",
	}
	if diff := cmp.Diff(want, config.NewLoweringConfig()); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}

	got := config.NewLoweringConfig(config.WithOptimizeBlocks(false), config.WithTraceLevel("debug"))
	want.OptimizeBlocks = false
	want.TraceLevel = "debug"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lowering.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("should keep defaults for missing keys", func(t *testing.T) {
		path := writeConfig(t, "spill_variables: false\ntrace_level: info\n")
		got, err := config.Load(path)
		if err != nil {
			t.Fatal(err)
		}
		want := &config.LoweringConfig{
			OptimizeBlocks:      true,
			PreferSealedDispose: true,
			SpillVariables:      false,
			TraceLevel:          "info",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should apply options after the file", func(t *testing.T) {
		path := writeConfig(t, "optimize_blocks: false\n")
		got, err := config.Load(path, config.WithOptimizeBlocks(true))
		if err != nil {
			t.Fatal(err)
		}
		if !got.OptimizeBlocks {
			t.Errorf("option did not override the file")
		}
	})

	errorCases := []struct {
		name    string
		content string
	}{
		{"unknown trace level", "trace_level: verbose\n"},
		{"malformed yaml", "optimize_blocks: [\n"},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.Load(writeConfig(t, tt.content)); err == nil {
				t.Errorf("expected an error")
			}
		})
	}

	t.Run("should fail for a missing file", func(t *testing.T) {
		if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Errorf("expected an error")
		}
	})
}

func TestParseTraceLevel(t *testing.T) {
	tests := []struct {
		in   string
		want tracing.TraceLevel
	}{
		{"", tracing.LevelError},
		{"ERROR", tracing.LevelError},
		{"info", tracing.LevelInfo},
		{"Debug", tracing.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := config.ParseTraceLevel(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
