package main

import (
	"slices"
	"testing"
)

func TestServiceConfig(t *testing.T) {
	cfg := serviceConfig("/etc/herald/herald.yaml")
	if cfg.Name != "herald" {
		t.Errorf("Name = %q, want herald", cfg.Name)
	}
	want := []string{"start", "--config", "/etc/herald/herald.yaml"}
	if !slices.Equal(cfg.Arguments, want) {
		t.Errorf("Arguments = %v, want %v", cfg.Arguments, want)
	}
}

func TestServiceConfig_ControlOnly(t *testing.T) {
	cfg := serviceConfig("")
	if len(cfg.Arguments) != 0 {
		t.Errorf("Arguments = %v, want none", cfg.Arguments)
	}
}

func TestServiceCmd_Subcommands(t *testing.T) {
	var got []string
	for _, c := range serviceCmd().Commands() {
		got = append(got, c.Name())
	}
	for _, want := range []string{"install", "uninstall", "start", "stop", "status"} {
		if !slices.Contains(got, want) {
			t.Errorf("missing %q subcommand, have %v", want, got)
		}
	}
}
