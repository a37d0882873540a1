package svcsched

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const configFixture = `{
	"http": {"server": "cal.example.net", "port": 8080},
	"svc": [
		{
			"name": "feed-gateway",
			"start": "09:00:00",
			"end": "17:00:00",
			"restart": "12:00:00",
			"required_workday": true,
			"dependent": ["feed-cache", "feed-archiver.timer"]
		},
		{
			"name": "feed-cache.service",
			"start": "",
			"end": "",
			"required_workday": false
		}
	],
	"dust": {
		"logs": {
			"dir": "/var/log/feeds",
			"is_cache": false,
			"delete_empty_dir": true,
			"ext": [".log", ".gz"]
		},
		"cache": {
			"dir": "",
			"is_cache": true,
			"delete_empty_dir": false,
			"ext": [".tmp"]
		}
	}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, configFixture))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.HTTP.Server != "cal.example.net" || cfg.HTTP.Port != 8080 {
		t.Errorf("http = %+v, want cal.example.net:8080", cfg.HTTP)
	}
	if len(cfg.Svc) != 2 {
		t.Fatalf("len(svc) = %d, want 2", len(cfg.Svc))
	}
	if cfg.Svc[0].Restart != "12:00:00" {
		t.Errorf("restart = %q, want 12:00:00", cfg.Svc[0].Restart)
	}
	if len(cfg.Dust) != 2 {
		t.Errorf("len(dust) = %d, want 2", len(cfg.Dust))
	}
	if !cfg.Dust["cache"].IsCache {
		t.Error("dust.cache.is_cache = false, want true")
	}
	if got := cfg.Dust["logs"].Ext; len(got) != 2 || got[0] != ".log" {
		t.Errorf("dust.logs.ext = %v, want [.log .gz]", got)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing file content", `{`},
		{"missing http server", `{
			"http": {"port": 8080},
			"svc": [{"name": "a", "start": "", "end": "", "required_workday": false}]
		}`},
		{"tls port", `{
			"http": {"server": "cal", "port": 443},
			"svc": [{"name": "a", "start": "", "end": "", "required_workday": false}]
		}`},
		{"sentinel port", `{
			"http": {"server": "cal", "port": 65535},
			"svc": [{"name": "a", "start": "", "end": "", "required_workday": false}]
		}`},
		{"zero port", `{
			"http": {"server": "cal", "port": 0},
			"svc": [{"name": "a", "start": "", "end": "", "required_workday": false}]
		}`},
		{"missing svc", `{"http": {"server": "cal", "port": 8080}}`},
		{"missing required_workday", `{
			"http": {"server": "cal", "port": 8080},
			"svc": [{"name": "a", "start": "", "end": ""}]
		}`},
		{"missing unit name", `{
			"http": {"server": "cal", "port": 8080},
			"svc": [{"start": "", "end": "", "required_workday": false}]
		}`},
		{"unknown driver", `{
			"http": {"server": "cal", "port": 8080},
			"driver": "initctl",
			"svc": [{"name": "a", "start": "", "end": "", "required_workday": false}]
		}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.content)); err == nil {
				t.Error("LoadConfig succeeded, want error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("LoadConfig succeeded, want error")
	}
}

func TestBuildSchedulesNormalizesNames(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, configFixture))
	if err != nil {
		t.Fatal(err)
	}

	units, err := BuildSchedules(cfg, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	if units[0].Name != "feed-gateway.service" {
		t.Errorf("name = %q, want feed-gateway.service", units[0].Name)
	}
	if units[1].Name != "feed-cache.service" {
		t.Errorf("name = %q, want feed-cache.service", units[1].Name)
	}

	deps := units[0].Dependents
	if len(deps) != 2 || deps[0] != "feed-cache.service" || deps[1] != "feed-archiver.timer" {
		t.Errorf("dependents = %v, want normalized names", deps)
	}

	if !units[0].RequiredWorkday {
		t.Error("units[0].RequiredWorkday = false, want true")
	}
	if !units[0].Range.SupportsRestart() {
		t.Error("units[0] should support restart")
	}
	if units[1].Range.SupportsRestart() {
		t.Error("units[1] should not support restart")
	}
}

func TestBuildSchedulesRejectsDuplicates(t *testing.T) {
	f := false
	cfg := &Config{Svc: []UnitConfig{
		{Name: "a", RequiredWorkday: &f},
		{Name: "a.service", RequiredWorkday: &f},
	}}

	if _, err := BuildSchedules(cfg, time.Now()); err == nil {
		t.Error("BuildSchedules succeeded on duplicate names, want error")
	}
}

func TestBuildSchedulesRejectsBadTimes(t *testing.T) {
	f := false
	cfg := &Config{Svc: []UnitConfig{
		{Name: "a", Start: "24:99:00", End: "17:00:00", RequiredWorkday: &f},
	}}

	if _, err := BuildSchedules(cfg, time.Now()); err == nil {
		t.Error("BuildSchedules succeeded on bad time string, want error")
	}
}
