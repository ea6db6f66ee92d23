package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadRepoConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "configs", "parkrivals.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Economy.InitialBalance != 200000 {
		t.Fatalf("initial balance: %d", c.Economy.InitialBalance)
	}
	if len(c.Economy.BuildActions) != 25 {
		t.Fatalf("build actions: %d", len(c.Economy.BuildActions))
	}
	if len(c.Permission.RestrictedActions) != 7 {
		t.Fatalf("restricted actions: %d", len(c.Permission.RestrictedActions))
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("rides:\n  rename_max_attempts: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Rides.RenameMaxAttempts != 5 {
		t.Fatalf("override lost: %d", c.Rides.RenameMaxAttempts)
	}
	if c.Messenger.ConnectDelayMs != 1000 || c.Economy.ClampRideType != 36 {
		t.Fatalf("defaults lost: %+v", c)
	}
}

func TestCheatParamDefaultsToOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	body := "cheats:\n  on_start:\n    - type: 13\n    - type: 39\n      param1: 999\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := c.Cheats.OnStart[0].P1(); got != 1 {
		t.Fatalf("param1 default: %d", got)
	}
	if got := c.Cheats.OnStart[1].P1(); got != 999 {
		t.Fatalf("param1: %d", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PR_INITIAL_BALANCE", "5000")
	t.Setenv("PR_STORAGE_DRIVER", "memory")
	t.Setenv("PR_AUDIT", "false")
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Economy.InitialBalance != 5000 || c.Storage.Driver != "memory" || c.Audit.Enabled {
		t.Fatalf("env not applied: %+v", c)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"zero balance":  func(c *Config) { c.Economy.InitialBalance = 0 },
		"bad driver":    func(c *Config) { c.Storage.Driver = "mysql" },
		"no attempts":   func(c *Config) { c.Rides.RenameMaxAttempts = 0 },
		"mirror bucket": func(c *Config) { c.Mirror.Enabled = true; c.Mirror.Bucket = "" },
		"admin perm":    func(c *Config) { c.Permission.AdminPermission = " " },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			c := Defaults()
			mut(&c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
