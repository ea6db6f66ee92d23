// Package config loads the rules server's YAML tuning file and applies PR_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Economy    Economy    `yaml:"economy"`
	Permission Permission `yaml:"permission"`
	Rides      Rides      `yaml:"rides"`
	Messenger  Messenger  `yaml:"messenger"`
	Cheats     Cheats     `yaml:"cheats"`
	Commands   Commands   `yaml:"commands"`
	Storage    Storage    `yaml:"storage"`
	Audit      Audit      `yaml:"audit"`
	Snapshot   Snapshot   `yaml:"snapshot"`
	Mirror     Mirror     `yaml:"mirror"`
	Bridge     Bridge     `yaml:"bridge"`
}

type Economy struct {
	// InitialBalance is every player's starting balance and the treasury floor.
	InitialBalance int64 `yaml:"initial_balance"`
	// ClampRideType names the ride type whose losses are not charged.
	ClampRideType       int      `yaml:"clamp_ride_type"`
	BuildActions        []string `yaml:"build_actions"`
	BalanceReplyDelayMs int      `yaml:"balance_reply_delay_ms"`
}

type Permission struct {
	RestrictedActions []string `yaml:"restricted_actions"`
	AdminPermission   string   `yaml:"admin_permission"`
}

type Rides struct {
	RenameMaxAttempts int `yaml:"rename_max_attempts"`
}

type Messenger struct {
	ConnectDelayMs int `yaml:"connect_delay_ms"`
}

type CheatSpec struct {
	Type   int  `yaml:"type"`
	Param1 *int `yaml:"param1"`
	Param2 int  `yaml:"param2"`
}

// P1 returns Param1, defaulting to 1 (enable).
func (c CheatSpec) P1() int {
	if c.Param1 == nil {
		return 1
	}
	return *c.Param1
}

type Cheats struct {
	OnStart            []CheatSpec `yaml:"on_start"`
	GrassIntervalTicks int         `yaml:"grass_interval_ticks"`
}

type Commands struct {
	RatePerMinute int `yaml:"rate_per_minute"`
	Burst         int `yaml:"burst"`
}

type Storage struct {
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	Scope     string `yaml:"scope"`
	Namespace string `yaml:"namespace"`
}

type Audit struct {
	Enabled     bool `yaml:"enabled"`
	RotateHours int  `yaml:"rotate_hours"`
}

type Snapshot struct {
	EverySeconds int `yaml:"every_seconds"`
	Keep         int `yaml:"keep"`
}

type Mirror struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Workers  int    `yaml:"workers"`
}

type Bridge struct {
	CallTimeoutMs int    `yaml:"call_timeout_ms"`
	Token         string `yaml:"token"`
}

func intp(v int) *int { return &v }

func Defaults() Config {
	return Config{
		Economy: Economy{
			InitialBalance: 200000,
			ClampRideType:  36,
			BuildActions: []string{
				"bannerplace", "bannerremove", "clearscenery", "footpathplace",
				"footpathremove", "landbuyrights", "landlower", "landraise",
				"largesceneryplace", "largesceneryremove", "mazeplacetrack",
				"mazesettrack", "ridecreate", "ridedemolish", "smallsceneryplace",
				"smallsceneryremove", "surfacesetstyle", "tilemodify", "trackdesign",
				"trackplace", "trackremove", "wallplace", "wallremove",
				"waterlower", "waterraise",
			},
			BalanceReplyDelayMs: 100,
		},
		Permission: Permission{
			RestrictedActions: []string{
				"parksetentrancefee", "parksetloan", "parksetname",
				"parksetresearchfunding", "parkmarketing", "parksetparameter",
				"landbuyrights",
			},
			AdminPermission: "kick_player",
		},
		Rides:     Rides{RenameMaxAttempts: 50},
		Messenger: Messenger{ConnectDelayMs: 1000},
		Cheats: Cheats{
			OnStart: []CheatSpec{
				{Type: 13}, // disable vandalism
				{Type: 25}, // disable plant aging
				{Type: 9},  // disable all breakdowns
				{Type: 43}, // disable ride value aging
				{Type: 44}, // ignore research status
				{Type: 18}, // clear loan
				{Type: 14}, // disable littering
				{Type: 38}, // have fun
				{Type: 39, Param1: intp(999)},
			},
			GrassIntervalTicks: 10000,
		},
		Commands: Commands{RatePerMinute: 20, Burst: 5},
		Storage: Storage{
			Driver:    "sqlite",
			DSN:       "data/parkrivals.sqlite",
			Scope:     "default",
			Namespace: "competitive",
		},
		Audit:    Audit{Enabled: true, RotateHours: 1},
		Snapshot: Snapshot{EverySeconds: 300, Keep: 48},
		Mirror:   Mirror{Region: "auto", Workers: 2},
		Bridge:   Bridge{CallTimeoutMs: 2000},
	}
}

// Load reads path over Defaults. An empty path yields Defaults. Env overrides
// are applied and the result validated.
func Load(path string) (Config, error) {
	c := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return c, fmt.Errorf("%s: %w", path, err)
		}
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) ApplyEnv() {
	c.Economy.InitialBalance = int64(envInt("PR_INITIAL_BALANCE", int(c.Economy.InitialBalance)))
	c.Storage.Driver = envString("PR_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.DSN = envString("PR_STORAGE_DSN", c.Storage.DSN)
	c.Storage.Scope = envString("PR_STORAGE_SCOPE", c.Storage.Scope)
	c.Audit.Enabled = envBool("PR_AUDIT", c.Audit.Enabled)
	c.Snapshot.EverySeconds = envInt("PR_SNAPSHOT_EVERY_SECONDS", c.Snapshot.EverySeconds)
	c.Mirror.Enabled = envBool("PR_MIRROR", c.Mirror.Enabled)
	c.Mirror.Endpoint = envString("PR_MIRROR_ENDPOINT", c.Mirror.Endpoint)
	c.Mirror.Region = envString("PR_MIRROR_REGION", c.Mirror.Region)
	c.Mirror.Bucket = envString("PR_MIRROR_BUCKET", c.Mirror.Bucket)
	c.Mirror.Prefix = envString("PR_MIRROR_PREFIX", c.Mirror.Prefix)
	c.Mirror.Workers = envInt("PR_MIRROR_WORKERS", c.Mirror.Workers)
	c.Bridge.Token = envString("PR_BRIDGE_TOKEN", c.Bridge.Token)
}

func (c Config) Validate() error {
	if c.Economy.InitialBalance <= 0 {
		return fmt.Errorf("economy.initial_balance must be > 0")
	}
	if c.Rides.RenameMaxAttempts < 1 {
		return fmt.Errorf("rides.rename_max_attempts must be >= 1")
	}
	if c.Messenger.ConnectDelayMs < 0 || c.Economy.BalanceReplyDelayMs < 0 {
		return fmt.Errorf("delays must be >= 0")
	}
	if strings.TrimSpace(c.Permission.AdminPermission) == "" {
		return fmt.Errorf("permission.admin_permission is required")
	}
	if c.Cheats.GrassIntervalTicks < 0 {
		return fmt.Errorf("cheats.grass_interval_ticks must be >= 0")
	}
	if c.Commands.RatePerMinute <= 0 || c.Commands.Burst <= 0 {
		return fmt.Errorf("commands.rate_per_minute and commands.burst must be > 0")
	}
	switch c.Storage.Driver {
	case "memory", "sqlite", "pgx":
	default:
		return fmt.Errorf("storage.driver %q: want memory, sqlite or pgx", c.Storage.Driver)
	}
	if c.Storage.Driver != "memory" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for driver %s", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.Namespace) == "" {
		return fmt.Errorf("storage.namespace is required")
	}
	if c.Mirror.Enabled && c.Mirror.Bucket == "" {
		return fmt.Errorf("mirror.bucket is required when mirror is enabled")
	}
	return nil
}

func (c Config) ConnectDelay() time.Duration {
	return time.Duration(c.Messenger.ConnectDelayMs) * time.Millisecond
}

func (c Config) BalanceReplyDelay() time.Duration {
	return time.Duration(c.Economy.BalanceReplyDelayMs) * time.Millisecond
}

func (c Config) CallTimeout() time.Duration {
	return time.Duration(c.Bridge.CallTimeoutMs) * time.Millisecond
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
