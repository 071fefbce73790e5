package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// RouteSpec declares one dynamic-handler route binding: pattern →
// (module reference, exported handler name), resolved against a
// DynamicRegistry at startup (spec.md §4.7/§4.8).
type RouteSpec struct {
	Pattern string `yaml:"pattern"`
	Module  string `yaml:"module"`
	Handler string `yaml:"handler"`
}

// CronJobSpec declares one cron job to register with the scheduler at
// startup (spec.md §4.5).
type CronJobSpec struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Expression  string `yaml:"expression"`
}

// Manifest is the YAML-declared server topology, route table, error
// pages, and cron job list — written once at startup, read-only
// thereafter (spec.md §5 "route and dynamic-handler tables are written
// only during setup").
type Manifest struct {
	Server struct {
		Addr          string `yaml:"addr"`
		Workers       int    `yaml:"workers"`
		QueueCapacity int    `yaml:"queue_capacity"`
	} `yaml:"server"`

	Static struct {
		Dir string `yaml:"dir"`
		SPA bool   `yaml:"spa"`
	} `yaml:"static"`

	ErrorPages map[int]string `yaml:"error_pages"`

	Routes []RouteSpec `yaml:"routes"`

	Cron []CronJobSpec `yaml:"cron"`

	Dynamic struct {
		WatchDir string `yaml:"watch_dir"`
	} `yaml:"dynamic"`
}

// LoadManifest decodes the YAML manifest at path, then applies
// environment-variable overrides (WEBLET_SERVER_ADDR,
// WEBLET_SERVER_WORKERS, WEBLET_SERVER_QUEUE_CAPACITY) for the server
// topology fields — the same flags/env/file layering the rest of the
// example pack uses, with viper owning only the override layer since the
// YAML body itself is the authoritative document shape.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading manifest %q: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("config: decoding manifest %q: %w", path, err)
	}
	if m.Server.Addr == "" {
		m.Server.Addr = ":8080"
	}
	if m.Server.QueueCapacity == 0 {
		m.Server.QueueCapacity = 128
	}

	v := viper.New()
	v.SetEnvPrefix("WEBLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if addr := v.GetString("server.addr"); addr != "" {
		m.Server.Addr = addr
	}
	if workers := v.GetInt("server.workers"); workers != 0 {
		m.Server.Workers = workers
	}
	if qc := v.GetInt("server.queue_capacity"); qc != 0 {
		m.Server.QueueCapacity = qc
	}

	return &m, nil
}
