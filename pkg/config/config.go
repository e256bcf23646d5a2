// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the engine/worker process configuration: event log
// and command queue backend selection, the worker's lease/poll tuning, and
// the ambient observability knobs, via viper so values can come from a
// YAML file or environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level process configuration, shared by cmd/api and
// cmd/worker; each binary only reads the sections it needs.
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	EventLog    EventLogConfig    `mapstructure:"eventlog"`
	Queue       QueueConfig       `mapstructure:"queue"`
	KVStore     KVStoreConfig     `mapstructure:"kvstore"`
	ResultStore ResultStoreConfig `mapstructure:"resultstore"`
	Credential  CredentialConfig  `mapstructure:"credential"`
	Playbooks   PlaybooksConfig   `mapstructure:"playbooks"`
	Tools       ToolsConfig       `mapstructure:"tools"`
	Log         LogConfig         `mapstructure:"log"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

// ToolsConfig configures the worker's node_type implementations
// (internal/tool/*).
type ToolsConfig struct {
	SQLDSN string `mapstructure:"sql_dsn"` // empty disables the "sql" node_type
}

// APIConfig configures the Submit/Control HTTP surface (internal/api/http).
type APIConfig struct {
	Port       int        `mapstructure:"port"`
	Host       string     `mapstructure:"host"`
	CORS       CORSConfig `mapstructure:"cors"`
	JWTKey     string     `mapstructure:"jwt_key"`      // empty disables JWT auth
	JWTTimeout string     `mapstructure:"jwt_timeout"`  // e.g. "1h"
}

// CORSConfig is the Submit/Control API's cross-origin policy.
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// WorkerConfig tunes one worker process's command-lease loop
// (internal/worker.Config).
type WorkerConfig struct {
	WorkerID     string   `mapstructure:"worker_id"`
	Capabilities []string `mapstructure:"capabilities"`
	Concurrency  int      `mapstructure:"concurrency"`   // number of concurrent Runner goroutines; <=0 means 1
	LeaseTime    string   `mapstructure:"lease_time"`     // e.g. "30s"
	PollInterval string   `mapstructure:"poll_interval"`  // e.g. "200ms"
}

// EventLogConfig selects the event log backend (internal/eventlog.Store).
type EventLogConfig struct {
	Type          string `mapstructure:"type"` // "memory" | "postgres"
	DSN           string `mapstructure:"dsn"`  // required when type=postgres
	LeaseDuration string `mapstructure:"lease_duration"`
}

// QueueConfig selects the command queue backend (internal/queue.Queue).
type QueueConfig struct {
	Type string `mapstructure:"type"` // "memory" is the only backend this tree wires; a postgres-backed Queue would read its DSN here
	DSN  string  `mapstructure:"dsn"`
}

// KVStoreConfig selects the distributed loop-state mirror backend
// (internal/kvstore.Store).
type KVStoreConfig struct {
	Type string `mapstructure:"type"` // "memory" | "redis"
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`
}

// ResultStoreConfig wires internal/resultstore's tiered backends.
type ResultStoreConfig struct {
	ObjectDir     string `mapstructure:"object_dir"`      // filesystem root for the object tier
	RedisAddr     string `mapstructure:"redis_addr"`      // shared with KVStoreConfig.Addr if empty
	SweepInterval string `mapstructure:"sweep_interval"`  // retention sweep cadence, e.g. "1m"
}

// CredentialConfig selects the keychain backend (internal/credential.Store).
type CredentialConfig struct {
	Provider                string            `mapstructure:"provider"` // "memory" | "env" | "vault"
	Options                 map[string]string `mapstructure:"options"`
	TTL                     string            `mapstructure:"ttl"`
	RefreshThresholdSeconds int               `mapstructure:"refresh_threshold_seconds"`
}

// PlaybooksConfig points at the playbook catalog directory: a flat
// directory of "<catalog_id>.yaml" files resolved by playbook.FileCatalog.
type PlaybooksConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig configures the ambient slog-based logger (pkg/log).
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" | "text"
}

// TracingConfig configures the OTel exporter (pkg/tracing).
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// Default returns the zero-configuration defaults a developer gets with no
// config file at all: in-memory event log, queue, KV and result store, a
// single worker with no capability restriction.
func Default() *Config {
	return &Config{
		API:    APIConfig{Port: 8080, Host: "0.0.0.0"},
		Worker: WorkerConfig{WorkerID: "worker-1", Concurrency: 1, LeaseTime: "30s", PollInterval: "200ms"},
		EventLog: EventLogConfig{Type: "memory"},
		Queue:    QueueConfig{Type: "memory"},
		KVStore:  KVStoreConfig{Type: "memory"},
		ResultStore: ResultStoreConfig{
			ObjectDir:     "./data/resultstore",
			SweepInterval: "1m",
		},
		Credential: CredentialConfig{Provider: "memory", RefreshThresholdSeconds: 300},
		Playbooks:  PlaybooksConfig{Dir: "./playbooks"},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configPath (YAML) into a Config seeded with Default(),
// applying environment variable overrides (NOETL_API_PORT style, via
// viper's "." -> "_" key replacer) on top of whatever the file sets.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("noetl")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
