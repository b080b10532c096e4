package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"graderelay/internal/amqp"
)

// Server is the configuration schema of the frontend binary.
type Server struct {
	Server  ServerSection  `toml:"server"`
	Gitlab  GitlabSection  `toml:"gitlab"`
	Package PackageSection `toml:"package"`
	Labs    LabsSection    `toml:"labs"`
	AMQP    amqp.Config    `toml:"amqp"`
	Queue   QueueSection   `toml:"queue"`
}

// Worker is the configuration schema of the worker binary.
type Worker struct {
	AMQP   amqp.Config   `toml:"amqp"`
	Tester TesterSection `toml:"tester"`
}

// ServerSection says where to listen and under which public base URL the
// artifact files are reachable.
type ServerSection struct {
	IP      string `toml:"ip"`
	Port    int    `toml:"port"`
	BaseURL string `toml:"base_url"`
}

type GitlabSection struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
	// SecretToken, when set, must match the X-Gitlab-Token header of
	// incoming webhooks.
	SecretToken string `toml:"secret_token"`
}

type PackageSection struct {
	ZipDir string `toml:"zip_dir"`
}

type LabsSection struct {
	Steps []string `toml:"steps"`
}

// QueueSection bounds the internal hand-off channels.
type QueueSection struct {
	Capacity int `toml:"capacity"`
}

const defaultCapacity = 16

// CapacityOrDefault returns Capacity if set, otherwise defaultCapacity.
func (q QueueSection) CapacityOrDefault() int {
	if q.Capacity > 0 {
		return q.Capacity
	}
	return defaultCapacity
}

// TesterSection configures the grader program a worker invokes per job.
type TesterSection struct {
	Program        string `toml:"program"`
	Dir            string `toml:"dir"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Parallelism    int    `toml:"parallelism"`
}

// Timeout returns the per-step execution deadline.
func (t TesterSection) Timeout() time.Duration {
	if t.TimeoutSeconds > 0 {
		return time.Duration(t.TimeoutSeconds) * time.Second
	}
	return 5 * time.Minute
}

// ParallelismOrDefault returns Parallelism if set, otherwise 1.
func (t TesterSection) ParallelismOrDefault() int {
	if t.Parallelism > 0 {
		return t.Parallelism
	}
	return 1
}

// LoadServer reads the frontend configuration from a TOML file.
func LoadServer(path string) (Server, error) {
	var cfg Server
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Server{}, fmt.Errorf("loading configuration %s: %w", path, err)
	}
	if cfg.Server.BaseURL == "" {
		return Server{}, fmt.Errorf("%s: server.base_url is required", path)
	}
	if cfg.Package.ZipDir == "" {
		return Server{}, fmt.Errorf("%s: package.zip_dir is required", path)
	}
	if len(cfg.Labs.Steps) == 0 {
		return Server{}, fmt.Errorf("%s: labs.steps must name at least one step", path)
	}
	return cfg, nil
}

// LoadWorker reads the worker configuration from a TOML file.
func LoadWorker(path string) (Worker, error) {
	var cfg Worker
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Worker{}, fmt.Errorf("loading configuration %s: %w", path, err)
	}
	if cfg.Tester.Program == "" {
		return Worker{}, fmt.Errorf("%s: tester.program is required", path)
	}
	return cfg, nil
}
