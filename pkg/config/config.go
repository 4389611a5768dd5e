package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the static service configuration read from a YAML file at
// process start.
type Config struct {
	ControlAPI ControlAPIConfig `yaml:"controlApi"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Worker     WorkerConfig     `yaml:"worker"`
	Broker     BrokerConfig     `yaml:"broker"`
	Store      StoreConfig      `yaml:"store"`
	Playbooks  PlaybookConfig   `yaml:"playbooks"`
	Secrets    SecretsConfig    `yaml:"secrets"`
}

// ControlAPIConfig configures the C4 HTTPS mutual-TLS server.
type ControlAPIConfig struct {
	Addr string `yaml:"addr"`
}

// SchedulerConfig configures the C5 scheduler service.
type SchedulerConfig struct {
	PublisherPoolSize   int           `yaml:"publisherPoolSize"`
	TickInterval        time.Duration `yaml:"tickInterval"`
	RedeliveryScanEvery int           `yaml:"redeliveryScanEvery"`
}

// WorkerConfig configures the C6 worker service.
type WorkerConfig struct {
	PoolSize int `yaml:"poolSize"`
}

// BrokerConfig names the fixed exchange/queue and connection host.
type BrokerConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	Exchange           string        `yaml:"exchange"`
	Queue              string        `yaml:"queue"`
	Heartbeat          time.Duration `yaml:"heartbeat"`
	BlockedParkTimeout time.Duration `yaml:"blockedParkTimeout"`
}

// StoreConfig points at the document store.
type StoreConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// PlaybookConfig roots orchestration and per-kind script directories.
type PlaybookConfig struct {
	PlaybookRoot string `yaml:"playbookRoot"`
	ScriptRoot   string `yaml:"scriptRoot"`
	ScratchRoot  string `yaml:"scratchRoot"`
}

// SecretsConfig points at the well-known directories holding
// credential and TLS material files.
type SecretsConfig struct {
	BrokerDir string `yaml:"brokerDir"`
	StoreDir  string `yaml:"storeDir"`
	TLSDir    string `yaml:"tlsDir"`
}

// Default returns the configuration used when no file is supplied,
// mirroring spec.md's defaults (port 6000 control API, pool sizes 3).
func Default() *Config {
	return &Config{
		ControlAPI: ControlAPIConfig{Addr: ":6000"},
		Scheduler: SchedulerConfig{
			PublisherPoolSize:   3,
			TickInterval:        time.Second,
			RedeliveryScanEvery: 60,
		},
		Worker: WorkerConfig{PoolSize: 3},
		Broker: BrokerConfig{
			Host:               "localhost",
			Port:               5671,
			Exchange:           "dock-schedule",
			Queue:              "job-queue",
			Heartbeat:          15 * time.Second,
			BlockedParkTimeout: 180 * time.Second,
		},
		Store: StoreConfig{Host: "localhost", Port: 27017},
		Playbooks: PlaybookConfig{
			PlaybookRoot: "/etc/dockschedule/playbooks",
			ScriptRoot:   "/etc/dockschedule/scripts",
			ScratchRoot:  "/var/run/dockschedule/scratch",
		},
		Secrets: SecretsConfig{
			BrokerDir: "/etc/dockschedule/secrets/broker",
			StoreDir:  "/etc/dockschedule/secrets/store",
			TLSDir:    "/etc/dockschedule/tls",
		},
	}
}

// Load reads a YAML config file and overlays it onto Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// BrokerCredentials holds the broker's connection identity.
type BrokerCredentials struct {
	User   string
	Passwd string
	Vhost  string
}

// LoadBrokerCredentials reads user/passwd/vhost from three secret files
// in dir, the layout spec.md §6 describes.
func LoadBrokerCredentials(dir string) (*BrokerCredentials, error) {
	user, err := readSecretFile(dir, "user")
	if err != nil {
		return nil, err
	}
	passwd, err := readSecretFile(dir, "passwd")
	if err != nil {
		return nil, err
	}
	vhost, err := readSecretFile(dir, "vhost")
	if err != nil {
		return nil, err
	}
	return &BrokerCredentials{User: user, Passwd: passwd, Vhost: vhost}, nil
}

// StoreCredentials holds the store's connection identity.
type StoreCredentials struct {
	User   string
	Passwd string
	DB     string
}

// LoadStoreCredentials reads user/passwd/db from three secret files in dir.
func LoadStoreCredentials(dir string) (*StoreCredentials, error) {
	user, err := readSecretFile(dir, "user")
	if err != nil {
		return nil, err
	}
	passwd, err := readSecretFile(dir, "passwd")
	if err != nil {
		return nil, err
	}
	db, err := readSecretFile(dir, "db")
	if err != nil {
		return nil, err
	}
	return &StoreCredentials{User: user, Passwd: passwd, DB: db}, nil
}

func readSecretFile(dir, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}
