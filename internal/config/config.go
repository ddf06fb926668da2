package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/exeteres/wg-relay/internal/executor"
	"github.com/exeteres/wg-relay/internal/stringsx"
)

type StoreBackend string

const (
	StoreINI   StoreBackend = "ini"
	StoreEtcd  StoreBackend = "etcd"
	StoreRedis StoreBackend = "redis"
)

const (
	DefaultStorePath      = "/etc/wg-relay/relay.ini"
	DefaultStorePrefix    = "wg-relay"
	DefaultCommandTimeout = 120 * time.Second
	DefaultPollInterval   = 30 * time.Second
)

type Config struct {
	StoreBackend   StoreBackend
	StorePath      string
	EtcdEndpoints  []string
	RedisAddr      string
	StorePrefix    string
	AgeIdentity    string
	Commands       executor.Commands
	CommandTimeout time.Duration
	PollInterval   time.Duration
	HistoryPath    string
	ServerPort     int
}

func FromEnv() (Config, error) {
	cfg := Config{
		StoreBackend:   StoreINI,
		StorePath:      DefaultStorePath,
		StorePrefix:    DefaultStorePrefix,
		Commands:       executor.DefaultCommands(),
		CommandTimeout: DefaultCommandTimeout,
		PollInterval:   DefaultPollInterval,
	}

	if v := env("STORE_BACKEND"); v != "" {
		cfg.StoreBackend = StoreBackend(strings.ToLower(v))
	}
	switch cfg.StoreBackend {
	case StoreINI:
		if v := env("STORE_PATH"); v != "" {
			cfg.StorePath = v
		}
	case StoreEtcd:
		cfg.EtcdEndpoints = stringsx.SplitCommaSeparated(env("ETCD_ENDPOINTS"))
		if len(cfg.EtcdEndpoints) == 0 {
			return Config{}, errors.New("ETCD_ENDPOINTS is required for STORE_BACKEND=etcd (comma-separated list of endpoints)")
		}
	case StoreRedis:
		cfg.RedisAddr = env("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			return Config{}, errors.New("REDIS_ADDR is required for STORE_BACKEND=redis")
		}
	default:
		return Config{}, fmt.Errorf("STORE_BACKEND must be one of %q, %q, %q", StoreINI, StoreEtcd, StoreRedis)
	}

	if v := env("STORE_PREFIX"); v != "" {
		cfg.StorePrefix = v
	}
	cfg.AgeIdentity = env("CACHE_AGE_IDENTITY")
	cfg.HistoryPath = env("HISTORY_PATH")

	setString(&cfg.Commands.ServersFile, "SERVERS_FILE")
	setString(&cfg.Commands.Status, "STATUS_CMD")
	setString(&cfg.Commands.Fetch, "FETCH_CMD")
	setString(&cfg.Commands.Apply, "APPLY_CMD")
	setString(&cfg.Commands.InterfaceDown, "IFDOWN_CMD")
	setString(&cfg.Commands.InterfaceUp, "IFUP_CMD")

	var err error
	if cfg.CommandTimeout, err = positiveSeconds("COMMAND_TIMEOUT_SECONDS", DefaultCommandTimeout); err != nil {
		return Config{}, err
	}
	if cfg.PollInterval, err = positiveSeconds("POLL_INTERVAL_SECONDS", DefaultPollInterval); err != nil {
		return Config{}, err
	}

	if v := env("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return Config{}, fmt.Errorf("SERVER_PORT must be a valid TCP port")
		}
		cfg.ServerPort = port
	}

	return cfg, nil
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func setString(dst *string, name string) {
	if v := env(name); v != "" {
		*dst = v
	}
}

func positiveSeconds(name string, def time.Duration) (time.Duration, error) {
	raw := env(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return time.Duration(n) * time.Second, nil
}
