package app

import (
	"fmt"
	"log"

	"github.com/exeteres/wg-relay/internal/config"
	"github.com/exeteres/wg-relay/internal/etcd"
	"github.com/exeteres/wg-relay/internal/store"
	"github.com/exeteres/wg-relay/internal/store/inifile"
	"github.com/exeteres/wg-relay/internal/store/redisstore"
	"github.com/exeteres/wg-relay/internal/stringsx"
)

// OpenStore opens the configured settings backend. The returned close func
// releases backend connections and is never nil.
func OpenStore(cfg config.Config, logger *log.Logger) (store.ConfigStore, func() error, error) {
	var (
		st      store.ConfigStore
		closeFn = func() error { return nil }
	)

	switch cfg.StoreBackend {
	case config.StoreINI:
		s, err := inifile.Open(cfg.StorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open settings file: %w", err)
		}
		st = s
		logf(logger, "settings store backend=ini path=%q", cfg.StorePath)
	case config.StoreEtcd:
		client, err := etcd.Dial(cfg.EtcdEndpoints)
		if err != nil {
			return nil, nil, fmt.Errorf("create etcd client: %w", err)
		}
		st = etcd.NewStore(client, cfg.StorePrefix)
		closeFn = client.Close
		logf(logger, "settings store backend=etcd endpoints=%s prefix=%q", stringsx.RedactAll(cfg.EtcdEndpoints), cfg.StorePrefix)
	case config.StoreRedis:
		client := redisstore.Dial(cfg.RedisAddr)
		st = redisstore.New(client, cfg.StorePrefix)
		closeFn = client.Close
		logf(logger, "settings store backend=redis addr=%s prefix=%q", stringsx.Redact(cfg.RedisAddr), cfg.StorePrefix)
	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}

	if cfg.AgeIdentity != "" {
		id, err := store.ParseAgeIdentity(cfg.AgeIdentity)
		if err != nil {
			_ = closeFn()
			return nil, nil, err
		}
		st = store.NewSealed(st, id)
		logf(logger, "sealing cached server list recipient=%s", id.Recipient())
	}
	return st, closeFn, nil
}

func logf(logger *log.Logger, format string, args ...any) {
	if logger == nil {
		return
	}
	logger.Printf(format, args...)
}
