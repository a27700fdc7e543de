// Tuya Bridge - local Tuya smart plugs on an MQTT bus
//
// The bridge polls every registered plug over the Tuya LAN protocol,
// publishes changed channel states as retained MQTT messages and forwards
// on/off commands from the bus to the devices. InfluxDB, NATS, Redis, the
// SQLite command audit log and the diagnostics HTTP API are optional.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/tuya-bridge/internal/api"
	"github.com/nerrad567/tuya-bridge/internal/audit"
	"github.com/nerrad567/tuya-bridge/internal/bridge"
	"github.com/nerrad567/tuya-bridge/internal/device"
	"github.com/nerrad567/tuya-bridge/internal/infrastructure/config"
	"github.com/nerrad567/tuya-bridge/internal/infrastructure/database"
	"github.com/nerrad567/tuya-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/tuya-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/tuya-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/tuya-bridge/internal/infrastructure/natsbus"
	"github.com/nerrad567/tuya-bridge/internal/infrastructure/redisstate"
	"github.com/nerrad567/tuya-bridge/internal/metrics"
	"github.com/nerrad567/tuya-bridge/internal/registry"
	"github.com/nerrad567/tuya-bridge/internal/topic"
	"github.com/nerrad567/tuya-bridge/internal/tuya"
	"github.com/nerrad567/tuya-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "TUYABRIDGE_CONFIG"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application body, separated from main for testability.
// It blocks until ctx is cancelled, then unwinds every component in
// reverse start order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting tuya bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		return fmt.Errorf("loading device registry: %w", err)
	}
	log.Info("device registry loaded",
		"path", cfg.Registry.Path,
		"devices", reg.Len(),
		"active", len(reg.Active()),
	)

	pool := device.NewPool(reg, tuya.NewFactory(tuya.Options{Timeout: cfg.Poller.Timeout}), log.With("component", "pool"))
	log.Info("device pool built", "adapters", pool.Len(), "failed", len(pool.Failed()))

	router := topic.NewRouter(cfg.Bridge.Namespace)
	m := metrics.New()

	mqttClient, err := mqtt.Connect(cfg.MQTT, router.StatusTopic())
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT connection lost", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	var sinks []bridge.Sink

	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks = append(sinks, influxClient)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	bus, err := natsbus.Connect(cfg.NATS, cfg.GetNATSSubjectPrefix(), log.With("component", "nats"))
	switch {
	case errors.Is(err, natsbus.ErrDisabled):
		log.Info("NATS disabled")
	case err != nil:
		return fmt.Errorf("connecting to NATS: %w", err)
	default:
		defer func() {
			log.Info("draining NATS connection")
			if closeErr := bus.Close(); closeErr != nil {
				log.Error("error closing NATS", "error", closeErr)
			}
		}()
		sinks = append(sinks, bus)
		log.Info("NATS sink ready", "subject_prefix", cfg.GetNATSSubjectPrefix())
	}

	mirror, err := redisstate.Connect(cfg.Redis)
	switch {
	case errors.Is(err, redisstate.ErrDisabled):
		log.Info("Redis disabled")
	case err != nil:
		return fmt.Errorf("connecting to Redis: %w", err)
	default:
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := mirror.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		removed, pruneErr := mirror.RemoveAllExcept(ctx, registryIDs(reg))
		if pruneErr != nil {
			log.Warn("pruning Redis state mirror failed", "error", pruneErr)
		} else if len(removed) > 0 {
			log.Info("pruned unregistered devices from Redis", "devices", removed)
		}
		sinks = append(sinks, mirror)
		log.Info("Redis state mirror ready", "addr", cfg.Redis.Addr)
	}

	var auditRepo *audit.SQLiteRepository
	if cfg.Database.Enabled {
		db, openErr := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
			Migrations:  migrations.FS,
		})
		if openErr != nil {
			return fmt.Errorf("opening database: %w", openErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		auditRepo = audit.NewSQLiteRepository(db.DB)
		log.Info("command audit log ready", "path", cfg.Database.Path)
	} else {
		log.Info("command audit log disabled")
	}

	b, err := bridge.New(bridge.Options{
		Config: bridge.Config{
			ID:             cfg.Bridge.ID,
			Version:        version,
			QoS:            byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0-2
			HealthInterval: cfg.GetHealthInterval(),
			Poller: bridge.PollerConfig{
				Interval:       cfg.Poller.Interval,
				Timeout:        cfg.Poller.Timeout,
				ResyncInterval: cfg.Poller.ResyncInterval,
			},
			Dispatcher: bridge.DispatcherConfig{
				QueueSize:      cfg.Dispatcher.QueueSize,
				Workers:        cfg.Dispatcher.Workers,
				CommandTimeout: cfg.Dispatcher.CommandTimeout,
			},
		},
		Router:     router,
		MQTTClient: &mqttBridgeAdapter{client: mqttClient},
		Registry:   reg,
		Pool:       pool,
		Sinks:      sinks,
		Audit:      auditRecorder(auditRepo),
		Metrics:    m,
		Logger:     log.With("component", "bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		b.Stop()
	}()

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.With("component", "api"),
			Bridge:  b,
			Audit:   auditLister(auditRepo),
			Metrics: m,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
		log.Info("API server listening", "addr", srv.Addr())
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred cleanup runs in reverse: API, bridge, database, sinks, MQTT.
	log.Info("tuya bridge stopped")
	return nil
}

// getConfigPath returns TUYABRIDGE_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

func registryIDs(reg *registry.Registry) []string {
	all := reg.All()
	ids := make([]string, 0, len(all))
	for _, rec := range all {
		ids = append(ids, rec.ID)
	}
	return ids
}

// auditRecorder and auditLister keep a nil repository from becoming a
// non-nil interface value.
func auditRecorder(repo *audit.SQLiteRepository) bridge.AuditRecorder {
	if repo == nil {
		return nil
	}
	return repo
}

func auditLister(repo *audit.SQLiteRepository) api.AuditLister {
	if repo == nil {
		return nil
	}
	return repo
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. Bridge handlers do not return errors.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
