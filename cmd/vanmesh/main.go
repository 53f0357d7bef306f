// Vanmesh Coordinator - Device Presence and Control
//
// This is the main entry point for the vanmesh coordinator. The
// coordinator is the hub of a small fleet of embedded devices (rear
// camera, sensors) on an isolated vehicle network:
//   - Devices register and heartbeat over HTTP or MQTT
//   - Presence is held in memory and classified by heartbeat age
//   - Control commands are forwarded to the owning device
//   - Lifecycle events stream to operator dashboards over WebSocket
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vanmesh/vanmesh-core/internal/api"
	"github.com/vanmesh/vanmesh-core/internal/audit"
	"github.com/vanmesh/vanmesh-core/internal/device"
	"github.com/vanmesh/vanmesh-core/internal/forward"
	"github.com/vanmesh/vanmesh-core/internal/infrastructure/config"
	"github.com/vanmesh/vanmesh-core/internal/infrastructure/database"
	"github.com/vanmesh/vanmesh-core/internal/infrastructure/influxdb"
	"github.com/vanmesh/vanmesh-core/internal/infrastructure/logging"
	"github.com/vanmesh/vanmesh-core/internal/infrastructure/mqtt"
	"github.com/vanmesh/vanmesh-core/internal/ingest"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting vanmesh coordinator",
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

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the event history database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Presence registry. Deliberately in-memory: a restart clears the
	// fleet, devices re-announce within one heartbeat interval.
	registry := device.NewRegistry(device.Options{
		Quotas: cfg.Registry.Quotas,
		Thresholds: device.Thresholds{
			Inactive:     cfg.Registry.GetInactiveThreshold(),
			Removal:      cfg.Registry.GetRemovalThreshold(),
			FailureLimit: cfg.Registry.FailureThreshold,
		},
		ResetFailuresOnHeartbeat: cfg.Registry.ResetOnHeartbeat(),
	})
	registry.SetLogger(log)
	log.Info("device registry initialised",
		"quotas", cfg.Registry.Quotas,
		"inactive_threshold", cfg.Registry.GetInactiveThreshold(),
		"removal_threshold", cfg.Registry.GetRemovalThreshold(),
	)

	forwarder := forward.NewForwarder(registry, nil, cfg.Forward.GetTimeout())
	forwarder.SetLogger(log)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// The API server is declared before the sweeper so the eviction
	// notifier can reach its WebSocket hub; the closure runs only after
	// both are started.
	var server *api.Server

	sweeper := device.NewSweeper(registry, cfg.Registry.GetSweepInterval(), func(evicted []device.Record) {
		for i := range evicted {
			rec := &evicted[i]
			silentFor := time.Since(rec.LastSeen)
			log.Info("device evicted",
				"device_id", rec.ID,
				"device_type", rec.Type,
				"silent_for", silentFor.Round(time.Second),
			)

			event := &audit.Event{
				Action:     audit.ActionEvicted,
				DeviceID:   rec.ID,
				DeviceType: rec.Type,
				Source:     "sweeper",
				Details: map[string]any{
					"silent_seconds": int(silentFor.Seconds()),
				},
			}
			if auditErr := auditRepo.Create(context.Background(), event); auditErr != nil {
				log.Warn("event history write failed", "device_id", rec.ID, "error", auditErr)
			}

			if hub := server.Hub(); hub != nil {
				hub.Broadcast("device.removed", map[string]any{
					"id":          rec.ID,
					"device_type": rec.Type,
					"reason":      "expired",
				})
			}
			if influxClient != nil {
				influxClient.WriteEviction(rec.ID, rec.Type, silentFor)
			}
			if mqttClient != nil {
				publishEviction(mqttClient, log, rec)
			}
		}
	})
	sweeper.SetLogger(log)

	server, err = api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Registry:  registry,
		Sweeper:   sweeper,
		Forwarder: forwarder,
		MQTT:      mqttClient,
		Audit:     auditRepo,
		Influx:    influxClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	sweeper.Start(ctx)
	defer sweeper.Close()
	log.Info("cleanup sweeper started", "interval", cfg.Registry.GetSweepInterval())

	// MQTT heartbeat ingress
	if mqttClient != nil {
		listener := ingest.NewHeartbeatListener(registry, log, func(rec *device.Record) {
			event := &audit.Event{
				Action:     audit.ActionRegistered,
				DeviceID:   rec.ID,
				DeviceType: rec.Type,
				Source:     "mqtt",
				Details: map[string]any{
					"address": rec.Address,
					"port":    rec.Port,
				},
			}
			if auditErr := auditRepo.Create(context.Background(), event); auditErr != nil {
				log.Warn("event history write failed", "device_id", rec.ID, "error", auditErr)
			}
			if hub := server.Hub(); hub != nil {
				hub.Broadcast("device.registered", map[string]any{
					"id":          rec.ID,
					"device_type": rec.Type,
					"source":      "mqtt",
				})
			}
		})
		if listenErr := listener.Start(mqttClient); listenErr != nil {
			return fmt.Errorf("starting heartbeat listener: %w", listenErr)
		}
		log.Info("MQTT heartbeat ingress started", "topic", mqtt.Topics{}.AllDeviceHeartbeats())
	}

	// Periodic registry snapshots for dashboards
	if influxClient != nil {
		go reportStats(ctx, registry, influxClient, cfg.Registry.GetSweepInterval())
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Sweeper
	// 2. API server (drains in-flight requests, closes WebSocket clients)
	// 3. InfluxDB (if enabled)
	// 4. MQTT (publishes offline status, if enabled)
	// 5. Database

	log.Info("vanmesh coordinator stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VANMESH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VANMESH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// publishEviction mirrors an eviction onto the MQTT event topic and
// clears the device's retained status.
func publishEviction(client *mqtt.Client, log *logging.Logger, rec *device.Record) {
	payload, err := json.Marshal(map[string]any{
		"id":          rec.ID,
		"device_type": rec.Type,
		"reason":      "expired",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if pubErr := client.Publish(mqtt.Topics{}.Event("device_evicted"), payload, 1, false); pubErr != nil {
		log.Debug("eviction publish failed", "device_id", rec.ID, "error", pubErr)
	}
	// Empty retained payload clears the topic on the broker.
	if pubErr := client.PublishRetained(mqtt.Topics{}.DeviceStatus(rec.ID), nil); pubErr != nil {
		log.Debug("status clear failed", "device_id", rec.ID, "error", pubErr)
	}
}

// reportStats writes a registry population snapshot to InfluxDB on a
// fixed cadence until the context is cancelled.
func reportStats(ctx context.Context, registry *device.Registry, influxClient *influxdb.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := registry.GetStats()
			influxClient.WriteRegistryStats(
				stats.TotalDevices,
				stats.ActiveDevices,
				stats.InactiveDevices,
				stats.DevicesByType,
			)
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// Optional clients may be nil when their integration is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
