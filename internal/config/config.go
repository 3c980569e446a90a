package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIME_ZONE must resolve in minimal containers

	"github.com/couchcryptid/occupancy-service/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string

	// Building layout and label rendering.
	Building domain.Building
	Location *time.Location

	FeedMaxRecords int
	FeedSeedFile   string

	// Kafka ingestion configuration.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaReadingsTopic string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// MQTT sensor ingestion configuration.
	MQTTEnabled  bool
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
}

// LoadDotEnv loads .env and then .env.local from the working directory.
// Values already present in the environment win over .env; .env.local
// overrides both. Missing files are ignored.
func LoadDotEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	building, err := parseBuilding(os.Getenv("FLOORS"), os.Getenv("FLOOR_CAPACITIES"))
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(sharedcfg.EnvOrDefault("TIME_ZONE", "America/Los_Angeles"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIME_ZONE: %w", err)
	}

	maxRecords, err := parseFeedMaxRecords()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	brokers := sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092"))
	mqttBroker := os.Getenv("MQTT_BROKER")

	cfg := &Config{
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		CORSAllowedOrigins: parseList(sharedcfg.EnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),

		Building: building,
		Location: loc,

		FeedMaxRecords: maxRecords,
		FeedSeedFile:   os.Getenv("FEED_SEED_FILE"),

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       brokers,
		KafkaReadingsTopic: sharedcfg.EnvOrDefault("KAFKA_READINGS_TOPIC", "occupancy-readings"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "occupancy-service"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MQTTEnabled:  mqttBroker != "",
		MQTTBroker:   mqttBroker,
		MQTTTopic:    sharedcfg.EnvOrDefault("MQTT_TOPIC", "occupancy/readings"),
		MQTTClientID: sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", "occupancy-service"),
	}
	if v := os.Getenv("MQTT_ENABLED"); v != "" {
		cfg.MQTTEnabled = v == "true"
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaReadingsTopic == "" {
			return nil, errors.New("KAFKA_READINGS_TOPIC is required")
		}
	}
	if cfg.MQTTEnabled && cfg.MQTTBroker == "" {
		return nil, errors.New("MQTT_ENABLED is true but MQTT_BROKER is not set")
	}

	return cfg, nil
}

// parseFeedMaxRecords reads FEED_MAX_RECORDS. 0 keeps every record.
func parseFeedMaxRecords() (int, error) {
	s := os.Getenv("FEED_MAX_RECORDS")
	if s == "" {
		return 10000, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 10_000_000 {
		return 0, errors.New("invalid FEED_MAX_RECORDS: must be 0-10000000")
	}
	return n, nil
}

// parseList splits a comma-separated value with the same rules as KAFKA_BROKERS.
func parseList(s string) []string {
	return sharedcfg.ParseBrokers(s)
}

// parseBuilding reads FLOORS ("1,2,4") and FLOOR_CAPACITIES ("1:865,2:1080").
// With both unset the default building is used.
func parseBuilding(floorsEnv, capacitiesEnv string) (domain.Building, error) {
	if floorsEnv == "" && capacitiesEnv == "" {
		return domain.DefaultBuilding(), nil
	}

	def := domain.DefaultBuilding()
	floors := def.Floors
	if floorsEnv != "" {
		floors = nil
		for _, f := range parseList(floorsEnv) {
			floors = append(floors, domain.FloorID(f))
		}
	}

	capacity := make(map[domain.FloorID]int)
	if capacitiesEnv == "" {
		for _, f := range floors {
			if c, ok := def.Capacity[f]; ok {
				capacity[f] = c
			}
		}
	}
	for _, pair := range parseList(capacitiesEnv) {
		floor, value, ok := strings.Cut(pair, ":")
		if !ok {
			return domain.Building{}, fmt.Errorf("invalid FLOOR_CAPACITIES entry %q: want floor:capacity", pair)
		}
		c, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return domain.Building{}, fmt.Errorf("invalid FLOOR_CAPACITIES entry %q: %w", pair, err)
		}
		capacity[domain.FloorID(strings.TrimSpace(floor))] = c
	}

	b, err := domain.NewBuilding(floors, capacity)
	if err != nil {
		return domain.Building{}, fmt.Errorf("invalid FLOORS/FLOOR_CAPACITIES: %w", err)
	}
	return b, nil
}
