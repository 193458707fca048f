package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Hub configures cmd/server.
type Hub struct {
	Host            string        `yaml:"host" validate:"required"`
	BusPort         string        `yaml:"bus_port" validate:"required,numeric"`
	BrowserPort     string        `yaml:"browser_port" validate:"required,numeric"`
	RefreshInterval time.Duration `yaml:"refresh_interval" validate:"gt=0"`
	MetricsPort     string        `yaml:"metrics_port" validate:"omitempty,numeric"`
	GRPCHealthPort  string        `yaml:"grpc_health_port" validate:"omitempty,numeric"`
	RedisAddr       string        `yaml:"redis_addr" validate:"omitempty,hostname_port"`
	RedisTTL        time.Duration `yaml:"redis_ttl" validate:"gte=0"`
	MQTTBroker      string        `yaml:"mqtt_broker" validate:"omitempty,url"`
	MQTTTopic       string        `yaml:"mqtt_topic" validate:"required_with=MQTTBroker"`
	Verbose         bool          `yaml:"verbose"`
}

// FakeBus configures cmd/fakebus.
type FakeBus struct {
	Server           string        `yaml:"server" validate:"required,url"`
	RoutesNumber     int           `yaml:"routes_number" validate:"gte=0"`
	BusesPerRoute    int           `yaml:"buses_per_route" validate:"gt=0"`
	WebsocketsNumber int           `yaml:"websockets_number" validate:"gt=0"`
	EmulatorID       string        `yaml:"emulator_id" validate:"required"`
	RefreshTimeout   time.Duration `yaml:"refresh_timeout" validate:"gt=0"`
	RoutesPath       string        `yaml:"routes_path" validate:"required"`
	QueueSize        int           `yaml:"queue_size" validate:"gte=0"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff" validate:"gt=0"`
	Seed             int64         `yaml:"seed"`
	MetricsPort      string        `yaml:"metrics_port" validate:"omitempty,numeric"`
	Verbose          bool          `yaml:"verbose"`
}

// LoadHub reads the hub configuration: .env, environment, then the YAML file
// named by CONFIG_FILE on top.
func LoadHub() (Hub, error) {
	_ = godotenv.Load()

	cfg := Hub{
		Host:            getEnv("HOST", "127.0.0.1"),
		BusPort:         getEnv("BUS_PORT", "8080"),
		BrowserPort:     getEnv("BROWSER_PORT", "8000"),
		RefreshInterval: getDuration("REFRESH_INTERVAL", time.Second),
		MetricsPort:     getEnv("METRICS_PORT", "9000"),
		GRPCHealthPort:  getEnv("GRPC_HEALTH_PORT", "50051"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisTTL:        getDuration("REDIS_TTL", 10*time.Minute),
		MQTTBroker:      getEnv("MQTT_BROKER", ""),
		MQTTTopic:       getEnv("MQTT_TOPIC", "buses/+/position"),
		Verbose:         getBool("VERBOSE", false),
	}
	if err := overlay(os.Getenv("CONFIG_FILE"), &cfg); err != nil {
		return Hub{}, err
	}
	if err := validate(cfg); err != nil {
		return Hub{}, err
	}
	return cfg, nil
}

// LoadFakeBus reads the emulator configuration the same way LoadHub does.
func LoadFakeBus() (FakeBus, error) {
	_ = godotenv.Load()

	cfg := FakeBus{
		Server:           getEnv("SERVER", "ws://127.0.0.1:8080/"),
		RoutesNumber:     getInt("ROUTES_NUMBER", 0),
		BusesPerRoute:    getInt("BUSES_PER_ROUTE", 5),
		WebsocketsNumber: getInt("WEBSOCKETS_NUMBER", 5),
		EmulatorID:       getEnv("EMULATOR_ID", uuid.NewString()),
		RefreshTimeout:   getDuration("REFRESH_TIMEOUT", time.Second),
		RoutesPath:       getEnv("ROUTES_PATH", "routes"),
		QueueSize:        getInt("QUEUE_SIZE", 0),
		ReconnectBackoff: getDuration("RECONNECT_BACKOFF", 3*time.Second),
		Seed:             int64(getInt("SEED", 0)),
		MetricsPort:      getEnv("METRICS_PORT", "9001"),
		Verbose:          getBool("VERBOSE", false),
	}
	if err := overlay(os.Getenv("CONFIG_FILE"), &cfg); err != nil {
		return FakeBus{}, err
	}
	if err := validate(cfg); err != nil {
		return FakeBus{}, err
	}
	return cfg, nil
}

// BusAddr is the ingestion listen address.
func (c Hub) BusAddr() string { return c.Host + ":" + c.BusPort }

// BrowserAddr is the viewer listen address.
func (c Hub) BrowserAddr() string { return c.Host + ":" + c.BrowserPort }

func overlay(path string, cfg any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func validate(cfg any) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return fallback
}

// getDuration accepts Go durations ("1.5s") and bare seconds ("1", "0.5"),
// the way the emulator's refresh timeout has always been given.
func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
