package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// WebSocket timing, shared by every connection.
const (
	WriteWait      = 10 * time.Second    // Time allowed to write a message to the peer
	PongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer
	PingPeriod     = (PongWait * 9) / 10 // Send pings to peer with this period, must be less than PongWait
	MaxMessageSize = 4096                // Maximum message size allowed from peer
)

const (
	DriverBadger = "badger"
	DriverMongo  = "mongo"
)

type Config struct {
	ServerAddr     string        `env:"SERVER_ADDR,default=:8080" validate:"required"`
	LogLevel       string        `env:"LOG_LEVEL,default=INFO"`
	StoreDriver    string        `env:"STORE_DRIVER,default=badger" validate:"oneof=badger mongo"`
	BadgerFilepath string        `env:"BADGER_FILEPATH,default=./data/messages" validate:"required_if=StoreDriver badger"`
	MongoURL       string        `env:"MONGO_URL" validate:"required_if=StoreDriver mongo"`
	MongoDatabase  string        `env:"MONGO_DATABASE,default=chat"`
	NatsURL        string        `env:"NATS_URL"`
	SubjectPrefix  string        `env:"SUBJECT_PREFIX,default=chat.presence" validate:"required"`
	SendBufferSize int           `env:"SEND_BUFFER_SIZE,default=256" validate:"gt=0"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=5s" validate:"gt=0"`
	AllowedOrigins string        `env:"ALLOWED_ORIGINS,default=*"`
}

// Load reads an optional .env file, then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// BridgeEnabled reports whether relay events are shared with other instances.
func (c Config) BridgeEnabled() bool {
	return c.NatsURL != ""
}
