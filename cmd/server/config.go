package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

// Config holds all configuration options
type Config struct {
	// Server config
	Port        string   `long:"port" env:"PORT" default:"8080" description:"Server port"`
	CORSOrigins []string `long:"cors-origin" env:"CORS_ORIGINS" env-delim:"," description:"Origins allowed to call the API from a browser (* for any)"`
	Gzip        bool     `long:"gzip" env:"GZIP" description:"Compress responses"`
	LogFormat   string   `long:"log-format" env:"LOG_FORMAT" default:"json" choice:"json" choice:"console" description:"Log encoding"`
	LogLevel    string   `long:"log-level" env:"LOG_LEVEL" default:"info" description:"Minimum log level"`

	// OAuth config
	ClientsFile string `long:"clients-file" env:"CLIENTS_FILE" default:"./clients.yaml" description:"YAML file of OAuth clients to provision at startup"`
	BcryptCost  int    `long:"bcrypt-cost" env:"BCRYPT_COST" default:"10" description:"bcrypt work factor for new password hashes"`

	// Storage config
	StorageMode string `long:"storage-mode" env:"STORAGE_MODE" default:"memory" choice:"memory" choice:"redis" choice:"sqlite" choice:"postgres" description:"Credential storage backend"`
	SecretMode  string `long:"secret-mode" env:"SECRET_MODE" default:"static" choice:"static" choice:"file" choice:"s3" description:"Signing secret source"`

	// Signing secret
	JWTSecret  string `long:"jwt-secret" env:"JWT_SECRET" description:"Signing secret for static secret mode"`
	SecretFile string `long:"secret-file" env:"SECRET_FILE" default:"./jwt-secret" description:"Signing secret file for file secret mode"`

	// SQL storage
	SQLitePath  string `long:"sqlite-path" env:"SQLITE_PATH" default:"./oauth.db" description:"SQLite database file"`
	PostgresDSN string `long:"postgres-dsn" env:"POSTGRES_DSN" default:"postgres://localhost:5432/oauth?sslmode=disable" description:"Postgres connection string"`

	// S3 secret storage
	S3 struct {
		Endpoint  string `long:"s3-endpoint" env:"S3_ENDPOINT" default:"localhost:9000" description:"S3 endpoint (host:port)"`
		Bucket    string `long:"s3-bucket" env:"S3_BUCKET" default:"oauth-secrets" description:"S3 bucket name"`
		Key       string `long:"s3-key" env:"S3_KEY" default:"jwt-secret" description:"Object holding the signing secret"`
		AccessKey string `long:"s3-access-key" env:"S3_ACCESS_KEY" default:"minioadmin" description:"S3 access key"`
		SecretKey string `long:"s3-secret-key" env:"S3_SECRET_KEY" default:"minioadmin" description:"S3 secret key"`
		UseSSL    bool   `long:"s3-use-ssl" env:"S3_USE_SSL" description:"Use SSL for S3 connections"`
	} `group:"S3 Secret Options"`

	// Redis config
	Redis struct {
		Addr     string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address"`
		Password string `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
		DB       int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database number"`
		Prefix   string `long:"redis-prefix" env:"REDIS_PREFIX" default:"oauth:" description:"Key prefix for every record"`
	} `group:"Redis Options"`
}

// LoadConfig parses configuration from environment variables and command line flags
func LoadConfig() (*Config, error) {
	config, err := parseConfig(os.Args[1:])
	if err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		return nil, err
	}
	return config, nil
}

func parseConfig(args []string) (*Config, error) {
	var config Config

	parser := flags.NewParser(&config, flags.Default)
	parser.Usage = "[OPTIONS]"

	if _, err := parser.ParseArgs(args); err != nil {
		if flags.WroteHelp(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.SecretMode == "static" && config.JWTSecret == "" {
		return nil, fmt.Errorf("failed to parse config: --jwt-secret is required in static secret mode")
	}

	return &config, nil
}
