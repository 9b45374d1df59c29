// Package config provides functionality for managing configuration options
// for the application using command-line flags, a JSON config file, a .env
// file, and environment variables.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string

	// AssistantURL is the endpoint of the external assistant function.
	AssistantURL string

	// JWTSecret signs and verifies bearer tokens.
	JWTSecret string

	// LoadTimeoutSeconds bounds how long a fresh subscription may stay
	// in the loading state before it is forced ready.
	LoadTimeoutSeconds int

	// SweepIntervalMinutes is how often orphaned mirrors are repaired.
	SweepIntervalMinutes int

	// Config is the path to the Config file.
	Config string
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	flag.StringVar(&options.DatabaseDSN, "d", "", "db address")
	flag.StringVar(&options.AssistantURL, "assistant", "", "assistant function endpoint")
	flag.StringVar(&options.JWTSecret, "secret", "", "JWT signing secret")
	flag.IntVar(&options.LoadTimeoutSeconds, "load-timeout", 10, "loading fallback timeout, seconds")
	flag.IntVar(&options.SweepIntervalMinutes, "sweep-interval", 60, "mirror sweep interval, minutes")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
}

// Parse parses the command-line flags, config file, and environment
// variables to set configuration values. It returns a pointer to the
// Options struct containing the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	// A .env file, if present, populates the environment first.
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	// Environment variables win over flags and file values.
	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}
	if assistant := os.Getenv("ASSISTANT_URL"); assistant != "" {
		options.AssistantURL = assistant
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		options.JWTSecret = secret
	}

	return options
}
