// Package config assembles settings from an optional YAML file and the environment.
// Environment variables always win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is read when present and no other file is named.
const DefaultFile = "eduplanner.yml"

// Config is the full application configuration.
type Config struct {
	EventsFile string `yaml:"events_file"`
	Timezone   string `yaml:"timezone"`
	LogLevel   string `yaml:"log_level"`
	ListenAddr string `yaml:"listen_addr"`

	Calendar  Calendar  `yaml:"calendar"`
	Inference Inference `yaml:"inference"`
}

// Calendar selects the calendar backend and carries the credentials for each one.
type Calendar struct {
	Backend string `yaml:"backend"` // google or caldav

	CalendarID      string `yaml:"calendar_id"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	CredentialsFile string `yaml:"credentials_file"`
	SessionStore    string `yaml:"session_store"` // file or bolt
	SessionPath     string `yaml:"session_path"`

	CalDAVEndpoint string `yaml:"caldav_endpoint"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	CalendarName   string `yaml:"calendar_name"`
}

// Inference configures the text-generation endpoint used by chat.
type Inference struct {
	URL               string        `yaml:"url"`
	APIKey            string        `yaml:"api_key"`
	MaxNewTokens      int           `yaml:"max_new_tokens"`
	Temperature       float64       `yaml:"temperature"`
	RepetitionPenalty float64       `yaml:"repetition_penalty"`
	Timeout           time.Duration `yaml:"timeout"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		EventsFile: "events.json",
		Timezone:   "Local",
		LogLevel:   "info",
		ListenAddr: ":8080",
		Calendar: Calendar{
			Backend:         "google",
			CalendarID:      "primary",
			CredentialsFile: "credentials.json",
			SessionStore:    "file",
			SessionPath:     "token.json",
		},
		Inference: Inference{
			MaxNewTokens:      300,
			Temperature:       0.3,
			RepetitionPenalty: 1.2,
			Timeout:           60 * time.Second,
		},
	}
}

// Load reads path (or DefaultFile when path is empty and the file exists) over the
// defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	file := path
	if file == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			file = DefaultFile
		}
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("unable to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unable to parse config file %s: %w", file, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.EventsFile, "EVENTS_FILE")
	setString(&c.Timezone, "PRIMARY_TIMEZONE")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.ListenAddr, "LISTEN_ADDR")

	setString(&c.Calendar.Backend, "CALENDAR_BACKEND")
	setString(&c.Calendar.CalendarID, "GOOGLE_CALENDAR_ID")
	setString(&c.Calendar.ClientID, "GOOGLE_CLIENT_ID")
	setString(&c.Calendar.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.Calendar.CredentialsFile, "GOOGLE_CREDENTIALS_FILE")
	setString(&c.Calendar.SessionStore, "SESSION_STORE")
	setString(&c.Calendar.SessionPath, "SESSION_PATH")
	setString(&c.Calendar.CalDAVEndpoint, "CALDAV_ENDPOINT")
	setString(&c.Calendar.Username, "ICLOUD_USERNAME")
	setString(&c.Calendar.Password, "ICLOUD_APP_SPECIFIC_PASSWORD")
	setString(&c.Calendar.CalendarName, "ICLOUD_CALENDAR_NAME")

	setString(&c.Inference.URL, "HF_API_URL")
	setString(&c.Inference.APIKey, "HF_API_KEY")

	if v := os.Getenv("HF_MAX_NEW_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HF_MAX_NEW_TOKENS %q: %w", v, err)
		}
		c.Inference.MaxNewTokens = n
	}
	if err := setFloat(&c.Inference.Temperature, "HF_TEMPERATURE"); err != nil {
		return err
	}
	if err := setFloat(&c.Inference.RepetitionPenalty, "HF_REPETITION_PENALTY"); err != nil {
		return err
	}
	if v := os.Getenv("HF_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid HF_TIMEOUT %q: %w", v, err)
		}
		c.Inference.Timeout = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = f
	return nil
}

// Location resolves Timezone; "Local" and "" mean the process zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}
	return loc, nil
}

// ValidateCalendar checks the settings the selected calendar backend needs.
func (c *Config) ValidateCalendar() error {
	switch c.Calendar.Backend {
	case "google":
		switch c.Calendar.SessionStore {
		case "file", "bolt":
		default:
			return fmt.Errorf("unknown session store %q (want file or bolt)", c.Calendar.SessionStore)
		}
		if c.Calendar.SessionPath == "" {
			return errors.New("SESSION_PATH must not be empty")
		}
	case "caldav":
		if c.Calendar.Username == "" || c.Calendar.Password == "" || c.Calendar.CalendarName == "" {
			return errors.New("caldav backend needs ICLOUD_USERNAME, ICLOUD_APP_SPECIFIC_PASSWORD and ICLOUD_CALENDAR_NAME")
		}
	default:
		return fmt.Errorf("unknown calendar backend %q (want google or caldav)", c.Calendar.Backend)
	}
	return nil
}

// ValidateInference checks the settings chat needs.
func (c *Config) ValidateInference() error {
	if c.Inference.URL == "" {
		return errors.New("HF_API_URL environment variable not set")
	}
	if c.Inference.MaxNewTokens <= 0 {
		return fmt.Errorf("max_new_tokens must be positive, got %d", c.Inference.MaxNewTokens)
	}
	return nil
}
