// Package cfg loads and validates the configuration.
//
// Settings are read from an optional TOML file and from environment
// variables, environment variables take precedence.
package cfg

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml"
)

const (
	EnvOkToMergeLabel           = "OK_TO_MERGE_LABEL"
	EnvBaseBranch               = "BASE_BRANCH"
	EnvBlacklistLabels          = "BLACKLIST_LABELS"
	EnvGithubToken              = "GITHUB_TOKEN"
	EnvGithubRepository         = "GITHUB_REPOSITORY"
	EnvGithubEventName          = "GITHUB_EVENT_NAME"
	EnvGithubEventPath          = "GITHUB_EVENT_PATH"
	EnvGithubAPIURL             = "GITHUB_API_URL"
	EnvEventFilterQuery         = "EVENT_FILTER_QUERY"
	EnvLogFormat                = "LOG_FORMAT"
	EnvLogLevel                 = "LOG_LEVEL"
	EnvLogTimeKey               = "LOG_TIME_KEY"
	EnvDryRun                   = "DRY_RUN"
	EnvPollInterval             = "POLL_INTERVAL"
	EnvPrometheusPushgatewayURL = "PROMETHEUS_PUSHGATEWAY_URL"
)

const (
	DefaultGithubAPIURL = "https://api.github.com/"
	DefaultLogFormat    = "logfmt"
	DefaultLogLevel     = "info"
	DefaultLogTimeKey   = "time"
	DefaultPollInterval = "5s"
)

type Config struct {
	OkToMergeLabel           string `toml:"ok_to_merge_label"`
	BaseBranch               string `toml:"base_branch"`
	BlacklistLabels          string `toml:"blacklist_labels"`
	GithubToken              string `toml:"github_token"`
	GithubRepository         string `toml:"github_repository"`
	GithubEventName          string `toml:"github_event_name"`
	GithubEventPath          string `toml:"github_event_path"`
	GithubAPIURL             string `toml:"github_api_url"`
	EventFilterQuery         string `toml:"event_filter_query"`
	LogFormat                string `toml:"log_format"`
	LogLevel                 string `toml:"log_level"`
	LogTimeKey               string `toml:"log_time_key"`
	DryRun                   bool   `toml:"dry_run"`
	PollInterval             string `toml:"poll_interval"`
	PrometheusPushgatewayURL string `toml:"prometheus_pushgateway_url"`
}

// Error describes an invalid or missing setting.
type Error struct {
	Setting string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration setting %s: %s", e.Setting, e.Reason)
}

// Defaults returns a Config with the default values.
func Defaults() *Config {
	return &Config{
		GithubAPIURL: DefaultGithubAPIURL,
		LogFormat:    DefaultLogFormat,
		LogLevel:     DefaultLogLevel,
		LogTimeKey:   DefaultLogTimeKey,
		PollInterval: DefaultPollInterval,
	}
}

// Load reads a TOML configuration from reader.
// Settings that are missing in the file have their default values.
func Load(reader io.Reader) (*Config, error) {
	result := Defaults()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, result); err != nil {
		return nil, err
	}

	return result, nil
}

// LoadFile reads a TOML configuration file.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Load(f)
}

func (c *Config) Marshal(writer io.Writer) error {
	return toml.NewEncoder(writer).Encode(c)
}

// LoadEnvFile sets the environment variables defined in a dotenv file.
// Variables that are already set in the environment are not overwritten.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s failed: %w", path, err)
	}

	return nil
}

// ApplyEnv overwrites settings with the values of the corresponding
// environment variables. Variables that are unset or empty are ignored.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookupEnv func(string) (string, bool)) error {
	strSettings := map[string]*string{
		EnvOkToMergeLabel:           &c.OkToMergeLabel,
		EnvBaseBranch:               &c.BaseBranch,
		EnvBlacklistLabels:          &c.BlacklistLabels,
		EnvGithubToken:              &c.GithubToken,
		EnvGithubRepository:         &c.GithubRepository,
		EnvGithubEventName:          &c.GithubEventName,
		EnvGithubEventPath:          &c.GithubEventPath,
		EnvGithubAPIURL:             &c.GithubAPIURL,
		EnvEventFilterQuery:         &c.EventFilterQuery,
		EnvLogFormat:                &c.LogFormat,
		EnvLogLevel:                 &c.LogLevel,
		EnvLogTimeKey:               &c.LogTimeKey,
		EnvPollInterval:             &c.PollInterval,
		EnvPrometheusPushgatewayURL: &c.PrometheusPushgatewayURL,
	}

	for name, setting := range strSettings {
		if val, exist := lookupEnv(name); exist && val != "" {
			*setting = val
		}
	}

	if val, exist := lookupEnv(EnvDryRun); exist && val != "" {
		dryRun, err := strconv.ParseBool(val)
		if err != nil {
			return &Error{Setting: EnvDryRun, Reason: fmt.Sprintf("%q is not a boolean", val)}
		}

		c.DryRun = dryRun
	}

	return nil
}

// Validate returns an *Error if a required setting is missing or a setting
// has an invalid value.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OkToMergeLabel) == "" {
		return &Error{Setting: EnvOkToMergeLabel, Reason: "is required"}
	}

	if strings.TrimSpace(c.BaseBranch) == "" {
		return &Error{Setting: EnvBaseBranch, Reason: "is required"}
	}

	if c.GithubRepository != "" {
		if _, _, err := c.Repository(); err != nil {
			return err
		}
	}

	if _, err := c.PollIntervalDuration(); err != nil {
		return err
	}

	return nil
}

// Repository returns the owner and name of the repository from the
// GithubRepository setting.
func (c *Config) Repository() (owner, repo string, err error) {
	owner, repo, found := strings.Cut(c.GithubRepository, "/")
	if !found || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", &Error{
			Setting: EnvGithubRepository,
			Reason:  fmt.Sprintf("%q is not in the format <owner>/<repository>", c.GithubRepository),
		}
	}

	return owner, repo, nil
}

// PollIntervalDuration returns the parsed PollInterval setting.
func (c *Config) PollIntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, &Error{Setting: EnvPollInterval, Reason: err.Error()}
	}

	if d <= 0 {
		return 0, &Error{Setting: EnvPollInterval, Reason: "must be positive"}
	}

	return d, nil
}
