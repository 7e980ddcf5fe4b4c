package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SessionBackendSQLite = "sqlite"
	SessionBackendRedis  = "redis"
)

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	Retries        int
	NoCache        bool
	LogLevel       string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	Timeout        time.Duration
	Retries        int
	LogLevel       string

	CacheEnabled  bool
	CachePath     string
	CacheLockPath string
	HoldingsTTL   time.Duration

	SessionBackend   string
	SessionPath      string
	SessionLockPath  string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisPrefix      string
	SessionTTL       time.Duration
	FlowHistorySize  int
	ListingDuration  time.Duration
	OfferDuration    time.Duration
	OpenSeaAPIKey    string
	OpenSeaBaseURL   string
	Chain            string
	Wallet           string
	RPCURL           string
	KeySource        string
	AllowCollections []string
	DenyCollections  []string
}

type fileConfig struct {
	Output   string `yaml:"output"`
	Timeout  string `yaml:"timeout"`
	Retries  *int   `yaml:"retries"`
	LogLevel string `yaml:"log_level"`
	Chain    string `yaml:"chain"`
	Wallet   string `yaml:"wallet"`
	Cache    struct {
		Enabled     *bool  `yaml:"enabled"`
		Path        string `yaml:"path"`
		LockPath    string `yaml:"lock_path"`
		HoldingsTTL string `yaml:"holdings_ttl"`
	} `yaml:"cache"`
	Sessions struct {
		Backend  string `yaml:"backend"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		TTL      string `yaml:"ttl"`
		Redis    struct {
			Addr        string `yaml:"addr"`
			Password    string `yaml:"password"`
			PasswordEnv string `yaml:"password_env"`
			DB          *int   `yaml:"db"`
			Prefix      string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"sessions"`
	Flow struct {
		HistorySize *int `yaml:"history_size"`
	} `yaml:"flow"`
	Listing struct {
		Duration      string `yaml:"duration"`
		OfferDuration string `yaml:"offer_duration"`
	} `yaml:"listing"`
	Execution struct {
		RPCURL    string `yaml:"rpc_url"`
		KeySource string `yaml:"key_source"`
	} `yaml:"execution"`
	Marketplace struct {
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
		BaseURL   string `yaml:"base_url"`
	} `yaml:"marketplace"`
	Collections struct {
		Allow []string `yaml:"allow"`
		Deny  []string `yaml:"deny"`
	} `yaml:"collections"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}
	applyEnv(&settings)
	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.FlowHistorySize < 1 {
		settings.FlowHistorySize = 1
	}
	switch settings.SessionBackend {
	case SessionBackendSQLite, SessionBackendRedis:
	default:
		return Settings{}, fmt.Errorf("sessions.backend must be sqlite or redis, got %q", settings.SessionBackend)
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	dir, err := defaultCacheDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:      "json",
		Timeout:         10 * time.Second,
		Retries:         2,
		LogLevel:        "warn",
		CacheEnabled:    true,
		CachePath:       filepath.Join(dir, "cache.db"),
		CacheLockPath:   filepath.Join(dir, "cache.lock"),
		HoldingsTTL:     10 * time.Minute,
		SessionBackend:  SessionBackendSQLite,
		SessionPath:     filepath.Join(dir, "sessions.db"),
		SessionLockPath: filepath.Join(dir, "sessions.lock"),
		RedisAddr:       "127.0.0.1:6379",
		RedisPrefix:     "nft:",
		SessionTTL:      7 * 24 * time.Hour,
		FlowHistorySize: 20,
		ListingDuration: 7 * 24 * time.Hour,
		OfferDuration:   3 * 24 * time.Hour,
		Chain:           "ethereum",
		KeySource:       "auto",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "nft", "config.yaml"), nil
}

func defaultCacheDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "nft"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	setString(&settings.LogLevel, cfg.LogLevel)
	setString(&settings.Chain, cfg.Chain)
	setString(&settings.Wallet, cfg.Wallet)
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	setString(&settings.CachePath, cfg.Cache.Path)
	setString(&settings.CacheLockPath, cfg.Cache.LockPath)
	setString(&settings.SessionBackend, strings.ToLower(cfg.Sessions.Backend))
	setString(&settings.SessionPath, cfg.Sessions.Path)
	setString(&settings.SessionLockPath, cfg.Sessions.LockPath)
	setString(&settings.RedisAddr, cfg.Sessions.Redis.Addr)
	setString(&settings.RedisPassword, cfg.Sessions.Redis.Password)
	if cfg.Sessions.Redis.PasswordEnv != "" {
		settings.RedisPassword = os.Getenv(cfg.Sessions.Redis.PasswordEnv)
	}
	if cfg.Sessions.Redis.DB != nil {
		settings.RedisDB = *cfg.Sessions.Redis.DB
	}
	setString(&settings.RedisPrefix, cfg.Sessions.Redis.Prefix)
	if cfg.Flow.HistorySize != nil {
		settings.FlowHistorySize = *cfg.Flow.HistorySize
	}
	setString(&settings.RPCURL, cfg.Execution.RPCURL)
	setString(&settings.KeySource, cfg.Execution.KeySource)
	setString(&settings.OpenSeaAPIKey, cfg.Marketplace.APIKey)
	if cfg.Marketplace.APIKeyEnv != "" {
		settings.OpenSeaAPIKey = os.Getenv(cfg.Marketplace.APIKeyEnv)
	}
	setString(&settings.OpenSeaBaseURL, cfg.Marketplace.BaseURL)
	if len(cfg.Collections.Allow) > 0 {
		settings.AllowCollections = normalizeList(cfg.Collections.Allow)
	}
	if len(cfg.Collections.Deny) > 0 {
		settings.DenyCollections = normalizeList(cfg.Collections.Deny)
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"timeout", cfg.Timeout, &settings.Timeout},
		{"cache.holdings_ttl", cfg.Cache.HoldingsTTL, &settings.HoldingsTTL},
		{"sessions.ttl", cfg.Sessions.TTL, &settings.SessionTTL},
		{"listing.duration", cfg.Listing.Duration, &settings.ListingDuration},
		{"listing.offer_duration", cfg.Listing.OfferDuration, &settings.OfferDuration},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("NFT_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("NFT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("NFT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("NFT_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("NFT_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.RedisDB = n
		}
	}
	if v := os.Getenv("NFT_FLOW_HISTORY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.FlowHistorySize = n
		}
	}
	if v := os.Getenv("NFT_HOLDINGS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.HoldingsTTL = d
		}
	}
	if v := os.Getenv("NFT_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.SessionTTL = d
		}
	}
	if v := os.Getenv("NFT_LISTING_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.ListingDuration = d
		}
	}
	if v := os.Getenv("NFT_ALLOW_COLLECTIONS"); v != "" {
		settings.AllowCollections = splitCSV(v)
	}
	if v := os.Getenv("NFT_DENY_COLLECTIONS"); v != "" {
		settings.DenyCollections = splitCSV(v)
	}

	stringVars := map[string]*string{
		"NFT_LOG_LEVEL":       &settings.LogLevel,
		"NFT_CACHE_PATH":      &settings.CachePath,
		"NFT_CACHE_LOCK_PATH": &settings.CacheLockPath,
		"NFT_SESSION_PATH":    &settings.SessionPath,
		"NFT_SESSION_LOCK":    &settings.SessionLockPath,
		"NFT_REDIS_ADDR":      &settings.RedisAddr,
		"NFT_REDIS_PASSWORD":  &settings.RedisPassword,
		"NFT_REDIS_PREFIX":    &settings.RedisPrefix,
		"NFT_OPENSEA_API_KEY": &settings.OpenSeaAPIKey,
		"NFT_OPENSEA_URL":     &settings.OpenSeaBaseURL,
		"NFT_CHAIN":           &settings.Chain,
		"NFT_WALLET":          &settings.Wallet,
		"NFT_RPC_URL":         &settings.RPCURL,
		"NFT_KEY_SOURCE":      &settings.KeySource,
	}
	for key, dst := range stringVars {
		setString(dst, os.Getenv(key))
	}
	if v := os.Getenv("NFT_SESSION_BACKEND"); v != "" {
		settings.SessionBackend = toLower(v)
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitCSV(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly
	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitCSV(flags.EnableCommands)
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	setString(&settings.LogLevel, flags.LogLevel)

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}

func setString(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func toLower(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

func splitCSV(raw string) []string {
	return normalizeList(strings.Split(raw, ","))
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if v := strings.TrimSpace(item); v != "" {
			out = append(out, v)
		}
	}
	return out
}
