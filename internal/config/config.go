package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the tabtunnel service.
type Config struct {
	// HTTP surface
	BindAddr       string
	PortCandidates []string
	AutoFallback   bool

	// Rendering engine
	CDPAddress     string
	CDPPort        int
	LaunchBrowser  bool
	Headless       bool
	ProfileDir     string
	EvalTimeoutMS  int
	ProxyBase      string
	ProxyPrefix    string
	StartPage      string
	SearchTemplate string
	DevtoolsScript string

	// Tunnel collaborators; empty URLs disable them.
	InterceptorURL string
	TransportURL   string
	Transport      string

	// Persistence
	DataDir     string
	PresetsFile string

	LaunchURL string
	NtfyURL   string

	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and an optional .env
// file in the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:       getEnvOrDefault("TABTUNNEL_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates: getEnvListOrDefault("TABTUNNEL_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		AutoFallback:   getEnvBoolOrDefault("TABTUNNEL_PORT_AUTO_FALLBACK", true),
		CDPAddress:     getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:        getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		LaunchBrowser:  getEnvBoolOrDefault("TABTUNNEL_LAUNCH_BROWSER", false),
		Headless:       getEnvBoolOrDefault("TABTUNNEL_BROWSER_HEADLESS", false),
		ProfileDir:     getEnvOrDefault("TABTUNNEL_BROWSER_PROFILE_DIR", "./data/profile"),
		EvalTimeoutMS:  getEnvIntOrDefault("TABTUNNEL_EVAL_TIMEOUT_MS", 5000),
		ProxyBase:      getEnvOrDefault("TABTUNNEL_PROXY_BASE", "http://127.0.0.1:8080"),
		ProxyPrefix:    getEnvOrDefault("TABTUNNEL_PROXY_PREFIX", "/scramjet/"),
		StartPage:      getEnvOrDefault("TABTUNNEL_START_PAGE", "about:blank"),
		SearchTemplate: getEnvOrDefault("TABTUNNEL_SEARCH_TEMPLATE", "https://search.brave.com/search?q=%s"),
		DevtoolsScript: getEnvOrDefault("TABTUNNEL_DEVTOOLS_SCRIPT", "https://cdn.jsdelivr.net/npm/eruda"),
		InterceptorURL: os.Getenv("TABTUNNEL_INTERCEPTOR_URL"),
		TransportURL:   os.Getenv("TABTUNNEL_TRANSPORT_URL"),
		Transport:      getEnvOrDefault("TABTUNNEL_TRANSPORT", "epoxy"),
		DataDir:        getEnvOrDefault("TABTUNNEL_DATA_DIR", "./data"),
		PresetsFile:    getEnvOrDefault("TABTUNNEL_PRESETS_FILE", "./config/endpoints.yaml"),
		LaunchURL:      os.Getenv("TABTUNNEL_LAUNCH_URL"),
		NtfyURL:        os.Getenv("TABTUNNEL_NTFY_URL"),
		LogLevel:       strings.ToLower(getEnvOrDefault("TABTUNNEL_LOG_LEVEL", "info")),
		LogFile:        getEnvOrDefault("TABTUNNEL_LOG_FILE", "logs/tabtunnel.log"),
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}

	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint used by the chromedp remote allocator.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma-separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
