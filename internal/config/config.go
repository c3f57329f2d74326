package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合客户端与 widget 服务的配置项。
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Widget  WidgetConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	widget, err := loadWidgetConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Backend: backend, Widget: widget, Log: logCfg}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// BackendConfig 描述预约机器人后端的连接参数。
type BackendConfig struct {
	BaseURL string
	// ChatTimeout 为 0 时不限制单次 /chat 请求的时长。
	ChatTimeout  time.Duration
	ResetTimeout time.Duration
}

func loadBackendConfig() (BackendConfig, error) {
	baseURL := getEnvOrDefault("CHAT_BACKEND_URL", "http://localhost:5000")
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return BackendConfig{}, fmt.Errorf("invalid CHAT_BACKEND_URL value %q: %w", baseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return BackendConfig{}, fmt.Errorf("invalid CHAT_BACKEND_URL value %q: scheme must be http or https", baseURL)
	}

	chatTimeout, err := parseDurationEnv("CHAT_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return BackendConfig{}, err
	}

	resetTimeout, err := parseDurationEnv("CHAT_RESET_TIMEOUT", 10*time.Second)
	if err != nil {
		return BackendConfig{}, err
	}

	return BackendConfig{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		ChatTimeout:  chatTimeout,
		ResetTimeout: resetTimeout,
	}, nil
}

// WidgetConfig 描述浏览器 widget 服务的会话与限流参数。
type WidgetConfig struct {
	SessionTTL time.Duration
	// RateLimit 为每个客户端每秒允许的请求数，0 表示关闭限流。
	RateLimit float64
	RateBurst int
}

func loadWidgetConfig() (WidgetConfig, error) {
	ttl, err := parseDurationEnv("WIDGET_SESSION_TTL", time.Hour)
	if err != nil {
		return WidgetConfig{}, err
	}

	rateLimit := 5.0
	if override, err := parseOptionalFloatEnv("WIDGET_RATE_LIMIT"); err != nil {
		return WidgetConfig{}, err
	} else if override != nil {
		if *override < 0 {
			return WidgetConfig{}, fmt.Errorf("invalid WIDGET_RATE_LIMIT value %v: must not be negative", *override)
		}
		rateLimit = *override
	}

	burst := 20
	if override, err := parseOptionalIntEnv("WIDGET_RATE_BURST"); err != nil {
		return WidgetConfig{}, err
	} else if override != nil {
		if *override < 1 {
			burst = 1
		} else {
			burst = *override
		}
	}

	return WidgetConfig{SessionTTL: ttl, RateLimit: rateLimit, RateBurst: burst}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
	File   string
}

func loadLogConfig() (LogConfig, error) {
	level := strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL value: %q", level)
	}

	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json"))
	if format != "json" && format != "console" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value: %q", format)
	}

	return LogConfig{
		Level:  level,
		Format: format,
		File:   strings.TrimSpace(os.Getenv("LOG_FILE")),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parseDurationEnv 接受 Go duration 字符串 ("30s") 或纯数字秒数 ("30")。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds < 0 {
			return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
