// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"xdp-service/internal/domain"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port               string
	DatabaseURL        string
	KMSKeyName         string
	GoogleCloudProject string
	LogLevel           string

	// マシンとドメイン
	MachineName    string
	DomainName     string
	DomainURL      string
	NetworkTimeout time.Duration
	ThreadPoolSize int

	// 暗号設定
	EncryptionAlgorithm      string
	EncryptionMode           string
	SignatureAlgorithm       string
	UpdateClientCryptoConfig bool

	// ドメインサービス
	DataRecoveryGroup string
	Protector         string
	KeyringDir        string
	AuthSecret        string
	RateLimit         float64
	RateBurst         int

	// OpenTelemetry
	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		KMSKeyName:         os.Getenv("KMS_KEY_NAME"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),

		MachineName:    getEnv("XDP_MACHINE_NAME", hostname()),
		DomainName:     os.Getenv("XDP_DOMAIN_NAME"),
		DomainURL:      os.Getenv("XDP_DOMAIN_URL"),
		NetworkTimeout: getDuration("XDP_NETWORK_TIMEOUT", 30*time.Second),
		ThreadPoolSize: getInt("XDP_THREAD_POOL_SIZE", 10),

		EncryptionAlgorithm:      getEnv("XDP_ENCRYPTION_ALGORITHM", domain.DefaultEncryptionAlgorithm),
		EncryptionMode:           getEnv("XDP_ENCRYPTION_MODE", domain.DefaultEncryptionMode),
		SignatureAlgorithm:       getEnv("XDP_SIGNATURE_ALGORITHM", domain.DefaultSignatureAlgorithm),
		UpdateClientCryptoConfig: getBool("XDP_UPDATE_CLIENT_CRYPTO", true),

		DataRecoveryGroup: os.Getenv("XDP_DATA_RECOVERY_GROUP"),
		Protector:         getEnv("XDP_PROTECTOR", "keyring"),
		KeyringDir:        getEnv("XDP_KEYRING_DIR", defaultKeyringDir()),
		AuthSecret:        os.Getenv("XDP_AUTH_SECRET"),
		RateLimit:         getFloat("XDP_RATE_LIMIT", 20),
		RateBurst:         getInt("XDP_RATE_BURST", 40),

		OtelEnabled:      getBool("OTEL_ENABLED", false),
		OtelEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OtelServiceName:  getEnv("OTEL_SERVICE_NAME", "xdp-service"),
		OtelSamplingRate: getFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

// CryptoSettings は設定された暗号設定を返す。
func (c *Config) CryptoSettings() domain.CryptoSettings {
	return domain.CryptoSettings{
		EncryptionAlgorithm: c.EncryptionAlgorithm,
		EncryptionMode:      c.EncryptionMode,
		SignatureAlgorithm:  c.SignatureAlgorithm,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultVal
}

// getDuration は "30s" 形式とミリ秒の整数の両方を受け付ける。
func getDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(val); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	// FQDN の場合はホスト名部分だけを使う
	if i := strings.Index(h, "."); i > 0 {
		h = h[:i]
	}
	return strings.ToUpper(h)
}

func defaultKeyringDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".xdp"
	}
	return dir + string(os.PathSeparator) + "xdp"
}
