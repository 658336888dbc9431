package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/lmsstorage/internal/flagx"
	"github.com/dmitrijs2005/lmsstorage/internal/timex"
)

// JsonConfig is the on-disk shape of the optional config file. Duration
// fields accept both "1h" style strings and integer nanoseconds. Only keys
// present in the file override the current values.
type JsonConfig struct {
	HTTPAddr           string         `json:"http_addr"`
	GRPCHealthAddr     string         `json:"grpc_health_addr"`
	MetricsPath        string         `json:"metrics_path"`
	DatabaseDSN        string         `json:"database_dsn"`
	SecretKey          string         `json:"secret_key"`
	LogLevel           string         `json:"log_level"`
	S3RootUser         string         `json:"s3_root_user"`
	S3RootPassword     string         `json:"s3_root_password"`
	S3Region           string         `json:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
	S3UsePathStyle     *bool          `json:"s3_use_path_style"`
	DefaultBucket      string         `json:"default_bucket"`
	MaxUploadSize      int64          `json:"max_upload_size"`
	AllowedExtensions  []string       `json:"allowed_extensions"`
	SignedURLTTL       timex.Duration `json:"signed_url_ttl"`
	AccessLogRetention timex.Duration `json:"access_log_retention"`
	CleanupSchedule    string         `json:"cleanup_schedule"`
	TrustedProxies     []string       `json:"trusted_proxies"`
}

// parseJSON overlays the file named by -c/-config in args onto config.
// Without the flag nothing is loaded.
func parseJSON(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCHealthAddr, c.GRPCHealthAddr)
	setString(&config.MetricsPath, c.MetricsPath)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.DefaultBucket, c.DefaultBucket)
	setString(&config.CleanupSchedule, c.CleanupSchedule)

	if c.S3UsePathStyle != nil {
		config.S3UsePathStyle = *c.S3UsePathStyle
	}
	if c.MaxUploadSize > 0 {
		config.MaxUploadSize = c.MaxUploadSize
	}
	if len(c.AllowedExtensions) > 0 {
		config.AllowedExtensions = normalizeExtensions(c.AllowedExtensions)
	}
	if len(c.TrustedProxies) > 0 {
		config.TrustedProxies = append([]string(nil), c.TrustedProxies...)
	}
	if c.SignedURLTTL.Duration > 0 {
		config.SignedURLTTL = c.SignedURLTTL.Duration
	}
	if c.AccessLogRetention.Duration > 0 {
		config.AccessLogRetention = c.AccessLogRetention.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
