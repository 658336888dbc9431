package config

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/lmsstorage/internal/flagx"
)

var serverFlags = []string{
	"-a", "-G", "-d", "-s", "-l", "-u", "-p", "-R", "-e", "-b", "-m", "-x", "-t", "-k", "-j", "-P",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-G string   gRPC health bind address
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-l string   log level (debug, info, warn, error)
//	-u string   S3 root user
//	-p string   S3 root password
//	-R string   S3 region
//	-e string   S3 base endpoint
//	-b string   default bucket
//	-m int      max upload size, MiB
//	-x string   comma-separated allowed extensions (".pdf,.txt")
//	-t int      signed URL lifetime, minutes
//	-k int      access-log retention, days
//	-j string   cleanup cron schedule
//	-P string   comma-separated trusted proxies ("10.0.0.0/8,192.0.2.1")
//
// Arguments are filtered with flagx.FilterArgs first so flags owned by other
// components (-c, test flags) do not cause parse errors.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCHealthAddr, "G", config.GRPCHealthAddr, "gRPC health address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "JWT secret key")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Region, "R", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.DefaultBucket, "b", config.DefaultBucket, "default bucket")
	fs.StringVar(&config.CleanupSchedule, "j", config.CleanupSchedule, "access-log cleanup cron schedule")

	maxUploadMiB := fs.Int64("m", config.MaxUploadSize/(1024*1024), "max upload size (in MiB)")
	extensions := fs.String("x", strings.Join(config.AllowedExtensions, ","), "allowed file extensions")
	ttlMinutes := fs.Int("t", int(config.SignedURLTTL.Minutes()), "signed URL lifetime (in minutes)")
	proxies := fs.String("P", strings.Join(config.TrustedProxies, ","), "trusted proxies")
	retentionDays := fs.Int("k", int(config.AccessLogRetention.Hours()/24), "access log retention (in days)")

	if err := fs.Parse(flagx.FilterArgs(args, serverFlags)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["m"] {
		config.MaxUploadSize = *maxUploadMiB * 1024 * 1024
	}
	if set["x"] {
		config.AllowedExtensions = normalizeExtensions(strings.Split(*extensions, ","))
	}
	if set["P"] {
		config.TrustedProxies = splitList(*proxies)
	}
	if set["t"] {
		config.SignedURLTTL = time.Duration(*ttlMinutes) * time.Minute
	}
	if set["k"] {
		config.AccessLogRetention = time.Duration(*retentionDays) * 24 * time.Hour
	}
	return nil
}

// normalizeExtensions lower-cases entries, adds a missing leading dot and
// drops blanks.
func normalizeExtensions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func splitList(s string) []string {
	out := make([]string, 0)
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
