package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"ecs_event_collector/internal/logger"
	"ecs_event_collector/internal/models"

	"github.com/spf13/viper"
)

// DefaultPath is where the collector looks for its settings.
const DefaultPath = "/etc/ecs-event-collector/config.yaml"

// envPrefix namespaces environment overrides, e.g. ECS_COLLECTOR_PASSWORD.
const envPrefix = "ECS_COLLECTOR"

// Setting keys as they appear in the YAML file.
const (
	KeyHost               = "hostname"
	KeyUser               = "username"
	KeyPassword           = "password"
	KeyPort               = "port"
	KeyStartTime          = "starttime"
	KeyStartOffset        = "startoffset"
	KeyPeriod             = "period"
	KeyFormat             = "format"
	KeyTimezone           = "timezone"
	KeyInsecureSkipVerify = "insecureskipverify"
	KeyCAFile             = "cafile"
	KeyMailTo             = "mailto"
	KeyMailServer         = "mailserver"
	KeyMailFrom           = "mailfrom"
	KeySubject            = "subject"
	KeyS3Bucket           = "s3bucket"
	KeyS3Endpoint         = "s3endpoint"
	KeyS3AccessKey        = "s3accesskey"
	KeyS3SecretKey        = "s3secretkey"
	KeyS3Prefix           = "s3prefix"
	KeyS3Region           = "s3region"
	KeyLogLevel           = "loglevel"
	KeyDBPath             = "dbpath"
	KeyStatusPort         = "statusport"
)

const (
	defaultPort       = 4443
	defaultStartTime  = 60
	defaultPeriod     = 1440
	defaultMailPort   = 25
	defaultMailServer = "localhost"
	defaultMailFrom   = "ecs-event-collector@localhost"
	defaultSubject    = "ECS audit events"
	defaultS3Region   = "us-east-1"
	defaultDBPath     = "ecs-event-collector.db"

	// starttime may move the first run up to one day either way.
	maxStartTimeMinutes = 24 * 60

	startOffsetWarning = "startoffset is ignored; use starttime to move the first run"
	insecureTLSWarning = "TLS certificate verification of the management API is disabled"
)

// Secret hides its value from fmt and structured loggers.
type Secret string

// String masks the secret.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "******"
}

// Reveal returns the plain value for use on the wire.
func (s Secret) Reveal() string { return string(s) }

// Config is the validated, read-only settings snapshot. It is built once at
// startup and passed explicitly to every component.
type Config struct {
	Host     string
	User     string
	Password Secret
	Port     int

	// StartTimeOffsetMinutes moves the first run relative to local midnight.
	StartTimeOffsetMinutes int
	PeriodMinutes          int
	ReportFormat           models.ReportFormat
	Location               *time.Location

	InsecureSkipVerify bool
	CAFile             string

	Mail *MailConfig // nil when mail delivery is not configured
	S3   *S3Config   // nil when upload is not configured

	LogLevel   string
	DBPath     string
	StatusPort string

	// Warnings collected while loading, logged by the caller once a logger exists.
	Warnings []string
}

// MailConfig enables delivery by email.
type MailConfig struct {
	To      []string
	Host    string
	Port    int
	From    string
	Subject string
}

// S3Config enables upload to an S3-compatible bucket.
type S3Config struct {
	Bucket    string
	Endpoint  string
	AccessKey string
	SecretKey Secret
	Prefix    string
	Region    string
}

// Period returns the tick period as a duration.
func (c Config) Period() time.Duration {
	return time.Duration(c.PeriodMinutes) * time.Minute
}

// Load reads the YAML file at path, applies ECS_COLLECTOR_* environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, &Error{Reason: fmt.Sprintf("read %s", path), Err: err}
	}
	return FromViper(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyPort, defaultPort)
	v.SetDefault(KeyStartTime, defaultStartTime)
	v.SetDefault(KeyPeriod, defaultPeriod)
	v.SetDefault(KeyFormat, string(models.FormatHTML))
	v.SetDefault(KeyMailServer, defaultMailServer)
	v.SetDefault(KeyMailFrom, defaultMailFrom)
	v.SetDefault(KeySubject, defaultSubject)
	v.SetDefault(KeyS3Region, defaultS3Region)
	v.SetDefault(KeyLogLevel, logger.InfoLevel)
	v.SetDefault(KeyDBPath, defaultDBPath)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	for _, key := range []string{KeyHost, KeyUser, KeyPassword} {
		if strings.TrimSpace(v.GetString(key)) == "" {
			return Config{}, &Error{Key: key, Reason: "required property missing"}
		}
	}

	cfg := Config{
		Host:                   strings.TrimSpace(v.GetString(KeyHost)),
		User:                   v.GetString(KeyUser),
		Password:               Secret(v.GetString(KeyPassword)),
		Port:                   v.GetInt(KeyPort),
		StartTimeOffsetMinutes: v.GetInt(KeyStartTime),
		PeriodMinutes:          v.GetInt(KeyPeriod),
		InsecureSkipVerify:     v.GetBool(KeyInsecureSkipVerify),
		CAFile:                 v.GetString(KeyCAFile),
		LogLevel:               strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		DBPath:                 v.GetString(KeyDBPath),
		StatusPort:             strings.TrimSpace(v.GetString(KeyStatusPort)),
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return Config{}, &Error{Key: KeyPort, Reason: fmt.Sprintf("%d is not a valid TCP port", cfg.Port)}
	}
	if cfg.PeriodMinutes <= 0 {
		return Config{}, &Error{Key: KeyPeriod, Reason: "must be a positive number of minutes"}
	}
	if cfg.StartTimeOffsetMinutes < -maxStartTimeMinutes || cfg.StartTimeOffsetMinutes > maxStartTimeMinutes {
		return Config{}, &Error{Key: KeyStartTime, Reason: fmt.Sprintf("must be within [-%d, %d] minutes", maxStartTimeMinutes, maxStartTimeMinutes)}
	}

	format, err := models.ParseReportFormat(v.GetString(KeyFormat))
	if err != nil {
		return Config{}, &Error{Key: KeyFormat, Reason: "invalid value", Err: err}
	}
	cfg.ReportFormat = format

	cfg.Location = time.Local
	if tz := strings.TrimSpace(v.GetString(KeyTimezone)); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Config{}, &Error{Key: KeyTimezone, Reason: "unknown time zone", Err: err}
		}
		cfg.Location = loc
	}

	if !logger.ValidLevel(cfg.LogLevel) {
		return Config{}, &Error{Key: KeyLogLevel, Reason: fmt.Sprintf("%q is not one of debug, info, warn, error", cfg.LogLevel)}
	}

	if cfg.StatusPort != "" {
		if p, err := strconv.Atoi(strings.TrimPrefix(cfg.StatusPort, ":")); err != nil || p < 1 || p > 65535 {
			return Config{}, &Error{Key: KeyStatusPort, Reason: fmt.Sprintf("%q is not a valid TCP port", cfg.StatusPort)}
		}
	}

	if v.IsSet(KeyStartOffset) {
		cfg.Warnings = append(cfg.Warnings, startOffsetWarning)
	}
	if cfg.InsecureSkipVerify {
		cfg.Warnings = append(cfg.Warnings, insecureTLSWarning)
	}

	if cfg.Mail, err = mailFromViper(v); err != nil {
		return Config{}, err
	}
	if cfg.S3, err = s3FromViper(v); err != nil {
		return Config{}, err
	}
	if cfg.Mail == nil && cfg.S3 == nil {
		return Config{}, &Error{Reason: "you need to configure at least one destination: email (mailto) or S3 (s3bucket)"}
	}

	return cfg, nil
}

func mailFromViper(v *viper.Viper) (*MailConfig, error) {
	recipients := splitList(v.GetStringSlice(KeyMailTo))
	if len(recipients) == 0 {
		return nil, nil
	}
	host, port, err := splitHostPort(v.GetString(KeyMailServer), defaultMailPort)
	if err != nil {
		return nil, &Error{Key: KeyMailServer, Reason: "invalid address", Err: err}
	}
	return &MailConfig{
		To:      recipients,
		Host:    host,
		Port:    port,
		From:    v.GetString(KeyMailFrom),
		Subject: v.GetString(KeySubject),
	}, nil
}

func s3FromViper(v *viper.Viper) (*S3Config, error) {
	bucket := strings.TrimSpace(v.GetString(KeyS3Bucket))
	if bucket == "" {
		return nil, nil
	}
	for _, key := range []string{KeyS3AccessKey, KeyS3SecretKey, KeyS3Endpoint} {
		if strings.TrimSpace(v.GetString(key)) == "" {
			return nil, &Error{Key: key, Reason: "S3 bucket specified for upload but configuration key missing"}
		}
	}
	return &S3Config{
		Bucket:    bucket,
		Endpoint:  strings.TrimSpace(v.GetString(KeyS3Endpoint)),
		AccessKey: v.GetString(KeyS3AccessKey),
		SecretKey: Secret(v.GetString(KeyS3SecretKey)),
		Prefix:    v.GetString(KeyS3Prefix),
		Region:    v.GetString(KeyS3Region),
	}, nil
}

// splitList accepts both YAML lists and comma separated strings.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// splitHostPort parses "host" or "host:port".
func splitHostPort(addr string, defPort int) (string, int, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", 0, fmt.Errorf("empty address")
	}
	if !strings.Contains(addr, ":") {
		return addr, defPort, nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}
