package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DATABASE_TYPE = "database.type"
const DATABASE_URL = "database.url"
const DATABASE_SQLLITE_FILE_NAME = "database.sqllite_file_name"
const ENGINE_SERVER_WEB_PORT = "server.web_port"
const SERVER_ADDR = "server.addr" //full listen address, overrides server.web_port
const ENGINE_CHECK_DB_INTERVAL = "engine.check_db_interval"
const ENGINE_OUTBOX_INTERVAL = "engine.outbox_interval"
const ENGINE_BATCH_SIZE = "engine.batch_size"               //number of steps claimed per tick
const ENGINE_OUTBOX_BATCH_SIZE = "engine.outbox_batch_size" //number of outbox messages claimed per tick
const ENGINE_EXECUTOR_SIZE = "engine.executor_size"         //number of step workers in this process
const ENGINE_LEASE_DURATION = "engine.lease_duration"
const ENGINE_EXECUTOR_NAME = "engine.executor_name"
const ENGINE_HEARTBEAT_INTERVAL = "engine.heartbeat_interval"
const AUTH_API_KEY_HASH = "auth.api_key_hash"
const REDIS_ADDR = "redis.addr"
const REDIS_QUEUE = "redis.queue"
const SENDERS_WEBHOOK_URL = "senders.webhook_url"
const TAGGING_URL = "tagging.url"
const ANALYTICS_FILE = "analytics.file"
const LOG_LEVEL = "log.level"
const METRICS_EXPORTER = "metrics.exporter"
const METRICS_INTERVAL = "metrics.interval"

const METRICS_EXPORTER_NONE = "none"
const METRICS_EXPORTER_STDOUT = "stdout"

const DATABASE_TYPE_POSTGRES = "POSTGRES"
const DATABASE_TYPE_MYSQL = "MYSQL"
const DATABASE_TYPE_SQLLITE = "SQLLITE"

const ENV_PREFIX = "LFLOW"

func init() {
	viper.SetEnvPrefix(ENV_PREFIX)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	SetDefaults(viper.GetViper())
}

// SetDefaults registers the default value of every known setting.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(DATABASE_TYPE, DATABASE_TYPE_SQLLITE)
	v.SetDefault(DATABASE_URL, "")
	v.SetDefault(DATABASE_SQLLITE_FILE_NAME, "./leadflow.db")
	v.SetDefault(ENGINE_SERVER_WEB_PORT, "8080")
	v.SetDefault(SERVER_ADDR, "")
	v.SetDefault(ENGINE_CHECK_DB_INTERVAL, "3s")
	v.SetDefault(ENGINE_OUTBOX_INTERVAL, "5s")
	v.SetDefault(ENGINE_BATCH_SIZE, 25)
	v.SetDefault(ENGINE_OUTBOX_BATCH_SIZE, 25)
	v.SetDefault(ENGINE_EXECUTOR_SIZE, 2)
	v.SetDefault(ENGINE_LEASE_DURATION, "5m")
	v.SetDefault(ENGINE_EXECUTOR_NAME, "")
	v.SetDefault(ENGINE_HEARTBEAT_INTERVAL, "30s")
	v.SetDefault(AUTH_API_KEY_HASH, "")
	v.SetDefault(REDIS_ADDR, "")
	v.SetDefault(REDIS_QUEUE, "leadflow:events")
	v.SetDefault(SENDERS_WEBHOOK_URL, "")
	v.SetDefault(TAGGING_URL, "")
	v.SetDefault(ANALYTICS_FILE, "")
	v.SetDefault(LOG_LEVEL, "info")
	v.SetDefault(METRICS_EXPORTER, METRICS_EXPORTER_NONE)
	v.SetDefault(METRICS_INTERVAL, "60s")
}

// ReadConfigFile merges an optional yaml/json/toml file into the settings.
func ReadConfigFile(path string) error {
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings the process cannot start without.
func Validate() error {
	dbType := GetSystemSettingString(DATABASE_TYPE)
	switch dbType {
	case DATABASE_TYPE_POSTGRES, DATABASE_TYPE_MYSQL:
		if GetSystemSettingString(DATABASE_URL) == "" {
			return fmt.Errorf("%s must be set when using the %s database type", envName(DATABASE_URL), dbType)
		}
	case DATABASE_TYPE_SQLLITE:
		if GetSystemSettingString(DATABASE_SQLLITE_FILE_NAME) == "" {
			return fmt.Errorf("%s must be set", envName(DATABASE_SQLLITE_FILE_NAME))
		}
	default:
		return fmt.Errorf("%s must be one of POSTGRES, MYSQL, SQLLITE (got %q)", envName(DATABASE_TYPE), dbType)
	}
	for _, key := range []string{ENGINE_CHECK_DB_INTERVAL, ENGINE_OUTBOX_INTERVAL, ENGINE_LEASE_DURATION, ENGINE_HEARTBEAT_INTERVAL, METRICS_INTERVAL} {
		d, err := time.ParseDuration(GetSystemSettingString(key))
		if err != nil || d <= 0 {
			return fmt.Errorf("%s must be a positive duration (got %q)", envName(key), GetSystemSettingString(key))
		}
	}
	for _, key := range []string{ENGINE_BATCH_SIZE, ENGINE_OUTBOX_BATCH_SIZE, ENGINE_EXECUTOR_SIZE} {
		if GetSystemSettingInteger(key) <= 0 {
			return fmt.Errorf("%s must be a positive integer (got %q)", envName(key), GetSystemSettingString(key))
		}
	}
	switch exporter := GetSystemSettingString(METRICS_EXPORTER); exporter {
	case METRICS_EXPORTER_NONE, METRICS_EXPORTER_STDOUT:
	default:
		return fmt.Errorf("%s must be one of none, stdout (got %q)", envName(METRICS_EXPORTER), exporter)
	}
	return nil
}

// ListenAddr is the HTTP listen address.
func ListenAddr() string {
	if addr := GetSystemSettingString(SERVER_ADDR); addr != "" {
		return addr
	}
	return ":" + GetSystemSettingString(ENGINE_SERVER_WEB_PORT)
}

func envName(key string) string {
	return ENV_PREFIX + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func GetSystemSettingInteger(settingKey string) int {
	return viper.GetInt(settingKey)
}

func GetSystemSettingString(settingKey string) string {
	return viper.GetString(settingKey)
}

func GetSystemSettingDuration(settingKey string) time.Duration {
	d, err := time.ParseDuration(viper.GetString(settingKey))
	if err != nil {
		return 0
	}
	return d
}

// ExecutorName is the human part of this process's worker identity.
func ExecutorName() string {
	name := GetSystemSettingString(ENGINE_EXECUTOR_NAME)
	if name != "" {
		return name
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "leadflow-engine"
	}
	return hostname
}
