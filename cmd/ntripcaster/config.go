package main

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ConfKeyHost                    = "host"
	ConfKeyNtripPort               = "ntrip_port"
	ConfKeyWebPort                 = "web_port"
	ConfKeyBufferSize              = "buffer_size"
	ConfKeyMaxConnections          = "max_connections"
	ConfKeyMaxUserConnsPerMount    = "max_user_connections_per_mount"
	ConfKeyBroadcastInterval       = "broadcast_interval"
	ConfKeyDataSendTimeout         = "data_send_timeout"
	ConfKeyMountTimeout            = "mount_timeout"
	ConfKeyClientTimeout           = "client_timeout"
	ConfKeyRingBufferSize          = "ring_buffer_size"
	ConfKeyKeepAliveEnabled        = "tcp_keepalive.enabled"
	ConfKeyKeepAliveIdle           = "tcp_keepalive.idle"
	ConfKeyKeepAliveInterval       = "tcp_keepalive.interval"
	ConfKeyKeepAliveCount          = "tcp_keepalive.count"
	ConfKeyCasterCountry           = "caster.country"
	ConfKeyCasterLatitude          = "caster.latitude"
	ConfKeyCasterLongitude         = "caster.longitude"
	ConfKeyAppName                 = "app.name"
	ConfKeyAppVersion              = "app.version"
	ConfKeyAppAuthor               = "app.author"
	ConfKeyAppContact              = "app.contact"
	ConfKeyAppWebsite              = "app.website"
	ConfKeyDefaultAdminUsername    = "default_admin.username"
	ConfKeyDefaultAdminPassword    = "default_admin.password"
	ConfKeyLogDir                  = "log.dir"
	ConfKeyLogLevel                = "log.level"
	ConfKeyLogMaxSize              = "log.max_size"
	ConfKeyLogBackupCount          = "log.backup_count"
	ConfKeyDatabasePath            = "database.path"
)

// Config reads config.yaml from the working directory, applies defaults,
// and watches the file so log-level changes apply without a restart.
func Config(logger *logrus.Logger) (*viper.Viper, error) {
	conf := viper.New()
	conf.SetConfigName("config")
	conf.SetConfigType("yaml")
	conf.AddConfigPath(".")
	conf.AddConfigPath("/etc/ntripcaster")

	conf.SetDefault(ConfKeyHost, "0.0.0.0")
	conf.SetDefault(ConfKeyNtripPort, 2101)
	conf.SetDefault(ConfKeyWebPort, 8080)
	conf.SetDefault(ConfKeyBufferSize, 4096)
	conf.SetDefault(ConfKeyMaxConnections, 1000)
	conf.SetDefault(ConfKeyMaxUserConnsPerMount, 3)
	conf.SetDefault(ConfKeyBroadcastInterval, 10*time.Millisecond)
	conf.SetDefault(ConfKeyDataSendTimeout, 5*time.Second)
	conf.SetDefault(ConfKeyMountTimeout, 180*time.Second)
	conf.SetDefault(ConfKeyClientTimeout, 180*time.Second)
	conf.SetDefault(ConfKeyRingBufferSize, 2048)
	conf.SetDefault(ConfKeyKeepAliveEnabled, true)
	conf.SetDefault(ConfKeyKeepAliveIdle, 60*time.Second)
	conf.SetDefault(ConfKeyKeepAliveInterval, 10*time.Second)
	conf.SetDefault(ConfKeyKeepAliveCount, 3)
	conf.SetDefault(ConfKeyCasterCountry, "CHN")
	conf.SetDefault(ConfKeyCasterLatitude, 25.2034)
	conf.SetDefault(ConfKeyCasterLongitude, 110.2777)
	conf.SetDefault(ConfKeyAppName, "ntripcaster")
	conf.SetDefault(ConfKeyAppVersion, "2.0.0")
	conf.SetDefault(ConfKeyAppAuthor, "ntripcaster")
	conf.SetDefault(ConfKeyAppContact, "unknown")
	conf.SetDefault(ConfKeyAppWebsite, "unknown")
	conf.SetDefault(ConfKeyDefaultAdminUsername, "admin")
	conf.SetDefault(ConfKeyDefaultAdminPassword, "admin")
	conf.SetDefault(ConfKeyLogDir, "logs")
	conf.SetDefault(ConfKeyLogLevel, "info")
	conf.SetDefault(ConfKeyLogMaxSize, 100)
	conf.SetDefault(ConfKeyLogBackupCount, 10)
	conf.SetDefault(ConfKeyDatabasePath, "ntripcaster.db")

	if err := conf.ReadInConfig(); err != nil {
		// Running on defaults alone is fine; a broken file is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		logger.Warn("no config file found, using defaults")
	}

	applyLogConfig(conf, logger)

	conf.OnConfigChange(func(event fsnotify.Event) {
		logger.WithField("file", event.Name).Info("config file changed")
		applyLogConfig(conf, logger)
	})
	conf.WatchConfig()

	return conf, nil
}

// applyLogConfig points logrus at stdout plus a rotated file and sets
// the level. Called again on every config change.
func applyLogConfig(conf *viper.Viper, logger *logrus.Logger) {
	level, err := logrus.ParseLevel(conf.GetString(ConfKeyLogLevel))
	if err != nil {
		logger.WithError(err).Warn("invalid log level, keeping current")
	} else {
		logger.SetLevel(level)
	}

	dir := conf.GetString(ConfKeyLogDir)
	if dir == "" {
		logger.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.WithError(err).Warn("cannot create log directory, logging to stdout only")
		logger.SetOutput(os.Stdout)
		return
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   filepath.Join(dir, "ntripcaster.log"),
		MaxSize:    conf.GetInt(ConfKeyLogMaxSize),
		MaxBackups: conf.GetInt(ConfKeyLogBackupCount),
	}))
}
