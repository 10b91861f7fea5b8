package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	ntrip "github.com/go-gnss/ntripcaster"
	"github.com/go-gnss/ntripcaster/admin"
	"github.com/go-gnss/ntripcaster/catalog"
	"github.com/go-gnss/ntripcaster/internal/metrics"
)

func main() {
	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	conf, err := Config(logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to read config")
	}

	metrics.Register()

	db, err := catalog.NewDB(conf.GetString(ConfKeyDatabasePath), logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open catalog database")
	}
	defer db.Close()

	if err := db.SeedDefaultAdmin(
		conf.GetString(ConfKeyDefaultAdminUsername),
		conf.GetString(ConfKeyDefaultAdminPassword),
	); err != nil {
		logger.WithError(err).Fatal("failed to seed default admin")
	}

	host := conf.GetString(ConfKeyHost)
	ntripPort := conf.GetInt(ConfKeyNtripPort)

	caster, err := ntrip.NewCaster(ntrip.Options{
		Host:    host,
		Port:    ntripPort,
		Catalog: db,
		Sourcetable: ntrip.SourcetableConfig{
			Host:      host,
			Port:      ntripPort,
			Author:    conf.GetString(ConfKeyAppAuthor),
			Website:   conf.GetString(ConfKeyAppWebsite),
			Contact:   conf.GetString(ConfKeyAppContact),
			Country:   conf.GetString(ConfKeyCasterCountry),
			Latitude:  conf.GetFloat64(ConfKeyCasterLatitude),
			Longitude: conf.GetFloat64(ConfKeyCasterLongitude),
			FilePath:  filepath.Join(conf.GetString(ConfKeyLogDir), "mount_list.txt"),
		},
		ServerName: fmt.Sprintf("%s/%s",
			conf.GetString(ConfKeyAppName), conf.GetString(ConfKeyAppVersion)),

		MaxConnections:             conf.GetInt(ConfKeyMaxConnections),
		MaxUserConnectionsPerMount: conf.GetInt(ConfKeyMaxUserConnsPerMount),
		BufferSize:                 conf.GetInt(ConfKeyBufferSize),
		RingSize:                   conf.GetInt(ConfKeyRingBufferSize),

		BroadcastInterval: conf.GetDuration(ConfKeyBroadcastInterval),
		DataSendTimeout:   conf.GetDuration(ConfKeyDataSendTimeout),
		MountTimeout:      conf.GetDuration(ConfKeyMountTimeout),
		ClientTimeout:     conf.GetDuration(ConfKeyClientTimeout),

		KeepAlive: ntrip.KeepAliveOptions{
			Enabled:  conf.GetBool(ConfKeyKeepAliveEnabled),
			Idle:     conf.GetDuration(ConfKeyKeepAliveIdle),
			Interval: conf.GetDuration(ConfKeyKeepAliveInterval),
			Count:    conf.GetInt(ConfKeyKeepAliveCount),
		},
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to build caster")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adminAddr := fmt.Sprintf("%s:%d", host, conf.GetInt(ConfKeyWebPort))
	adminServer := admin.NewServer(adminAddr, db, caster, logger)
	go func() {
		logger.WithField("addr", adminAddr).Info("admin api listening")
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("admin server stopped")
		}
	}()

	err = caster.Serve(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), adminServer.WriteTimeout)
	defer cancel()
	adminServer.Shutdown(shutdownCtx)

	if err != nil {
		logger.WithError(err).Fatal("caster stopped")
	}
}
