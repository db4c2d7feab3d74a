package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"dogbox.io/dogbox/common/logging"
	"dogbox.io/dogbox/config"
	"dogbox.io/dogbox/server"
	st "dogbox.io/dogbox/stores"
	"dogbox.io/dogbox/workers/sweeper"
)

const (
	serviceName   = "DogBox"
	sweepPoolSize = 4
)

// start up application server and serve incoming requests until interrupted
func serve() error {
	cfg, perr := config.FromEnv(viper.New())
	if perr != nil {
		return perr
	}
	logging.SetupLog(serviceName, cfg.Verbose)
	if perr := cfg.LoadAccess(); perr != nil {
		return perr
	}

	fs, perr := st.NewLocalFileStore(cfg.StoragePath)
	if perr != nil {
		return perr
	}
	defer fs.Close()
	fs.MaxSize = cfg.UploadSizeMax

	index, perr := server.LoadIndexTemplate(cfg.TemplatesDir)
	if perr != nil {
		return perr
	}
	sw, perr := sweeper.New(fs, cfg.Retention, sweepPoolSize)
	if perr != nil {
		return perr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sw.Run(ctx)
	}()

	svr := server.New(cfg, fs, index).HTTPServer(cfg.Addr())
	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"host":        cfg.Host,
			"port":        cfg.Port,
			"storagePath": fs.Root(),
			"retention":   cfg.Retention.String(),
		}).Info("server is starting up")
		serveErr <- svr.ListenAndServe()
	}()

	var err error
	select {
	case err = <-serveErr:
		stop()
	case <-ctx.Done():
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer cancel()
		err = svr.Shutdown(sctx)
	}
	<-sweeperDone
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
