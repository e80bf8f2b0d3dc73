// mc-keeper holds authenticated sessions open on an upstream server and lets
// game clients attach to them through a local listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/reallyoldfogie/mc-keeper-go/config"
	"github.com/reallyoldfogie/mc-keeper-go/gateway"
	"github.com/reallyoldfogie/mc-keeper-go/session"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yml", "Path to the YAML config file")
	flag.Parse()

	log := logrus.New()
	if err := run(configPath, log); err != nil {
		log.WithError(err).Fatal("exiting")
	}
}

func run(configPath string, log *logrus.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := session.NewManager(session.ManagerConfig{
		ServerAddr: cfg.ServerAddr,
		DumpDir:    cfg.DumpDir,
		Log:        log,
	})
	defer manager.Close()

	for _, profile := range cfg.Profiles {
		if err := manager.Connect(profile); err != nil {
			log.WithField("profile", profile.ID).WithError(err).Warn("initial connect failed")
		}
	}

	listener, err := gateway.NewListener(gateway.Config{
		Addr:       cfg.ListenAddr,
		ServerName: cfg.ServerName,
		Profiles:   cfg.Profiles,
		Manager:    manager,
		Log:        log,
	})
	if err != nil {
		return err
	}
	log.WithField("addr", listener.Addr()).Info("listening")

	err = listener.Serve(ctx)
	if ctx.Err() != nil {
		log.Info("shutting down")
		return nil
	}
	return err
}
