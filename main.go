package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"voicedesk/app/client/objstore"
	"voicedesk/app/client/stt"
	"voicedesk/app/client/tts"
	"voicedesk/app/config"
	"voicedesk/app/server"
	"voicedesk/app/service/orchestrator"
	"voicedesk/app/service/session"
	"voicedesk/app/service/stream"
	"voicedesk/app/store"
	"voicedesk/app/util/mylog"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, stt.NewClient)
	do.Provide(di, tts.NewClient)
	do.Provide(di, objstore.NewStore)
	do.Provide(di, store.New)
	do.Provide(di, func(di *do.Injector) (orchestrator.Persister, error) {
		return do.MustInvoke[*store.Store](di), nil
	})
	do.Provide(di, orchestrator.New)
	do.Provide(di, stream.New)
	do.Provide(di, session.New)
	do.Provide(di, server.New)

	slog.Info("Service started")

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	group, runCtx := errgroup.WithContext(appCtx)

	group.Go(func() error {
		do.MustInvoke[*session.Manager](di).RunJanitor(runCtx)

		return nil
	})

	group.Go(func() error {
		return do.MustInvoke[*server.Server](di).Run(runCtx)
	})

	if err = group.Wait(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
