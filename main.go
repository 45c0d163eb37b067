package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"golang.org/x/xerrors"

	"github.com/sentrycam/sentry-go/hub"
	"github.com/sentrycam/sentry-go/pipeline"
	"github.com/sentrycam/sentry-go/server"
	"github.com/sentrycam/sentry-go/service/camera"
	"github.com/sentrycam/sentry-go/service/config"
	"github.com/sentrycam/sentry-go/service/lgr"
	"github.com/sentrycam/sentry-go/service/metrics"
	"github.com/sentrycam/sentry-go/service/storage"
	"github.com/sentrycam/sentry-go/service/trigger"
	"github.com/sentrycam/sentry-go/service/webhook"
)

func main() {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		if err := godotenv.Load(); err != nil {
			lgr.Logger.Info("no .env file found, relying on process env")
		}
	}

	// Config service
	cfgSvc := config.NewEnv()
	// Camera service
	var cameraSvc camera.IService
	switch cfgSvc.GetCameraType() {
	case "synthetic":
		cameraSvc = camera.NewSynthetic(cfgSvc)
	default:
		cameraSvc = camera.NewDevice(cfgSvc)
	}
	// Storage service
	storageSvc := storage.NewFiles(cfgSvc)
	// Webhook service
	webhookSvc := webhook.NewHTTP(cfgSvc)
	// Metrics
	m := metrics.New()

	svcs := pipeline.ServicesFactory{
		CfgSvc:     cfgSvc,
		CameraSvc:  cameraSvc,
		StorageSvc: storageSvc,
		WebhookSvc: webhookSvc,
		Metrics:    m,
	}

	broadcastHub := hub.New(m)
	runner := pipeline.NewRunner(svcs, broadcastHub)
	alerter := pipeline.NewAlerter(svcs, broadcastHub)
	srv := server.New(cfgSvc.GetHTTPPort(), runner, broadcastHub, m)

	printBanner(cfgSvc.GetHTTPPort())

	runnerResult := make(chan error)
	defer close(runnerResult)
	serverResult := make(chan error)
	defer close(serverResult)

	go func() {
		runnerResult <- runner.Run(canxCtx)
	}()
	go func() {
		serverResult <- srv.Run(canxCtx)
	}()
	go func() {
		alerter.Run(canxCtx, runner.AlertStream())
	}()

	var triggerSvc trigger.IService
	if cfgSvc.GetMQTTEnabled() {
		triggerSvc = trigger.NewMQTT(cfgSvc, runner)
		go func() {
			if err := triggerSvc.Run(canxCtx); err != nil {
				lgr.Logger.Error("mqtt trigger failed", slog.Any("error", xerrors.New(err.Error())))
			}
		}()
	}

	// Wait for cancellation, runner or server exit
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info("sentry context cancelled")
			goto resume

		case err := <-runnerResult:
			if err != nil {
				lgr.Logger.Error(
					"pipeline exited",
					slog.Any("error", xerrors.New(err.Error())),
				)
			}
			goto resume

		case err := <-serverResult:
			if err != nil {
				lgr.Logger.Error(
					"http server exited",
					slog.Any("error", xerrors.New(err.Error())),
				)
			}
			goto resume
		}
	}

	// Wait in a non-blocking way for the remaining go routines to exit,
	// since they may still report errors on their way out.
resume:
	if canxCtx.Err() == nil {
		canxFn()
	}

	if triggerSvc != nil {
		triggerSvc.Finalize()
	}

	waitOnShutdown := time.Duration(cfgSvc.GetModeMaxShutdownTime()) * time.Second
	lgr.Logger.Info("sentry waiting for all go routines to exit")

	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			lgr.Logger.Info(
				"sentry shutdown waiting period expired. Exiting now",
				slog.Duration("period", waitOnShutdown),
			)
			return

		case err := <-runnerResult:
			if err != nil {
				lgr.Logger.Error(
					"pipeline exited",
					slog.Any("error", xerrors.New(err.Error())),
				)
			}

		case err := <-serverResult:
			if err != nil {
				lgr.Logger.Error(
					"http server exited",
					slog.Any("error", xerrors.New(err.Error())),
				)
			}
		}
	}
}

// printBanner lists the URLs the service is reachable on, including LAN
// addresses for phones and wall panels on the same network.
func printBanner(port int) {
	title := color.New(color.FgCyan, color.Bold)
	urlStyle := color.New(color.FgGreen)

	title.Println("sentry is up")
	urlStyle.Printf("  local:   http://localhost:%d/video_feed\n", port)

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || strings.HasPrefix(ip.String(), "169.254.") {
			continue
		}
		urlStyle.Printf("  network: http://%s\n", fmt.Sprintf("%s:%d/video_feed", ip, port))
	}
}
