package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/Devyash0601/WGAST-test/internal/delivery"
	"github.com/Devyash0601/WGAST-test/internal/metrics"
	"github.com/Devyash0601/WGAST-test/internal/notification"
	"github.com/Devyash0601/WGAST-test/internal/properties"
	"github.com/Devyash0601/WGAST-test/internal/ui"
	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
)

func printBanner() {
	figure1 := figure.NewFigure("WGAST", "isometric1", true)
	figure2 := figure.NewFigure("Pipeline", "", true)
	bannercolor.Cyan(figure1.String())
	bannercolor.Cyan(figure2.String())
	fmt.Println()
}

// recoverPanic reports a panic on the console and to the error webhook, then exits.
func recoverPanic(ctx context.Context, notifier *notification.Discord) {
	r := recover()
	if r == nil {
		return
	}
	pc, file, line, ok := runtime.Caller(3) // 3 levels up is usually the panic source
	location := "Unknown location"
	if ok {
		location = fmt.Sprintf("%s:%d in %s", file, line, runtime.FuncForPC(pc).Name())
	}

	fmt.Printf("\n%sPANIC: %v%s\n", ui.ColorRed, r, ui.ColorReset)
	fmt.Printf("%sLocation: %s%s\n", ui.ColorRed, location, ui.ColorReset)
	fmt.Printf("%sExiting...%s\n", ui.ColorRed, ui.ColorReset)

	notifier.NotifyError(ctx, fmt.Sprintf("WGAST CLI panic:\n\n%v\n\nLocation: %s\n\nStack trace:\n%s", r, location, debug.Stack()))
	os.Exit(2)
}

func main() {
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Printf("%s%s%s\n", ui.ColorRed, err.Error(), ui.ColorReset)
		os.Exit(1)
	}

	properties.LoadEnv()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: args.LogLevel}))
	slog.SetDefault(logger)

	cfg, err := properties.Load(args.ConfigPath)
	if err != nil {
		fmt.Printf("%sInvalid configuration: %s%s\n", ui.ColorRed, err.Error(), ui.ColorReset)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := notification.NewDiscord(logger)
	pipeline := &delivery.Pipeline{
		Config:       cfg,
		Logger:       logger,
		Notifier:     notifier,
		Metrics:      metrics.New(),
		ShowProgress: true,
	}

	if args.Stage != "" {
		if err := runStage(ctx, pipeline, notifier, args.Stage); err != nil {
			fmt.Printf("%s%s%s\n", ui.ColorRed, err.Error(), ui.ColorReset)
			stop()
			os.Exit(1)
		}
		return
	}

	initCLI(ctx, pipeline, notifier)
}

func runStage(ctx context.Context, p *delivery.Pipeline, notifier *notification.Discord, stage string) error {
	defer recoverPanic(ctx, notifier)
	return p.Run(ctx, stage)
}

func initCLI(ctx context.Context, p *delivery.Pipeline, notifier *notification.Discord) {
	defer recoverPanic(ctx, notifier)
	printBanner()
	if p.Config.Notifications.Enabled && (notifier.ErrorURL == "" || notifier.SuccessURL == "") {
		ui.PrintWarning("Notifications are enabled but DISCORD_ERROR_NOTIFICATION_URL or DISCORD_SUCCESS_NOTIFICATION_URL is not set.")
	}
	ui.ShowMenu(ctx, p)
}
