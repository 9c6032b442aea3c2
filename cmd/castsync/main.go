package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"go2tv.app/castsync/castprotocol"
	"go2tv.app/castsync/coordinator"
	"go2tv.app/castsync/credentials"
	"go2tv.app/castsync/devices"
	"go2tv.app/castsync/framework"
	"go2tv.app/castsync/internal/config"
	"go2tv.app/castsync/media"
)

var (
	version string
	build   string

	urlArg     = flag.String("u", "", "URL of the resource to cast.")
	targetPtr  = flag.String("t", "", "Cast to the receiver at this address (host[:port]).")
	listPtr    = flag.Bool("l", false, "List all discovered cast receivers.")
	versionPtr = flag.Bool("version", false, "Print version.")
)

const (
	frameworkLoadTimeout = 10 * time.Second
	discoveryWarmup      = 3 * time.Second
)

func main() {
	flag.Parse()

	if *versionPtr {
		fmt.Printf("castsync version %s, build %s\n", version, build)
		os.Exit(0)
	}

	cfg, err := config.GetAppConfig()
	check(err)

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	ctx := context.Background()

	loader := framework.NewLoader(castprotocol.NewRuntime(), framework.Config{
		AppID:    cfg.AppID,
		AutoJoin: framework.AutoJoinOriginScoped,
	})
	loader.Logger = logger

	loadCtx, cancelLoad := context.WithTimeout(ctx, frameworkLoadTimeout)
	defer cancelLoad()

	sdk, err := loader.Load(loadCtx)
	check(err)

	castSDK, ok := sdk.(*castprotocol.SDK)
	if !ok {
		check(errors.New("unexpected SDK implementation"))
	}

	creds := credentials.NewClient(cfg.APIURL, cfg.APIKey)
	creds.Logger = logger

	coord := coordinator.New(sdk, creds, media.NewResolver(), cfg.AppID)
	coord.Logger = logger
	coord.Initialize()

	watcher := devices.NewWatcher(castSDK.NotifyReceivers)
	watcher.Logger = logger
	go func() {
		_ = watcher.Run(ctx)
	}()

	if *listPtr {
		// Give discovery a moment to populate before printing.
		time.Sleep(discoveryWarmup)
		listReceivers(watcher.Receivers())
		os.Exit(0)
	}

	if *urlArg == "" {
		check(errors.New("no resource URL defined"))
	}

	target := *targetPtr
	if target == "" {
		target, err = pickReceiver(watcher)
		check(err)
	}

	// A local file is served over a throwaway listener; the receiver fetches
	// it from us instead of an origin server.
	resource := *urlArg
	var stopServing func()
	if info, statErr := os.Stat(resource); statErr == nil && !info.IsDir() {
		resource, stopServing, err = serveLocalFile(resource, target)
		check(err)
	}

	check(castSDK.RequestSession(ctx, target))

	_, err = coord.CastResource(ctx, resource)
	check(err)

	status := coord.Status()
	logger.Info().
		Str("Device", status.DeviceState.String()).
		Str("Player", string(status.PlayerState)).
		Msg("cast started")

	if stopServing != nil {
		logger.Info().Msg("serving local file, interrupt to stop")
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		<-sig
		stopServing()
	}
}

func pickReceiver(w *devices.Watcher) (string, error) {
	deadline := time.Now().Add(discoveryWarmup)
	for time.Now().Before(deadline) {
		if receivers := w.Receivers(); len(receivers) > 0 {
			sort.Slice(receivers, func(i, j int) bool { return receivers[i].Name < receivers[j].Name })
			return receivers[0].Address, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return "", errors.New("no cast receivers discovered")
}

func listReceivers(receivers []devices.Receiver) {
	if len(receivers) == 0 {
		fmt.Println("No cast receivers discovered.")
		return
	}

	sort.Slice(receivers, func(i, j int) bool { return receivers[i].Name < receivers[j].Name })
	fmt.Println()
	for i, r := range receivers {
		fmt.Printf("Device %d\n", i+1)
		fmt.Printf("--------\n")
		fmt.Printf("Name:    %s\n", r.Name)
		fmt.Printf("Address: %s\n", r.Address)
		fmt.Println()
	}
}

func check(err error) {
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Encountered error(s): %s\n", err)
		os.Exit(1)
	}
}
