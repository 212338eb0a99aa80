// Command simulate publishes sample readings for one site to the MQTT broker
// configured by MQTT_BROKER / MQTT_PORT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"minewatch-server/internal/config"
	"minewatch-server/internal/logging"
	"minewatch-server/internal/mqtt"
	"minewatch-server/internal/simulate"
)

var version = "dev"
var appName = "minewatch-simulate"

func main() {
	site := flag.String("site", "DMLZ", "site name, as on the dashboard")
	count := flag.Int("count", 10, "number of readings to publish")
	interval := flag.Duration("interval", 2*time.Second, "delay between readings")
	danger := flag.Bool("danger", false, "generate readings in the danger bands")
	values := flag.String("values", "", "fixed values getaran,suhu,tekanan,kelembapan (e.g. 1.8,90,4.5,95)")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if !cfg.MQTTEnabled() {
		fmt.Fprintln(os.Stderr, "config error: MQTT_BROKER is required")
		os.Exit(1)
	}
	cfg.MQTTClientID = appName + "-" + fmt.Sprint(os.Getpid())

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	opts := simulate.Options{Site: *site, Count: *count, Interval: *interval, Danger: *danger, Seed: *seed}
	if *values != "" {
		v, err := simulate.ParseValues(*values)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -values: %v\n", err)
			os.Exit(2)
		}
		opts.Fixed = &v
	}
	if err := opts.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts simulate.Options) error {
	pub := mqtt.NewPublisher(cfg, slog.Default().With("component", "mqtt"))
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := pub.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer pub.Disconnect()

	n, err := simulate.Run(ctx, pub, opts, func() time.Time { return time.Now().Truncate(time.Second) }, slog.Default())
	slog.Info("done", "published", n, "site", opts.Site)
	return err
}
