// relay: pulse one intercom relay and exit. Used to check the door and
// lamp wiring during installation.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/teslashibe/go-doorbell/internal/config"
	"github.com/teslashibe/go-doorbell/internal/log"
	"github.com/teslashibe/go-doorbell/pkg/relay"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "Path to YAML config file")
	channel := pflag.Int("door", relay.Door, "Relay channel to pulse (1 door, 2 light)")
	pflag.Parse()

	if err := run(*configPath, *channel); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, channel int) error {
	if channel != relay.Door && channel != relay.Light {
		return fmt.Errorf("unknown relay %d, want %d or %d", channel, relay.Door, relay.Light)
	}

	cfg, err := config.Read(configPath)
	if err != nil {
		return err
	}
	if err := log.Init(cfg.Log.Level, ""); err != nil {
		return err
	}

	client, err := relay.New(relay.Config{
		Scheme:   cfg.Doorbell.Scheme,
		Host:     cfg.Doorbell.Host,
		Port:     cfg.Doorbell.Port,
		User:     cfg.Doorbell.User,
		Password: cfg.Doorbell.Password,
		Timeout:  cfg.Doorbell.Timeout,
		Logger:   log.L(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Doorbell.Timeout)
	defer cancel()
	if err := client.Pulse(ctx, channel); err != nil {
		return err
	}
	fmt.Printf("✅ Relay %d pulsed on %s\n", channel, cfg.Doorbell.Host)
	return nil
}
