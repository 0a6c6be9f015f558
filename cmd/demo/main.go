// Command demo drives a single request through the engine, logging the
// response status, body size and elapsed time. It exists to exercise the full
// stack end to end: config loading, Context construction, the redirect
// loop, and cookie handling.
//
// Startup sequence:
//  1. Load configuration (JSON file or defaults).
//  2. Build a Context with the Chrome emulation profile.
//  3. Issue the request named on the command line.
//  4. Print the result and exit.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"time"

	"github.com/corvid-labs/wireclient/clientconfig"
	"github.com/corvid-labs/wireclient/engine"
	"github.com/corvid-labs/wireclient/obslog"
)

func main() {
	configFile := flag.String("config", "", "path to JSON config file (optional; uses defaults if omitted)")
	target := flag.String("url", "https://example.com/", "URL to request")
	flag.Parse()

	log := obslog.New(obslog.LevelInfo)
	log.Info("wireclient demo starting up")

	var cfg *clientconfig.Config
	if *configFile != "" {
		var err error
		cfg, err = clientconfig.Load(*configFile)
		if err != nil {
			log.Errorf("failed to load config from %q: %v", *configFile, err)
			os.Exit(1)
		}
		log.Infof("configuration loaded from %q", *configFile)
	} else {
		cfg = clientconfig.Default()
		log.Info("using default configuration")
	}

	ctx, err := engine.New(cfg, nil)
	if err != nil {
		log.Errorf("failed to build context: %v", err)
		os.Exit(1)
	}
	defer ctx.Close()

	reqCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := ctx.Do(reqCtx, &engine.Outbound{Method: "GET", URL: *target})
	if err != nil {
		log.Errorf("request to %q failed: %v", *target, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Errorf("reading response body: %v", err)
		os.Exit(1)
	}

	log.WithField("status", resp.StatusCode).
		WithField("bytes", len(body)).
		WithField("elapsed", time.Since(start)).
		Info("request complete")
}
