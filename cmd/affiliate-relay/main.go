// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command affiliate-relay watches source channels on Mattermost or Matrix and
// re-posts messages carrying Shopee product links to a destination channel,
// with every link rewritten into an affiliate-tracked link.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	flag "maunium.net/go/mauflag"

	"github.com/aiku/affiliate-relay/pkg/admin"
	"github.com/aiku/affiliate-relay/pkg/affiliate"
	"github.com/aiku/affiliate-relay/pkg/config"
	"github.com/aiku/affiliate-relay/pkg/links"
	"github.com/aiku/affiliate-relay/pkg/metrics"
	"github.com/aiku/affiliate-relay/pkg/policy"
	"github.com/aiku/affiliate-relay/pkg/relay"
	"github.com/aiku/affiliate-relay/pkg/rewrite"
	"github.com/aiku/affiliate-relay/pkg/transport/matrix"
	"github.com/aiku/affiliate-relay/pkg/transport/mattermost"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const name = "affiliate-relay"

var (
	configPath         = flag.MakeFull("c", "config", "The path to your config file.", "config.yaml").String()
	writeExampleConfig = flag.MakeFull("e", "generate-example-config", "Save the example config to the config path and quit.", "false").Bool()
	checkOnly          = flag.Make().LongKey("check").Usage("Check platform and affiliate API connectivity, then quit.").Default("false").Bool()
	wantHelp, _        = flag.MakeHelpFlag()
)

func main() {
	flag.SetHelpTitles(
		name+" - Shopee affiliate link relay for Mattermost and Matrix",
		name+" [-he] [-c <path>] [--check]",
	)
	if err := flag.Parse(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		flag.PrintHelp()
		os.Exit(1)
	} else if *wantHelp {
		flag.PrintHelp()
		os.Exit(0)
	}

	if *writeExampleConfig {
		if err := os.WriteFile(*configPath, []byte(config.ExampleConfig), 0o600); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "Failed to write example config:", err)
			os.Exit(1)
		}
		_, _ = fmt.Fprintln(os.Stderr, "Wrote example config to", *configPath)
		os.Exit(0)
	}

	path := *configPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		// Allow running from environment variables alone.
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logPtr, err := cfg.Logging.Compile()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(2)
	}
	log := *logPtr
	log.Info().
		Str("version", Tag).
		Str("commit", Commit).
		Str("build_time", BuildTime).
		Str("transport", cfg.Transport.Type).
		Msg("Initializing " + name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *checkOnly {
		err = runCheck(ctx, cfg, log)
	} else {
		err = run(ctx, cfg, log)
	}
	if err != nil {
		log.Error().Err(err).Msg("Exiting with error")
		os.Exit(1)
	}
}

// components holds everything built from the config.
type components struct {
	transport relay.Transport
	client    *affiliate.Client
	relay     *relay.Relay
	registry  *prometheus.Registry
}

func build(cfg *config.Config, log zerolog.Logger) (*components, error) {
	transport, err := newTransport(cfg, log)
	if err != nil {
		return nil, err
	}

	client := affiliate.NewClient(
		affiliate.Credentials{AppID: cfg.Affiliate.AppID, Secret: cfg.Affiliate.Secret},
		cfg.Affiliate.Endpoint,
		cfg.Affiliate.SubIDs,
	)
	client.HTTPClient = &http.Client{Timeout: cfg.Affiliate.Timeout}

	words, err := rewrite.NewWordReplacer(cfg.Relay.Substitutions)
	if err != nil {
		return nil, fmt.Errorf("substitutions: %w", err)
	}
	expander := links.NewExpander(cfg.Affiliate.ExpandTimeout, log)
	rw := rewrite.New(expander, client, words)
	pol := policy.New(cfg.Relay.AllowKeywords, cfg.Relay.BlockKeywords)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink := metrics.NewPrometheusSink(reg, log)

	r := relay.New(transport, pol, rw, relay.Options{
		Sources:     cfg.Relay.SourceChannels,
		Destination: cfg.Relay.DestinationChannel,
	}, sink, log)

	return &components{transport: transport, client: client, relay: r, registry: reg}, nil
}

func newTransport(cfg *config.Config, log zerolog.Logger) (relay.Transport, error) {
	switch cfg.Transport.Type {
	case config.TransportMattermost:
		mm := cfg.Transport.Mattermost
		return mattermost.New(mm.ServerURL, mm.Token, mm.BotPrefix, log), nil
	case config.TransportMatrix:
		mx := cfg.Transport.Matrix
		return matrix.New(mx.HomeserverURL, mx.UserID, mx.AccessToken, log)
	default:
		return nil, fmt.Errorf("unknown transport type %q", cfg.Transport.Type)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	c, err := build(cfg, log)
	if err != nil {
		return err
	}

	// Stopping the relay for any reason also stops the admin API.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	adminErr := make(chan error, 1)
	if cfg.Admin.ListenAddr != "" {
		srv := admin.NewServer(c.relay, c.registry, log)
		go func() {
			adminErr <- srv.ListenAndServe(ctx, cfg.Admin.ListenAddr)
		}()
	} else {
		adminErr <- nil
	}

	relayErr := c.relay.Run(ctx)
	cancel()
	if err := <-adminErr; err != nil {
		log.Warn().Err(err).Msg("Admin API stopped with error")
	}
	log.Info().Msg("Relay stopped")
	return relayErr
}
