// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aiku/affiliate-relay/pkg/config"
	"github.com/aiku/affiliate-relay/pkg/relay"
)

// checkProductURL is converted during --check to exercise the credentials.
const checkProductURL = "https://shopee.com.br/produto-teste-123"

var errCheckFailed = errors.New("connectivity check failed")

// runCheck verifies access to every configured channel and mints one tracked
// link, logging each result. Nothing is posted.
func runCheck(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	c, err := build(cfg, log)
	if err != nil {
		return err
	}
	return check(ctx, c, cfg.Relay.SourceChannels, cfg.Relay.DestinationChannel, log)
}

func check(ctx context.Context, c *components, sources []string, destination string, log zerolog.Logger) error {
	failed := false

	if checker, ok := c.transport.(relay.Checker); ok {
		channels := append(append([]string{}, sources...), destination)
		if err := checker.Check(ctx, channels); err != nil {
			log.Error().Err(err).Msg("Platform check failed")
			failed = true
		} else {
			log.Info().Strs("channels", channels).Msg("Platform check passed")
		}
	} else {
		log.Warn().Msg("Transport does not support connectivity checks")
	}

	res := c.client.GenerateTrackedLink(ctx, checkProductURL)
	if res.OK() {
		log.Info().
			Str("origin_url", checkProductURL).
			Str("tracked_url", res.TrackedURL).
			Msg("Affiliate API check passed")
	} else {
		log.Error().
			Err(res.Err).
			Str("reason", res.Reason.String()).
			Msg("Affiliate API check failed")
		failed = true
	}

	if failed {
		return fmt.Errorf("%w: see log for details", errCheckFailed)
	}
	return nil
}
