// File: cmd/components.go
package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/weifanh/classsync-cli/internal/browser"
	"github.com/weifanh/classsync-cli/internal/config"
	"github.com/weifanh/classsync-cli/internal/fill"
	"github.com/weifanh/classsync-cli/internal/flow"
	"github.com/weifanh/classsync-cli/internal/notify"
	"github.com/weifanh/classsync-cli/internal/schedule"
)

// automationComponents bundles everything a command needs to drive the
// schedule automation, so `run` and `serve` assemble the stack the same way.
type automationComponents struct {
	Flow     *flow.Flow
	Resolver *schedule.Resolver

	manager *browser.Manager
	store   schedule.SessionStore
	logger  *zap.Logger
}

// initializeAutomation builds the session store, payload resolver, browser
// manager and flow. A missing redis is tolerated; the in-memory resolver
// cache still covers the current process.
func initializeAutomation(ctx context.Context, conf *config.Config, notifier notify.Notifier, logger *zap.Logger) (*automationComponents, error) {
	store := schedule.SessionStore(schedule.NopStore{})
	if conf.Store.RedisAddr != "" {
		s, err := schedule.NewRedisStore(ctx, conf.Store)
		if err != nil {
			logger.Warn("Session store unavailable, continuing without persistence", zap.Error(err))
		} else {
			store = s
		}
	}
	resolver := schedule.NewResolver(logger, store)

	manager, err := browser.NewManager(ctx, logger, conf.Browser)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	filler := fill.NewFiller(logger, conf.Sites, conf.Flow.CustomInputTimeout)
	fl := flow.New(logger, conf, flow.NewManagerBrowser(manager), flow.NewFillerAdapter(filler), resolver, notifier)

	return &automationComponents{
		Flow:     fl,
		Resolver: resolver,
		manager:  manager,
		store:    store,
		logger:   logger,
	}, nil
}

// Shutdown tears the stack down in reverse order of construction.
func (c *automationComponents) Shutdown() {
	c.manager.Shutdown()
	if err := c.store.Close(); err != nil {
		c.logger.Warn("Closing session store failed", zap.Error(err))
	}
}
