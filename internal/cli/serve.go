package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gogotex/docsync/internal/auth"
	"github.com/gogotex/docsync/internal/config"
	"github.com/gogotex/docsync/internal/server"
	"github.com/gogotex/docsync/pkg/logger"
	"github.com/gogotex/docsync/pkg/metrics"
	"github.com/gogotex/docsync/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the HTTP API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	a := newApp(ctx, cfg)
	defer a.close(context.Background())

	// index creation failures are not fatal: the store may come up later
	idxCtx, cancel := context.WithTimeout(ctx, cfg.MongoDB.Timeout+5*time.Second)
	if err := a.ensureIndexes(idxCtx); err != nil {
		logger.Warnf("ensure indexes: %v", err)
	}
	cancel()

	coll, err := a.people()
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterCollectors(reg)

	deps := server.Deps{
		Conn:     a.conn,
		People:   coll,
		Verifier: buildVerifier(ctx, cfg),
		Limiter:  buildLimiter(cfg, a.redis),
		Events:   a.events,
		Gatherer: reg,
	}
	logger.Infof("serving: memory=%v redis=%v auth=%v", cfg.MongoDB.Memory, a.redis != nil, deps.Verifier != nil)
	return server.Run(ctx, cfg.Server, server.NewRouter(deps))
}

func buildVerifier(ctx context.Context, cfg *config.Config) middleware.Verifier {
	var chain auth.Chain
	if cfg.JWT.Secret != "" {
		v, err := auth.NewHMACVerifier(cfg.JWT)
		if err != nil {
			logger.Warnf("jwt verifier: %v", err)
		} else {
			chain = append(chain, v)
		}
	}
	if cfg.OIDC.IssuerURL != "" && cfg.OIDC.ClientID != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDC)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			chain = append(chain, v)
		}
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}

func buildLimiter(cfg *config.Config, client *redis.Client) middleware.Limiter {
	rl := cfg.RateLimit
	if rl.RequestsPerMinute <= 0 {
		return nil
	}
	if rl.UseRedis && client != nil {
		return middleware.NewRedisLimiter(client, float64(rl.RequestsPerMinute)/60, rl.Burst, time.Minute)
	}
	return middleware.NewMemoryLimiter(float64(rl.RequestsPerMinute)/60, rl.Burst)
}
