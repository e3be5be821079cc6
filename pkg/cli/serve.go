package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/helixa-health/scribe/pkg/cli/config"
	httpctrl "github.com/helixa-health/scribe/pkg/controller/http"
	"github.com/helixa-health/scribe/pkg/utils/logging"
)

func cmdServe() *cli.Command {
	var addr string
	var authToken string
	var repoCfg config.Repository
	var geminiCfg config.Gemini

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("SCRIBE_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "serve-auth-token",
			Usage:       "Require this bearer token on all requests (disabled when empty)",
			Sources:     cli.EnvVars("SCRIBE_SERVE_AUTH_TOKEN"),
			Destination: &authToken,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the dev backend server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logger.Error("failed to close repository", "error", err.Error())
				}
			}()

			opts := []httpctrl.Options{}
			if authToken != "" {
				opts = append(opts, httpctrl.WithAuthToken(authToken))
			}

			llmClient, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure Gemini client")
			}
			if llmClient != nil {
				opts = append(opts, httpctrl.WithGenerator(httpctrl.NewLLMGenerator(llmClient)))
				logger.Info("LLM note generation enabled", "gemini", geminiCfg.LogAttrs())
			} else {
				logger.Info("Gemini not configured, using template generation")
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(repo, opts...),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return goerr.Wrap(err, "HTTP server failed")
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("Shutting down HTTP server")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}
}
