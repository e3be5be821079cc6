package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/helixa-health/scribe/pkg/service/archive"
	"github.com/helixa-health/scribe/pkg/service/auth"
	"github.com/helixa-health/scribe/pkg/service/chat"
	"github.com/helixa-health/scribe/pkg/service/upload"
)

// Upload holds CLI flags for the processing endpoint the dictation and chat
// clients talk to
type Upload struct {
	baseURL       string
	token         string `masq:"secret"`
	validateJWT   bool
	archiveBucket string
}

// Flags returns CLI flags for upload endpoint configuration
func (u *Upload) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "endpoint",
			Usage:       "Base URL of the processing endpoint",
			Value:       "http://localhost:8080",
			Sources:     cli.EnvVars("SCRIBE_ENDPOINT"),
			Destination: &u.baseURL,
		},
		&cli.StringFlag{
			Name:        "auth-token",
			Usage:       "Bearer token for the processing endpoint",
			Sources:     cli.EnvVars("SCRIBE_AUTH_TOKEN"),
			Destination: &u.token,
		},
		&cli.BoolFlag{
			Name:        "auth-token-jwt",
			Usage:       "Treat the bearer token as a JWT and refuse expired tokens",
			Sources:     cli.EnvVars("SCRIBE_AUTH_TOKEN_JWT"),
			Destination: &u.validateJWT,
		},
		&cli.StringFlag{
			Name:        "archive-bucket",
			Usage:       "GCS bucket for archiving raw recordings (disabled when empty)",
			Sources:     cli.EnvVars("SCRIBE_ARCHIVE_BUCKET"),
			Destination: &u.archiveBucket,
		},
	}
}

// LogAttrs returns log attributes for the upload configuration
func (u *Upload) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("endpoint", u.baseURL),
		slog.Bool("jwt", u.validateJWT),
		slog.String("archive_bucket", u.archiveBucket),
	}
}

// TokenSource builds the token source for outgoing requests
func (u *Upload) TokenSource() auth.TokenSource {
	source := auth.Static(u.token)
	if u.validateJWT {
		return auth.NewJWT(source)
	}
	return source
}

// ConfigurePipeline builds the upload pipeline from the configured flags
func (u *Upload) ConfigurePipeline(ctx context.Context) (*upload.Pipeline, error) {
	if u.baseURL == "" {
		return nil, goerr.New("endpoint is required")
	}

	var opts []upload.Option
	if u.archiveBucket != "" {
		store, err := archive.NewGCS(ctx, u.archiveBucket)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize archive store",
				goerr.V("bucket", u.archiveBucket))
		}
		opts = append(opts, upload.WithArchive(store))
	}

	return upload.New(u.baseURL+"/upload-json", u.TokenSource(), opts...), nil
}

// ConfigureChat builds the chat streaming client from the configured flags
func (u *Upload) ConfigureChat() (*chat.Client, error) {
	if u.baseURL == "" {
		return nil, goerr.New("endpoint is required")
	}
	return chat.NewClient(u.baseURL+"/chat-with-helixa", u.TokenSource()), nil
}
