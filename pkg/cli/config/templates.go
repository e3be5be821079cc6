package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"

	"github.com/helixa-health/scribe/pkg/domain/model"
)

// Templates holds CLI flags for the note template catalog
type Templates struct {
	path string
}

// Flags returns CLI flags for template catalog configuration
func (t *Templates) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "templates",
			Usage:       "Path to a TOML template catalog (built-in templates when empty)",
			Sources:     cli.EnvVars("SCRIBE_TEMPLATES"),
			Destination: &t.path,
		},
	}
}

// Configure loads the template catalog from the configured TOML file, or
// returns the built-in catalog when no path is set
func (t *Templates) Configure() (*model.TemplateCatalog, error) {
	if t.path == "" {
		return model.DefaultTemplateCatalog(), nil
	}

	raw, err := os.ReadFile(t.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read template catalog", goerr.V("path", t.path))
	}

	var catalog model.TemplateCatalog
	if err := toml.Unmarshal(raw, &catalog); err != nil {
		return nil, goerr.Wrap(err, "failed to parse template catalog", goerr.V("path", t.path))
	}
	if len(catalog.Templates) == 0 {
		return nil, goerr.New("template catalog has no templates", goerr.V("path", t.path))
	}
	for _, tmpl := range catalog.Templates {
		if err := tmpl.ID.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid template entry", goerr.V("name", tmpl.Name))
		}
	}
	return &catalog, nil
}
