package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/helixa-health/scribe/pkg/cli/config"
	"github.com/helixa-health/scribe/pkg/domain/types"
)

func TestTemplatesConfigure(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		wantIDs []types.TemplateID
	}{
		{
			name: "valid catalog",
			content: `
[[templates]]
id = "standard"
name = "Standard Consultation"
instructions = "Structure the note as Subjective, Objective, Assessment, Plan."

[[templates]]
id = "brief"
name = "Brief Note"
instructions = "Summarize the consultation in two short paragraphs."
`,
			wantIDs: []types.TemplateID{"standard", "brief"},
		},
		{
			name:    "empty catalog",
			content: "\n",
			wantErr: true,
		},
		{
			name: "missing template id",
			content: `
[[templates]]
name = "No ID"
instructions = "This entry has no identifier."
`,
			wantErr: true,
		},
		{
			name:    "malformed toml",
			content: "[[templates]\nid = broken",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "templates.toml")
			gt.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			catalog, err := config.NewTemplatesForTest(path).Configure()
			if tt.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err)

			gt.Array(t, catalog.Templates).Length(len(tt.wantIDs))
			for i, id := range tt.wantIDs {
				gt.Equal(t, catalog.Templates[i].ID, id)
			}
		})
	}
}

func TestTemplatesDefaultCatalog(t *testing.T) {
	catalog, err := config.NewTemplatesForTest("").Configure()
	gt.NoError(t, err)

	def, err := catalog.Default()
	gt.NoError(t, err)
	gt.Equal(t, def.ID, types.TemplateID("standard"))
}

func TestTemplatesMissingFile(t *testing.T) {
	_, err := config.NewTemplatesForTest(filepath.Join(t.TempDir(), "absent.toml")).Configure()
	gt.Error(t, err)
}

func TestLoggerConfigure(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "console info", level: "info", format: "console"},
		{name: "json debug", level: "debug", format: "json"},
		{name: "invalid level", level: "loud", format: "console", wantErr: true},
		{name: "invalid format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closer, err := config.NewLoggerForTest(tt.level, tt.format).Configure()
			if tt.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err)
			closer()
		})
	}
}

func TestUploadTokenSource(t *testing.T) {
	src := config.NewUploadForTest("http://localhost:8080", "tok-123", false).TokenSource()
	token, err := src.Token(context.Background())
	gt.NoError(t, err)
	gt.Equal(t, token, "tok-123")
}

func TestUploadJWTTokenSourceRejectsOpaqueToken(t *testing.T) {
	src := config.NewUploadForTest("http://localhost:8080", "not-a-jwt", true).TokenSource()
	_, err := src.Token(context.Background())
	gt.Error(t, err)
}

func TestRepositoryConfigureMemory(t *testing.T) {
	repo, err := config.NewRepositoryForTest("memory", "").Configure(context.Background())
	gt.NoError(t, err)
	gt.NoError(t, repo.Close())
}

func TestRepositoryConfigureUnknownBackend(t *testing.T) {
	_, err := config.NewRepositoryForTest("postgres", "").Configure(context.Background())
	gt.Error(t, err)
}

func TestRepositoryConfigureFirestoreRequiresProject(t *testing.T) {
	_, err := config.NewRepositoryForTest("firestore", "").Configure(context.Background())
	gt.Error(t, err)
}
