package model

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/helixa-health/scribe/pkg/domain/types"
)

// Template describes a note generation template offered to the dictating
// clinician
type Template struct {
	ID           types.TemplateID `toml:"id"`
	Name         string           `toml:"name"`
	Instructions string           `toml:"instructions"`
}

// TemplateCatalog is the set of templates available for dictation
type TemplateCatalog struct {
	Templates []Template `toml:"templates"`
}

// Find returns the template with the given ID
func (c *TemplateCatalog) Find(id types.TemplateID) (*Template, error) {
	for i := range c.Templates {
		if c.Templates[i].ID == id {
			return &c.Templates[i], nil
		}
	}
	return nil, goerr.New("template not found", goerr.V("templateID", id))
}

// Default returns the first template of the catalog
func (c *TemplateCatalog) Default() (*Template, error) {
	if len(c.Templates) == 0 {
		return nil, goerr.New("template catalog is empty")
	}
	return &c.Templates[0], nil
}

// DefaultTemplateCatalog is used when no catalog file is configured
func DefaultTemplateCatalog() *TemplateCatalog {
	return &TemplateCatalog{
		Templates: []Template{
			{
				ID:           "standard",
				Name:         "Standard consultation",
				Instructions: "Subjective, Objective, Assessment, Plan.",
			},
			{
				ID:           "soap",
				Name:         "SOAP note",
				Instructions: "Strict SOAP sections with problem list.",
			},
		},
	}
}
