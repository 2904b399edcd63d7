// Package fhir provides a minimal client for reading resources from a FHIR
// REST server as paginated search bundles.
package fhir

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrValidation marks a bundle that failed strict validation. Callers check
// it with errors.Is to distinguish bad content from transport failures.
var ErrValidation = errors.New("bundle validation failed")

var validate = validator.New()

// Resource is a single FHIR resource: its type plus the raw decoded payload.
// Payloads stay schemaless, the per-type models know how to read them.
type Resource struct {
	Type string
	Data map[string]any
}

func (r *Resource) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	r.Data = m
	if t, ok := m["resourceType"].(string); ok {
		r.Type = t
	}
	return nil
}

// ID returns the resource's logical id, empty when absent.
func (r *Resource) ID() string {
	id, _ := r.Data["id"].(string)
	return id
}

// BundleLink is a paging link of a search bundle.
type BundleLink struct {
	Relation string `json:"relation" validate:"required"`
	URL      string `json:"url" validate:"required"`
}

// BundleEntry wraps one resource of a search bundle.
type BundleEntry struct {
	FullURL  string    `json:"fullUrl"`
	Resource *Resource `json:"resource" validate:"required"`
}

// Bundle is a FHIR search result page.
type Bundle struct {
	ResourceType string        `json:"resourceType" validate:"required,eq=Bundle"`
	Type         string        `json:"type" validate:"required"`
	Total        *int          `json:"total"`
	Link         []BundleLink  `json:"link" validate:"omitempty,dive"`
	Entry        []BundleEntry `json:"entry" validate:"omitempty,dive"`
}

// ParseBundle decodes a bundle. In strict mode the envelope is validated and
// failures are reported as ErrValidation.
func ParseBundle(data []byte, strict bool) (*Bundle, error) {
	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}

	if strict {
		if err := validate.Struct(&bundle); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	return &bundle, nil
}

// NextLink returns the URL of the "next" paging link, empty when this is the
// last page.
func (b *Bundle) NextLink() string {
	for _, l := range b.Link {
		if l.Relation == "next" {
			return l.URL
		}
	}
	return ""
}

// EntriesOfType returns the bundle's resources of the given type. Servers
// may interleave included resources of other types; those are skipped.
func (b *Bundle) EntriesOfType(resourceType string) []*Resource {
	var resources []*Resource
	for _, entry := range b.Entry {
		if entry.Resource != nil && entry.Resource.Type == resourceType {
			resources = append(resources, entry.Resource)
		}
	}
	return resources
}

// CapabilityStatement is the subset of the server's /metadata response the
// loader cares about.
type CapabilityStatement struct {
	ResourceType   string `json:"resourceType"`
	FHIRVersion    string `json:"fhirVersion"`
	Implementation struct {
		Description string `json:"description"`
		URL         string `json:"url"`
	} `json:"implementation"`
	Software struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"software"`
}
