// Package manifest implements the Manifest Schema (spec §4.3): the
// structured metadata accompanying a registration, validated but stored
// as a verbatim snapshot so unknown keys survive round-trips
// (spec §9 "Dynamic-schema forward-compat").
package manifest

import (
	"encoding/json"
	"regexp"
	"unicode/utf8"

	"islandregistry/internal/regerr"
	"islandregistry/internal/version"
)

// EntryPointPattern is the identifier grammar spec §4.3 requires for
// entry-point keys.
var EntryPointPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NamePattern is the package name grammar spec §3 requires for a
// package's normalized identity: lowercase, starting with a letter,
// hyphens and underscores allowed thereafter. Names outside this
// grammar are rejected, not normalized, so a publisher sees the exact
// form their name must take.
var NamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

const maxDescriptionLen = 500

// FieldError names one invalid-manifest finding: which field, what went
// wrong, and the offending value, per spec §4.3.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"offending_value,omitempty"`
}

// Manifest is the validated, typed view of a registration's metadata.
// RawJSON retains the exact bytes the publisher submitted so unknown
// keys are preserved verbatim in the stored snapshot; Raw is the same
// document decoded to a generic map for programmatic lookups.
type Manifest struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Game             string            `json:"game"`
	Description      string            `json:"description,omitempty"`
	Authors          []string          `json:"authors,omitempty"`
	MinimumAPVersion string            `json:"minimum_ap_version"`
	MaximumAPVersion string            `json:"maximum_ap_version,omitempty"`
	EntryPoints      map[string]string `json:"entry_points"`
	License          string            `json:"license,omitempty"`
	Homepage         string            `json:"homepage,omitempty"`
	Repository       string            `json:"repository,omitempty"`
	Keywords         []string          `json:"keywords,omitempty"`
	Platforms        []string          `json:"platforms,omitempty"`
	Maturity         string            `json:"maturity,omitempty"`

	Raw     map[string]any  `json:"-"`
	RawJSON json.RawMessage `json:"-"`
}

// Parse decodes and validates a manifest from JSON bytes. On success
// the returned Manifest's RawJSON is exactly the input bytes.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, regerr.New(regerr.KindInvalidManifest, "manifest is not valid JSON").
			WithDetails(map[string]any{"error": err.Error()})
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, regerr.New(regerr.KindInvalidManifest, "manifest does not match the expected shape").
			WithDetails(map[string]any{"error": err.Error()})
	}
	m.Raw = raw
	m.RawJSON = append(json.RawMessage{}, data...)

	if errs := m.Validate(); len(errs) > 0 {
		return nil, invalidManifestError(errs)
	}
	return &m, nil
}

// Validate checks every field spec §4.3 names and returns every
// violation found, rather than failing fast, so a publisher sees all
// problems in one round trip.
func (m *Manifest) Validate() []FieldError {
	var errs []FieldError

	if m.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "required"})
	} else if !NamePattern.MatchString(m.Name) {
		errs = append(errs, FieldError{Field: "name", Message: "must match ^[a-z][a-z0-9_-]*$", Value: m.Name})
	}
	if m.Version == "" {
		errs = append(errs, FieldError{Field: "version", Message: "required"})
	} else if _, err := version.Parse(m.Version); err != nil {
		errs = append(errs, FieldError{Field: "version", Message: err.Error(), Value: m.Version})
	}
	if m.Game == "" {
		errs = append(errs, FieldError{Field: "game", Message: "required"})
	}

	var minVer *version.Version
	if m.MinimumAPVersion == "" {
		errs = append(errs, FieldError{Field: "minimum_ap_version", Message: "required"})
	} else if v, err := version.Parse(m.MinimumAPVersion); err != nil {
		errs = append(errs, FieldError{Field: "minimum_ap_version", Message: err.Error(), Value: m.MinimumAPVersion})
	} else {
		minVer = v
	}

	if m.MaximumAPVersion != "" {
		if maxVer, err := version.Parse(m.MaximumAPVersion); err != nil {
			errs = append(errs, FieldError{Field: "maximum_ap_version", Message: err.Error(), Value: m.MaximumAPVersion})
		} else if minVer != nil && maxVer.LessThan(minVer) {
			errs = append(errs, FieldError{
				Field:   "maximum_ap_version",
				Message: "must be >= minimum_ap_version",
				Value:   m.MaximumAPVersion,
			})
		}
	}

	if len(m.EntryPoints) == 0 {
		errs = append(errs, FieldError{Field: "entry_points", Message: "at least one entry point is required"})
	}
	for id, target := range m.EntryPoints {
		if !EntryPointPattern.MatchString(id) {
			errs = append(errs, FieldError{
				Field:   "entry_points." + id,
				Message: "entry point identifiers must match [A-Za-z_][A-Za-z0-9_]*",
				Value:   id,
			})
		}
		if target == "" {
			errs = append(errs, FieldError{
				Field:   "entry_points." + id,
				Message: "target reference must not be empty",
			})
		}
	}

	if utf8.RuneCountInString(m.Description) > maxDescriptionLen {
		errs = append(errs, FieldError{
			Field:   "description",
			Message: "must be at most 500 characters",
			Value:   m.Description,
		})
	}

	return errs
}

func invalidManifestError(errs []FieldError) *regerr.Error {
	return regerr.New(regerr.KindInvalidManifest, "manifest failed validation").WithDetails(map[string]any{
		"errors": errs,
	})
}
