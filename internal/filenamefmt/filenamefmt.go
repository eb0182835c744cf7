// Package filenamefmt implements the Filename Grammar (spec §4.2):
// parsing and building artifact filenames, with the normalization rules
// spec §4.2 requires applied before emitting and inverted on parse.
package filenamefmt

import (
	"regexp"
	"strings"

	"islandregistry/internal/regerr"
)

const (
	// BinaryExt is the extension used by platform-specific artifacts.
	BinaryExt = ".island"
	// SourceExt is the extension used by source archives.
	SourceExt = ".tar.gz"
)

var nonAlnumRun = regexp.MustCompile(`[^A-Za-z0-9]+`)

// NormalizeName lowercases name and collapses runs of non-alphanumeric
// characters to a single underscore, per spec §4.2, then trims leading
// and trailing underscores.
func NormalizeName(name string) string {
	lower := strings.ToLower(name)
	return strings.Trim(nonAlnumRun.ReplaceAllString(lower, "_"), "_")
}

// encodeVersion replaces "-" with "_" for filename embedding while
// preserving "+" build metadata, per spec §4.2. Semantic version
// identifiers never contain "_", so this is losslessly invertible by
// decodeVersion.
func encodeVersion(v string) string {
	return strings.ReplaceAll(v, "-", "_")
}

func decodeVersion(encoded string) string {
	return strings.ReplaceAll(encoded, "_", "-")
}

// Tag is a PEP-425-shaped platform tag triple. It is carried and
// compared as opaque strings; this package does not interpret it beyond
// equality, per spec §4.2.
type Tag struct {
	Python   string
	ABI      string
	Platform string
}

// IsPurePlatformIndependent reports whether the tag is the
// "py3-none-any" triple designating a pure, platform-independent
// artifact.
func (t Tag) IsPurePlatformIndependent() bool {
	return t.Python == "py3" && t.ABI == "none" && t.Platform == "any"
}

// String renders the tag in its filename form, "{py}-{abi}-{plat}".
func (t Tag) String() string {
	return t.Python + "-" + t.ABI + "-" + t.Platform
}

// Kind distinguishes the two filename shapes spec §4.2 defines.
type Kind int

const (
	KindBinary Kind = iota
	KindSource
)

// Parsed is the result of parsing a filename.
type Parsed struct {
	Kind     Kind
	Name     string // already normalized
	Version  string // decoded, but not re-validated as semver here
	Build    string // optional build tag segment; empty if absent
	Tag      Tag    // zero value for source archives
	Filename string
}

// Build constructs a binary artifact filename from a (possibly
// unnormalized) name, a version string, an optional build tag, and a
// platform tag triple.
func Build(name, version, build string, tag Tag) string {
	parts := []string{NormalizeName(name), encodeVersion(version)}
	if build != "" {
		parts = append(parts, build)
	}
	parts = append(parts, tag.Python, tag.ABI, tag.Platform)
	return strings.Join(parts, "-") + BinaryExt
}

// BuildSource constructs a source archive filename from a (possibly
// unnormalized) name and a version string.
func BuildSource(name, version string) string {
	return NormalizeName(name) + "-" + encodeVersion(version) + SourceExt
}

// Parse parses filename into its normalized components. It recognizes
// both shapes from spec §4.2 and rejects anything else with
// invalid-filename.
func Parse(filename string) (*Parsed, error) {
	switch {
	case strings.HasSuffix(filename, SourceExt):
		base := strings.TrimSuffix(filename, SourceExt)
		parts := strings.Split(base, "-")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, invalidFilename(filename, "source archive must be {name}-{version}.tar.gz")
		}
		return &Parsed{
			Kind:     KindSource,
			Name:     parts[0],
			Version:  decodeVersion(parts[1]),
			Filename: filename,
		}, nil

	case strings.HasSuffix(filename, BinaryExt):
		base := strings.TrimSuffix(filename, BinaryExt)
		parts := strings.Split(base, "-")
		var name, encVer, build, py, abi, plat string
		switch len(parts) {
		case 5:
			name, encVer, py, abi, plat = parts[0], parts[1], parts[2], parts[3], parts[4]
		case 6:
			name, encVer, build, py, abi, plat = parts[0], parts[1], parts[2], parts[3], parts[4], parts[5]
		default:
			return nil, invalidFilename(filename, "binary artifact must be {name}-{version}(-{build})?-{py}-{abi}-{plat}.island")
		}
		if name == "" || encVer == "" || py == "" || abi == "" || plat == "" {
			return nil, invalidFilename(filename, "empty filename component")
		}
		return &Parsed{
			Kind:     KindBinary,
			Name:     name,
			Version:  decodeVersion(encVer),
			Build:    build,
			Tag:      Tag{Python: py, ABI: abi, Platform: plat},
			Filename: filename,
		}, nil

	default:
		return nil, invalidFilename(filename, "unrecognized extension, expected .island or .tar.gz")
	}
}

func invalidFilename(filename, reason string) *regerr.Error {
	return regerr.New(regerr.KindInvalidFilename, reason).WithDetails(map[string]any{
		"filename": filename,
		"reason":   reason,
	})
}

// CheckAgreement verifies that a parsed filename agrees with the
// manifest's name and version, and — for binary artifacts — with the
// declared platform tag, per spec §4.2/§4.8 step 3.
func CheckAgreement(p *Parsed, manifestName, manifestVersion, declaredPlatformTag string) error {
	if p.Name != NormalizeName(manifestName) {
		return regerr.New(regerr.KindNameMismatch, "filename name does not match manifest name").
			WithDetails(map[string]any{"filename": p.Filename, "parsed_name": p.Name, "manifest_name": manifestName})
	}
	if p.Version != manifestVersion {
		return regerr.New(regerr.KindVersionMismatch, "filename version does not match manifest version").
			WithDetails(map[string]any{"filename": p.Filename, "parsed_version": p.Version, "manifest_version": manifestVersion})
	}
	if p.Kind == KindBinary && declaredPlatformTag != "" {
		if p.Tag.String() != declaredPlatformTag {
			return regerr.New(regerr.KindTagMismatch, "filename platform tag does not match declared platform tag").
				WithDetails(map[string]any{"filename": p.Filename, "parsed_tag": p.Tag.String(), "declared_tag": declaredPlatformTag})
		}
	}
	return nil
}
