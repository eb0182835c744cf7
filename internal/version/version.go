// Package version implements the Version Algebra (spec §4.1): parsing
// and total ordering of semantic version strings, with a grammar
// stricter than most semver parsers allow (no "v" prefix, no missing
// patch component, no leading zeros, no empty pre-release/build
// identifiers).
package version

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"islandregistry/internal/regerr"
)

// grammar is the semver.org 2.0.0 reference grammar, which already
// forbids leading zeros, a "v" prefix, missing components, and empty
// dot-separated identifiers. Masterminds/semver is more permissive than
// this (it tolerates "v1.2.3", "1.2", etc.), so this regexp is the strict
// gate spec §4.1 calls for; the Masterminds type is used only as the
// comparison engine once a string already cleared this gate.
var grammar = regexp.MustCompile(
	`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
		`(-(0|[1-9]\d*|\d*[A-Za-z-][0-9A-Za-z-]*)(\.(0|[1-9]\d*|\d*[A-Za-z-][0-9A-Za-z-]*))*)?` +
		`(\+([0-9A-Za-z-]+)(\.[0-9A-Za-z-]+)*)?$`,
)

// Version is a parsed, strictly-validated semantic version.
type Version struct {
	raw string
	sv  *semver.Version
}

// Parse validates s against the strict grammar and returns a Version
// usable for comparison. Build metadata is retained for display but
// never affects ordering or equality-for-ordering.
func Parse(s string) (*Version, error) {
	if !grammar.MatchString(s) {
		return nil, regerr.New(regerr.KindInvalidVersion, fmt.Sprintf("version %q does not match MAJOR.MINOR.PATCH[-PRERELEASE][+BUILD]", s))
	}
	sv, err := semver.NewVersion(s)
	if err != nil {
		return nil, regerr.Wrap(regerr.KindInvalidVersion, err)
	}
	return &Version{raw: s, sv: sv}, nil
}

// MustParse panics on an invalid version; used only in tests and for
// constants known to be valid at compile time.
func MustParse(s string) *Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version exactly as it was given to Parse.
func (v *Version) String() string { return v.raw }

// Compare returns -1, 0, or 1 per the total order defined in spec §4.1:
// numeric components compare numerically, pre-release identifiers
// compare per semver.org precedence rules, and build metadata never
// participates.
func (v *Version) Compare(other *Version) int {
	return v.sv.Compare(other.sv)
}

// LessThan reports whether v orders strictly before other.
func (v *Version) LessThan(other *Version) bool { return v.Compare(other) < 0 }

// EqualForOrdering reports whether v and other are equal under the
// ordering relation (i.e. identical ignoring build metadata); this is
// weaker than v.String() == other.String().
func (v *Version) EqualForOrdering(other *Version) bool { return v.Compare(other) == 0 }

// InRange reports whether v satisfies min <= v <= max, where either
// bound may be nil to mean unbounded (spec §4.10 compatible_with).
func (v *Version) InRange(min, max *Version) bool {
	if min != nil && v.LessThan(min) {
		return false
	}
	if max != nil && max.LessThan(v) {
		return false
	}
	return true
}

// SortKey returns the canonical string form (core + pre-release, build
// metadata stripped) for callers that want a stable display key rather
// than calling Compare directly. It is not itself lexicographically
// sortable; callers needing an order must use Compare or LessThan.
func (v *Version) SortKey() string {
	core, _, _ := strings.Cut(v.sv.String(), "+")
	return core
}
