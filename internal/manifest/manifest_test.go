package manifest

import (
	"strings"
	"testing"
)

func validJSON() string {
	return `{
		"name": "pokemon_emerald",
		"version": "1.0.0",
		"game": "Pokemon Emerald",
		"minimum_ap_version": "0.5.0",
		"entry_points": {"pokemon_emerald": "pokemon_emerald.world:World"},
		"future_field": "kept-verbatim"
	}`
}

func TestParseValid(t *testing.T) {
	m, err := Parse([]byte(validJSON()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "pokemon_emerald" || m.Game != "Pokemon Emerald" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
	if m.Raw["future_field"] != "kept-verbatim" {
		t.Fatalf("unknown key not preserved: %+v", m.Raw)
	}
	if string(m.RawJSON) != validJSON() {
		t.Fatalf("RawJSON not verbatim")
	}
}

func TestParseMissingRequired(t *testing.T) {
	_, err := Parse([]byte(`{"name": "x"}`))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestValidateNameMustBeLowercase(t *testing.T) {
	bad := `{
		"name": "Pokemon-Emerald", "version": "1.0.0", "game": "g",
		"minimum_ap_version": "0.1.0",
		"entry_points": {"ep": "x:Y"}
	}`
	_, err := Parse([]byte(bad))
	if err == nil {
		t.Fatal("expected invalid-manifest for an uppercase package name")
	}
}

func TestValidateNameRejectsSpaces(t *testing.T) {
	bad := `{
		"name": "My Pkg", "version": "1.0.0", "game": "g",
		"minimum_ap_version": "0.1.0",
		"entry_points": {"ep": "x:Y"}
	}`
	_, err := Parse([]byte(bad))
	if err == nil {
		t.Fatal("expected invalid-manifest for a package name containing spaces")
	}
}

func TestValidateEntryPointIdentifier(t *testing.T) {
	bad := `{
		"name": "x", "version": "1.0.0", "game": "g",
		"minimum_ap_version": "0.1.0",
		"entry_points": {"1bad": "x:Y"}
	}`
	_, err := Parse([]byte(bad))
	if err == nil {
		t.Fatal("expected invalid-manifest for bad entry point identifier")
	}
}

func TestValidateDescriptionLength(t *testing.T) {
	long := strings.Repeat("a", 501)
	bad := `{
		"name": "x", "version": "1.0.0", "game": "g",
		"minimum_ap_version": "0.1.0",
		"entry_points": {"ep": "x:Y"},
		"description": "` + long + `"
	}`
	_, err := Parse([]byte(bad))
	if err == nil {
		t.Fatal("expected invalid-manifest for too-long description")
	}
}

func TestValidateMaxLessThanMin(t *testing.T) {
	bad := `{
		"name": "x", "version": "1.0.0", "game": "g",
		"minimum_ap_version": "0.6.0", "maximum_ap_version": "0.5.0",
		"entry_points": {"ep": "x:Y"}
	}`
	_, err := Parse([]byte(bad))
	if err == nil {
		t.Fatal("expected invalid-manifest for max < min")
	}
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
