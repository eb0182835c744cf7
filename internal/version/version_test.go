package version

import (
	"testing"

	"islandregistry/internal/regerr"
)

func TestParseRejectsBadGrammar(t *testing.T) {
	cases := []string{
		"v1.0.0",
		"1.0",
		"1.0.0.0",
		"01.0.0",
		"1.0.0-",
		"1.0.0+",
		"1.0.0-.",
		"",
		"1.0.0-alpha..1",
	}
	for _, s := range cases {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) expected error, got none", s)
		} else if regerr.KindOf(err) != regerr.KindInvalidVersion {
			t.Errorf("Parse(%q) expected invalid-version, got %v", s, regerr.KindOf(err))
		}
	}
}

func TestParseAccepts(t *testing.T) {
	cases := []string{"0.0.0", "1.2.3", "1.2.3-alpha", "1.2.3-alpha.1", "1.2.3+build.5", "1.2.3-rc.1+build.7"}
	for _, s := range cases {
		if _, err := Parse(s); err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", s, err)
		}
	}
}

func TestBuildMetadataIgnoredInOrdering(t *testing.T) {
	a := MustParse("1.2.3+build.1")
	b := MustParse("1.2.3+build.2")
	if !a.EqualForOrdering(b) {
		t.Fatalf("expected build metadata to be ignored in ordering")
	}
	if a.String() == b.String() {
		t.Fatalf("expected raw strings to differ")
	}
}

func TestPrereleaseOrdersBeforeRelease(t *testing.T) {
	pre := MustParse("1.0.0-alpha")
	rel := MustParse("1.0.0")
	if !pre.LessThan(rel) {
		t.Fatalf("expected pre-release to order before release")
	}
}

func TestPrereleaseNumericVsLexicographic(t *testing.T) {
	a := MustParse("1.0.0-alpha.1")
	b := MustParse("1.0.0-alpha.2")
	c := MustParse("1.0.0-alpha.10")
	if !a.LessThan(b) {
		t.Fatalf("expected alpha.1 < alpha.2")
	}
	if !b.LessThan(c) {
		t.Fatalf("expected alpha.2 < alpha.10 (numeric compare, not lexicographic)")
	}
}

func TestTotalOrderTransitivity(t *testing.T) {
	versions := []string{"0.1.0", "0.5.0", "0.5.5", "0.6.0", "0.6.50", "0.6.99", "1.0.0", "2.0.0-rc.1", "2.0.0"}
	parsed := make([]*Version, len(versions))
	for i, s := range versions {
		parsed[i] = MustParse(s)
	}
	for i := range parsed {
		for j := range parsed {
			for k := range parsed {
				a, b, c := parsed[i], parsed[j], parsed[k]
				if (a.Compare(b) <= 0) && (b.Compare(c) <= 0) {
					if a.Compare(c) > 0 {
						t.Fatalf("transitivity violated: %s <= %s <= %s but %s > %s", a, b, c, a, c)
					}
				}
			}
		}
	}
}

func TestInRange(t *testing.T) {
	min := MustParse("0.5.0")
	max := MustParse("0.6.99")
	if !MustParse("0.5.5").InRange(min, max) {
		t.Fatalf("0.5.5 should be in [0.5.0, 0.6.99]")
	}
	if MustParse("0.4.9").InRange(min, max) {
		t.Fatalf("0.4.9 should be below range")
	}
	if !MustParse("0.6.0").InRange(min, nil) {
		t.Fatalf("0.6.0 should be in [0.6.0, +inf)")
	}
}
