package identity

import (
	"testing"

	"github.com/Masterminds/semver/v3"
)

func TestKeyRoundTrip(t *testing.T) {
	for _, s := range []string{
		"census-2.0.0.db",
		"example.com/census-2.0.0.db",
		"example.com/census-2012-1.12.3.db",
		"census-2.0.0/pop-2.0.0.db",
		"a/b/c-0.0.1.db",
		"weather-10.0.7.csv",
	} {
		k, err := ParseKey(s)
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", s, err)
		}
		if got := k.String(); got != s {
			t.Errorf("round trip of %q gave %q", s, got)
		}
	}
}

func TestParseKeyFields(t *testing.T) {
	k, err := ParseKey("example.com/census-2012-1.12.3.db")
	if err != nil {
		t.Fatal(err)
	}
	if k.Dir != "example.com" || k.Name != "census-2012" || k.Ext != "db" {
		t.Fatalf("unexpected fields: %+v", k)
	}
	if k.Version.String() != "1.12.3" {
		t.Fatalf("version: %s", k.Version.String())
	}
	if k.StripVersion() != "example.com/census-2012" {
		t.Fatalf("StripVersion: %s", k.StripVersion())
	}
	if k.DirName() != "example.com/census-2012-1.12.3" {
		t.Fatalf("DirName: %s", k.DirName())
	}
}

func TestParseKeyRejects(t *testing.T) {
	for _, s := range []string{
		"",
		"census.db",          // no version suffix
		"census-2.0.db",      // not a full triple
		"census-2.db",        // not a full triple
		"census-2.0.0",       // no extension
		"census-abc.db",      // suffix not numeric
		"-2.0.0.db",          // empty name
		"census-2.0.0-rc.db", // pre-release suffix is not part of the convention
	} {
		if _, err := ParseKey(s); err == nil {
			t.Errorf("ParseKey(%q) should fail", s)
		}
	}
}

func TestIdentityCacheKey(t *testing.T) {
	b := New("d001", "example.com/census", *semver.MustParse("2.0.0"))
	if got := b.CacheKey().String(); got != "example.com/census-2.0.0.db" {
		t.Fatalf("bundle key: %s", got)
	}
	if b.VName() != "example.com/census-2.0.0" {
		t.Fatalf("vname: %s", b.VName())
	}
	if b.VID != "d001-2.0.0" {
		t.Fatalf("vid: %s", b.VID)
	}

	p := NewPartition(b, "p001", "pop", *semver.MustParse("2.0.0"))
	if got := p.CacheKey().String(); got != "example.com/census-2.0.0/pop-2.0.0.db" {
		t.Fatalf("partition key: %s", got)
	}
	if p.BundleVID != b.VID {
		t.Fatal("partition should record its owning bundle vid")
	}
}

func TestRevisionIsTrailingComponent(t *testing.T) {
	// The displayed revision is the trailing numeric group of the
	// version, so x-2.0.0 shows revision 0.
	i := New("d002", "x", *semver.MustParse("2.0.0"))
	if i.Revision() != 0 {
		t.Fatalf("revision of 2.0.0 = %d, want 0", i.Revision())
	}
	j := New("d002", "x", *semver.MustParse("0.0.7"))
	if j.Revision() != 7 {
		t.Fatalf("revision of 0.0.7 = %d, want 7", j.Revision())
	}
}
