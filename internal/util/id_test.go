package util

import (
	"strings"
	"testing"
)

func TestDeterministicIDIsStable(t *testing.T) {
	first := DeterministicID("clm", "dos_1", "Taxes went up in 2023", 0)
	second := DeterministicID("clm", "dos_1", "Taxes went up in 2023", 0)
	if first != second {
		t.Fatalf("expected stable id, got %s and %s", first, second)
	}
	if !strings.HasPrefix(first, "clm_") || len(first) != len("clm_")+16 {
		t.Fatalf("unexpected id shape %q", first)
	}
}

func TestDeterministicIDDependsOnEveryInput(t *testing.T) {
	base := DeterministicID("clm", "dos_1", "text", 0)
	variants := []string{
		DeterministicID("clm", "dos_2", "text", 0),
		DeterministicID("clm", "dos_1", "other", 0),
		DeterministicID("clm", "dos_1", "text", 1),
	}
	for _, v := range variants {
		if v == base {
			t.Fatalf("expected %s to differ from %s", v, base)
		}
	}
}

func TestCanonicalURLHashCollapsesSpellings(t *testing.T) {
	a := CanonicalURLHash("https://WWW.Example.org/report/#section-2")
	b := CanonicalURLHash("https://example.org/report")
	if a != b {
		t.Fatalf("expected equal hashes for equivalent urls")
	}
	if CanonicalURLHash("https://example.org/other") == a {
		t.Fatal("expected different paths to hash differently")
	}
}

func TestNewIDPrefix(t *testing.T) {
	id := NewID("dsp")
	if !strings.HasPrefix(id, "dsp_") || len(id) != 4+32 {
		t.Fatalf("unexpected id %q", id)
	}
}
