package config

import "testing"

func TestParseMemorySuffixes(t *testing.T) {
	cases := map[string]int64{
		"0":      0,
		"100":    100,
		"1k":     1024,
		"1kb":    1024,
		"1K":     1024,
		"1m":     1024 * 1024,
		"1MB":    1024 * 1024,
		"2g":     2 * 1024 * 1024 * 1024,
		"1.5kb":  1536,
		"  4m  ": 4 * 1024 * 1024,
	}
	for input, want := range cases {
		got, err := ParseMemory(input)
		if err != nil {
			t.Fatalf("ParseMemory(%q): unexpected error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseMemory(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestParseMemoryRejectsUnknownSuffix(t *testing.T) {
	if _, err := ParseMemory("10zz"); err == nil {
		t.Fatal("expected error for unknown suffix")
	}
}

func TestParseMemoryRejectsEmpty(t *testing.T) {
	if _, err := ParseMemory(""); err == nil {
		t.Fatal("expected error for empty value")
	}
}

func TestParseMemoryRejectsMissingNumber(t *testing.T) {
	if _, err := ParseMemory("mb"); err == nil {
		t.Fatal("expected error when number part is missing")
	}
}
