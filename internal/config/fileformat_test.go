package config

import (
	"strings"
	"testing"
)

func TestParseFileScalarsAndLists(t *testing.T) {
	src := `
# comment line
[common]
listen: 127.0.0.1:6380
maxmemory: 256mb
tags:
  - alpha
  - beta
`
	sections, err := ParseFile(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	common, ok := sections["common"]
	if !ok {
		t.Fatal("expected [common] section")
	}
	if common.Scalars["listen"] != "127.0.0.1:6380" {
		t.Fatalf("got %q", common.Scalars["listen"])
	}
	if common.Scalars["maxmemory"] != "256mb" {
		t.Fatalf("got %q", common.Scalars["maxmemory"])
	}
	tags := common.Lists["tags"]
	if len(tags) != 2 || tags[0] != "alpha" || tags[1] != "beta" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

func TestParseFileDuplicateKeyIsError(t *testing.T) {
	src := "[common]\nlisten: a\nlisten: b\n"
	if _, err := ParseFile(strings.NewReader(src)); err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func TestParseFileListWithNoPrecedingKeyIsError(t *testing.T) {
	src := "[common]\n- orphan\n"
	if _, err := ParseFile(strings.NewReader(src)); err == nil {
		t.Fatal("expected error for list item with no key")
	}
}

func TestParseFileMalformedSectionHeaderIsError(t *testing.T) {
	src := "[common\nlisten: a\n"
	if _, err := ParseFile(strings.NewReader(src)); err == nil {
		t.Fatal("expected error for malformed section header")
	}
}

func TestParseFileDefaultSectionBeforeAnyHeader(t *testing.T) {
	src := "standalone: value\n"
	sections, err := ParseFile(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sections[""].Scalars["standalone"] != "value" {
		t.Fatalf("expected value under default section, got %+v", sections[""])
	}
}
