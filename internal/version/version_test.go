package version

import (
	"strings"
	"testing"
)

func TestVersionDefaults(t *testing.T) {
	if Version() == "" {
		t.Error("Version should not be empty")
	}
	if Commit() == "" {
		t.Error("Commit should not be empty")
	}
	if BuildDate() == "" {
		t.Error("BuildDate should not be empty")
	}
}

func TestString(t *testing.T) {
	s := String()
	if !strings.Contains(s, Version()) {
		t.Errorf("String %q should contain version %q", s, Version())
	}
	if !strings.Contains(s, Commit()) {
		t.Errorf("String %q should contain commit %q", s, Commit())
	}
}
