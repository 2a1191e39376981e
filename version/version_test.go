package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version == "" {
		t.Error("Version is empty")
	}
	if info.Version == "dev" && info.IsRelease {
		t.Error("dev build reported as release")
	}
}

func TestShort(t *testing.T) {
	s := Short()
	if s == "" {
		t.Fatal("Short() is empty")
	}
	if !strings.HasPrefix(s, Get().Version) {
		t.Errorf("Short() = %q, want prefix %q", s, Get().Version)
	}
}
