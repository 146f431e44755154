package buildinfo

import "testing"

func TestString(t *testing.T) {
	v, c, b := Version, Commit, BuiltAt
	t.Cleanup(func() { Version, Commit, BuiltAt = v, c, b })

	Version, Commit, BuiltAt = "v1.0.0", "", ""
	if got := String(); got != "v1.0.0" {
		t.Fatalf("got %q", got)
	}
	Version, Commit, BuiltAt = "v1.0.0", "abc123", "2026-01-02"
	if got := String(); got != "v1.0.0 (abc123) built 2026-01-02" {
		t.Fatalf("got %q", got)
	}
	if Info()["commit"] != "abc123" {
		t.Fatalf("info: %v", Info())
	}
}
