// Package buildinfo holds version data stamped at link time, e.g.
// -ldflags "-X fleetvrp/internal/buildinfo.Version=v1.2.0".
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
}

// String is the one-line form printed by -version.
func String() string {
	s := Version
	if Commit != "" {
		s += " (" + Commit + ")"
	}
	if BuiltAt != "" {
		s += fmt.Sprintf(" built %s", BuiltAt)
	}
	return s
}
