// Package buildinfo carries version data set with -ldflags -X, falling back
// to what the Go toolchain embedded in the binary.
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	out := map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out["go"] = bi.GoVersion
	if Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		out["version"] = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "" {
				out["commit"] = s.Value
			}
		case "vcs.time":
			if BuiltAt == "" {
				out["builtAt"] = s.Value
			}
		}
	}
	return out
}
