package config

import "runtime/debug"

// The Lambda packaging step stamps release with
//
//	-ldflags "-X screeningcomms/internal/config.release=$RELEASE_TAG"
//
// Commit and build time come from the VCS stamp the Go toolchain embeds.
var release string

// NewBuildInfo describes the running binary.
func NewBuildInfo() BuildInfo {
	info, _ := debug.ReadBuildInfo()
	return buildInfoFrom(release, info)
}

func buildInfoFrom(release string, info *debug.BuildInfo) BuildInfo {
	b := BuildInfo{Version: release}
	if info != nil {
		if b.Version == "" && info.Main.Version != "(devel)" {
			b.Version = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				b.Commit = s.Value
				if len(b.Commit) > 12 {
					b.Commit = b.Commit[:12]
				}
			case "vcs.time":
				b.BuildTime = s.Value
			case "vcs.modified":
				b.Dirty = s.Value == "true"
			}
		}
	}
	if b.Version == "" {
		b.Version = "dev"
	}
	if b.Commit == "" {
		b.Commit = "unknown"
	}
	return b
}

// LogAttrs returns the fields logged once at startup of every job.
func (b BuildInfo) LogAttrs() []any {
	attrs := []any{"version", b.Version, "commit", b.Commit}
	if b.BuildTime != "" {
		attrs = append(attrs, "built_at", b.BuildTime)
	}
	if b.Dirty {
		attrs = append(attrs, "dirty", true)
	}
	return attrs
}
