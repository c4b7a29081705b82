package buildinfo

import (
	"fmt"
	"path"
	"runtime/debug"
)

// Set with -ldflags "-X svcboot/internal/buildinfo.Version=..." at release time.
var (
	Name    = ""
	Version = ""
	Commit  = "none"
)

// Metadata is the package identity used to fill config defaults.
type Metadata struct {
	Name    string
	Version string
}

// Read returns the linker-provided metadata, falling back to the main
// module's build info and finally to "svcboot"/"dev".
func Read() Metadata {
	m := Metadata{Name: Name, Version: Version}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if m.Name == "" && bi.Main.Path != "" {
			m.Name = path.Base(bi.Main.Path)
		}
		if m.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			m.Version = bi.Main.Version
		}
	}
	if m.Name == "" {
		m.Name = "svcboot"
	}
	if m.Version == "" {
		m.Version = "dev"
	}
	return m
}

func String() string {
	m := Read()
	return fmt.Sprintf("%s %s (commit=%s)", m.Name, m.Version, Commit)
}
