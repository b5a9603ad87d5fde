package version

import (
	"runtime/debug"
	"strings"
	"sync"
)

// ModulePath is the import path the engine is published under.
const ModulePath = "github.com/kbukum/wirekit"

// Version may be set at build time using -ldflags. When left at "dev" the
// version recorded for ModulePath in the binary's build info is used.
var Version = "dev"

// Info describes the engine build linked into the running binary.
type Info struct {
	Version   string `json:"version"`
	Sum       string `json:"sum,omitempty"`
	GoVersion string `json:"go_version"`
	Replaced  bool   `json:"replaced"`
	IsRelease bool   `json:"is_release"`
}

var (
	readBuildInfo = debug.ReadBuildInfo

	once   sync.Once
	cached Info
)

// Get returns the engine build information, computed once per process.
func Get() Info {
	once.Do(func() { cached = resolve(Version, readBuildInfo) })
	return cached
}

// Short returns the engine version string.
func Short() string {
	return Get().Version
}

func resolve(override string, read func() (*debug.BuildInfo, bool)) Info {
	info := Info{Version: override}
	bi, ok := read()
	if !ok {
		info.IsRelease = isRelease(info.Version)
		return info
	}
	info.GoVersion = bi.GoVersion
	if override == "dev" {
		if m := findModule(bi); m != nil {
			if m.Replace != nil {
				info.Replaced = true
				m = m.Replace
			}
			if m.Version != "" && m.Version != "(devel)" {
				info.Version = m.Version
			}
			info.Sum = m.Sum
		}
	}
	info.IsRelease = isRelease(info.Version)
	return info
}

// findModule locates the engine among the binary's modules: the main module
// when the engine itself is built, otherwise its dependency entry.
func findModule(bi *debug.BuildInfo) *debug.Module {
	if bi.Main.Path == ModulePath {
		return &bi.Main
	}
	for _, dep := range bi.Deps {
		if dep.Path == ModulePath {
			return dep
		}
	}
	return nil
}

// isRelease reports a tagged version without pre-release or pseudo-version
// suffix.
func isRelease(v string) bool {
	return strings.HasPrefix(v, "v") && !strings.Contains(v, "-")
}
