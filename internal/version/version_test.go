package version

import (
	"runtime/debug"
	"testing"
)

func stubBuildInfo(t *testing.T, bi *debug.BuildInfo) {
	t.Helper()
	prev := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
	t.Cleanup(func() { readBuildInfo = prev })
}

func stubLdflags(t *testing.T, version, commit, buildTime string) {
	t.Helper()
	pv, pc, pb := Version, Commit, BuildTime
	Version, Commit, BuildTime = version, commit, buildTime
	t.Cleanup(func() { Version, Commit, BuildTime = pv, pc, pb })
}

func TestResolveFromBuildInfo(t *testing.T) {
	stubLdflags(t, "", "", "")
	stubBuildInfo(t, &debug.BuildInfo{
		GoVersion: "go1.26.0",
		Main:      debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	info := Resolve()
	want := Info{
		Version:   "2026-01-02T03:04:05Z",
		Commit:    "0123456789abcdef0123",
		BuildTime: "2026-01-02T03:04:05Z",
		GoVersion: "go1.26.0",
		Modified:  true,
	}
	if info != want {
		t.Fatalf("Resolve() = %+v, want %+v", info, want)
	}
	if got := String(); got != "2026-01-02T03:04:05Z (0123456789ab-dirty)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestLdflagsWin(t *testing.T) {
	stubLdflags(t, "v1.2.3", "abc", "")
	stubBuildInfo(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "v0.0.1"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "fff"}},
	})

	info := Resolve()
	if info.Version != "v1.2.3" || info.Commit != "abc" {
		t.Fatalf("Resolve() = %+v", info)
	}
	if got := String(); got != "v1.2.3 (abc)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestResolveWithoutBuildInfo(t *testing.T) {
	stubLdflags(t, "", "", "20260101T000000Z")
	stubBuildInfo(t, nil)

	info := Resolve()
	if info.Version != "20260101T000000Z" || info.Commit != "" || info.GoVersion != "" {
		t.Fatalf("Resolve() = %+v", info)
	}
	if got := String(); got != info.Version {
		t.Fatalf("String() = %q, want bare version", got)
	}
}
