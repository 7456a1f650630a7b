package environment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildResolvesInstallDirLayout(t *testing.T) {
	t.Parallel()

	install := t.TempDir()
	exe := writeExecutable(t, filepath.Join(install, "bin"), "octave-cli")
	require.NoError(t, os.MkdirAll(filepath.Join(install, "lib"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(install, "plugins"), 0o755))
	work := t.TempDir()

	builder := New(Settings{
		Executable: "octave-cli",
		InstallDir: install,
		Args:       []string{"--quiet"},
		WorkingDir: work,
		Env:        map[string]string{"EXTRA": "1"},
	},
		WithGOOS("linux"),
		WithEnviron(func() []string { return []string{"HOME=/home/u", "LD_LIBRARY_PATH=/usr/lib"} }),
	)

	cfg, err := builder.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, exe, cfg.Path)
	assert.Equal(t, []string{"--quiet"}, cfg.Args)
	assert.Equal(t, work, cfg.Dir)
	assert.Equal(t, filepath.Join(install, "lib")+":/usr/lib", cfg.Overrides["LD_LIBRARY_PATH"])
	assert.Equal(t, filepath.Join(install, "plugins"), cfg.Overrides[PluginPathVar])
	assert.Equal(t, "1", cfg.Overrides["EXTRA"])

	assert.Contains(t, cfg.Env, "HOME=/home/u")
	assert.Contains(t, cfg.Env, "LD_LIBRARY_PATH="+filepath.Join(install, "lib")+":/usr/lib")
	assert.Contains(t, cfg.Env, "EXTRA=1")
	assert.NotContains(t, cfg.Env, "LD_LIBRARY_PATH=/usr/lib")
}

func TestBuildUsesLookPathWithoutInstallDir(t *testing.T) {
	t.Parallel()

	var looked string
	builder := New(Settings{Executable: "octave-cli"},
		WithGOOS("linux"),
		WithLookPath(func(name string) (string, error) {
			looked = name
			return "/opt/octave/bin/octave-cli", nil
		}),
		WithStat(func(string) (os.FileInfo, error) { return nil, os.ErrNotExist }),
		WithGetwd(func() (string, error) { return "/work", nil }),
		WithEnviron(func() []string { return nil }),
	)

	cfg, err := builder.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "octave-cli", looked)
	assert.Equal(t, "/opt/octave/bin/octave-cli", cfg.Path)
	assert.Equal(t, "/work", cfg.Dir)
	assert.Empty(t, cfg.Overrides)
}

func TestBuildReportsResolveErrors(t *testing.T) {
	t.Parallel()

	missingDir := filepath.Join(t.TempDir(), "nope")
	exeDir := t.TempDir()
	exe := writeExecutable(t, exeDir, "octave-cli")

	tests := []struct {
		name     string
		settings Settings
		what     string
	}{
		{name: "empty executable", settings: Settings{}, what: "executable"},
		{name: "missing absolute executable", settings: Settings{Executable: filepath.Join(missingDir, "octave")}, what: "executable"},
		{name: "missing under install dir", settings: Settings{Executable: "octave-cli", InstallDir: missingDir}, what: "executable"},
		{name: "missing working dir", settings: Settings{Executable: exe, WorkingDir: missingDir}, what: "working directory"},
		{name: "missing plugin dir", settings: Settings{Executable: exe, PluginDir: missingDir}, what: "plugin directory"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tt.settings, WithGOOS("linux")).Build(context.Background())
			require.Error(t, err)

			var resolveErr *ResolveError
			require.True(t, errors.As(err, &resolveErr), "error %T is not a ResolveError", err)
			assert.Equal(t, tt.what, resolveErr.What)
		})
	}
}

func TestBuildLookPathFailureIsResolveError(t *testing.T) {
	t.Parallel()

	builder := New(Settings{Executable: "octave-cli"},
		WithLookPath(func(string) (string, error) { return "", errors.New("executable file not found in $PATH") }),
	)
	_, err := builder.Build(context.Background())

	var resolveErr *ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.Contains(t, err.Error(), "octave-cli")
}

func TestBuildWindowsPrependsBinDirToPath(t *testing.T) {
	t.Parallel()

	install := t.TempDir()
	exe := writeExecutable(t, filepath.Join(install, "mingw64", "bin"), "octave-cli.exe")

	builder := New(Settings{Executable: "octave-cli", InstallDir: install},
		WithGOOS("windows"),
		WithEnviron(func() []string { return []string{"Path=C:\\Windows"} }),
	)
	cfg, err := builder.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, exe, cfg.Path)
	want := filepath.Dir(exe) + ";C:\\Windows"
	assert.Equal(t, want, cfg.Overrides["PATH"])
	// Existing key keeps its original spelling.
	assert.Contains(t, cfg.Env, "Path="+want)
}

func TestBuildHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Settings{Executable: "octave-cli"}).Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMergeEnvAppendsNewKeysSorted(t *testing.T) {
	t.Parallel()

	got := mergeEnv([]string{"A=1", "B=2"}, map[string]string{"Z": "z", "C": "c", "A": "x"}, false)
	assert.Equal(t, []string{"A=x", "B=2", "C=c", "Z=z"}, got)
}

func TestLibraryPathVar(t *testing.T) {
	t.Parallel()

	for goos, want := range map[string]string{
		"linux":   "LD_LIBRARY_PATH",
		"freebsd": "LD_LIBRARY_PATH",
		"darwin":  "DYLD_LIBRARY_PATH",
		"windows": "PATH",
	} {
		if got := LibraryPathVar(goos); got != want {
			t.Fatalf("LibraryPathVar(%q) = %q, want %q", goos, got, want)
		}
	}
}

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}
