package environment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/chalkboard/interp/internal/process"
)

const (
	// PluginPathVar points the interpreter's UI toolkit at its bundled plugins.
	PluginPathVar = "QT_PLUGIN_PATH"
)

// Settings are the user-facing inputs to launch resolution.
type Settings struct {
	Executable string
	InstallDir string
	Args       []string
	WorkingDir string
	PluginDir  string
	Env        map[string]string
}

// ResolveError reports a launch input that could not be resolved.
type ResolveError struct {
	What string
	Path string
	Err  error
}

func (e *ResolveError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("resolve %s: %v", e.What, e.Err)
	}
	return fmt.Sprintf("resolve %s %q: %v", e.What, e.Path, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Option customizes builder dependencies.
type Option func(*Builder)

// WithLookPath overrides PATH lookup.
func WithLookPath(lookPath func(string) (string, error)) Option {
	return func(b *Builder) {
		if lookPath != nil {
			b.lookPath = lookPath
		}
	}
}

// WithStat overrides filesystem stat.
func WithStat(stat func(string) (os.FileInfo, error)) Option {
	return func(b *Builder) {
		if stat != nil {
			b.stat = stat
		}
	}
}

// WithEnviron overrides the base environment.
func WithEnviron(environ func() []string) Option {
	return func(b *Builder) {
		if environ != nil {
			b.environ = environ
		}
	}
}

// WithGOOS overrides the target platform used for library path selection.
func WithGOOS(goos string) Option {
	return func(b *Builder) {
		if strings.TrimSpace(goos) != "" {
			b.goos = goos
		}
	}
}

// WithGetwd overrides working directory discovery.
func WithGetwd(getwd func() (string, error)) Option {
	return func(b *Builder) {
		if getwd != nil {
			b.getwd = getwd
		}
	}
}

// Builder computes launch configurations. It reads the filesystem but never mutates it.
type Builder struct {
	settings Settings
	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)
	environ  func() []string
	getwd    func() (string, error)
	goos     string
}

// New creates a builder for settings.
func New(settings Settings, options ...Option) *Builder {
	b := &Builder{
		settings: settings,
		lookPath: exec.LookPath,
		stat:     os.Stat,
		environ:  os.Environ,
		getwd:    os.Getwd,
		goos:     runtime.GOOS,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(b)
	}
	return b
}

// Settings returns a copy of the builder inputs.
func (b *Builder) Settings() Settings {
	out := b.settings
	out.Args = append([]string(nil), b.settings.Args...)
	out.Env = make(map[string]string, len(b.settings.Env))
	for key, value := range b.settings.Env {
		out.Env[key] = value
	}
	return out
}

// Build resolves the executable, working directory and environment overrides.
func (b *Builder) Build(ctx context.Context) (process.LaunchConfig, error) {
	if err := ctx.Err(); err != nil {
		return process.LaunchConfig{}, err
	}

	executable, err := b.resolveExecutable()
	if err != nil {
		return process.LaunchConfig{}, err
	}

	workdir, err := b.resolveWorkingDir()
	if err != nil {
		return process.LaunchConfig{}, err
	}

	overrides, err := b.overrides(executable)
	if err != nil {
		return process.LaunchConfig{}, err
	}

	return process.LaunchConfig{
		Path:      executable,
		Args:      append([]string(nil), b.settings.Args...),
		Dir:       workdir,
		Env:       mergeEnv(b.environ(), overrides, b.goos == "windows"),
		Overrides: overrides,
	}, nil
}

func (b *Builder) resolveExecutable() (string, error) {
	name := strings.TrimSpace(b.settings.Executable)
	if name == "" {
		return "", &ResolveError{What: "executable", Err: errors.New("no interpreter executable configured")}
	}

	if filepath.IsAbs(name) {
		if err := b.requireFile(name); err != nil {
			return "", &ResolveError{What: "executable", Path: name, Err: err}
		}
		return filepath.Clean(name), nil
	}

	if installDir := strings.TrimSpace(b.settings.InstallDir); installDir != "" {
		for _, candidate := range b.executableCandidates(installDir, name) {
			if b.requireFile(candidate) == nil {
				return candidate, nil
			}
		}
		return "", &ResolveError{
			What: "executable",
			Path: name,
			Err:  fmt.Errorf("not found under install dir %s", installDir),
		}
	}

	resolved, err := b.lookPath(name)
	if err != nil {
		return "", &ResolveError{What: "executable", Path: name, Err: err}
	}
	if !filepath.IsAbs(resolved) {
		if abs, absErr := filepath.Abs(resolved); absErr == nil {
			resolved = abs
		}
	}
	return resolved, nil
}

func (b *Builder) executableCandidates(installDir, name string) []string {
	names := []string{name}
	if b.goos == "windows" && !strings.EqualFold(filepath.Ext(name), ".exe") {
		names = []string{name + ".exe", name}
	}
	candidates := make([]string, 0, len(names)*3)
	for _, n := range names {
		candidates = append(candidates,
			filepath.Join(installDir, "bin", n),
			filepath.Join(installDir, "mingw64", "bin", n),
			filepath.Join(installDir, n),
		)
	}
	return candidates
}

func (b *Builder) resolveWorkingDir() (string, error) {
	dir := strings.TrimSpace(b.settings.WorkingDir)
	if dir == "" {
		wd, err := b.getwd()
		if err != nil {
			return "", &ResolveError{What: "working directory", Err: err}
		}
		return wd, nil
	}
	if err := b.requireDir(dir); err != nil {
		return "", &ResolveError{What: "working directory", Path: dir, Err: err}
	}
	return filepath.Clean(dir), nil
}

func (b *Builder) overrides(executable string) (map[string]string, error) {
	binDir := filepath.Dir(executable)
	installDir := strings.TrimSpace(b.settings.InstallDir)
	if installDir == "" {
		installDir = binDir
		if strings.EqualFold(filepath.Base(binDir), "bin") {
			installDir = filepath.Dir(binDir)
		}
	}

	result := map[string]string{}
	libVar := LibraryPathVar(b.goos)
	libDirs := []string{binDir}
	if b.goos != "windows" {
		libDirs = []string{}
		for _, candidate := range []string{filepath.Join(installDir, "lib"), filepath.Join(installDir, "lib64")} {
			if b.requireDir(candidate) == nil {
				libDirs = append(libDirs, candidate)
			}
		}
	}
	if len(libDirs) > 0 {
		existing := lookupEnv(b.environ(), libVar, b.goos == "windows")
		result[libVar] = prependPathList(existing, libDirs, b.goos)
	}

	if pluginDir := strings.TrimSpace(b.settings.PluginDir); pluginDir != "" {
		if err := b.requireDir(pluginDir); err != nil {
			return nil, &ResolveError{What: "plugin directory", Path: pluginDir, Err: err}
		}
		result[PluginPathVar] = filepath.Clean(pluginDir)
	} else {
		for _, candidate := range []string{
			filepath.Join(installDir, "plugins"),
			filepath.Join(installDir, "qt", "plugins"),
		} {
			if b.requireDir(candidate) == nil {
				result[PluginPathVar] = candidate
				break
			}
		}
	}

	for key, value := range b.settings.Env {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		result[key] = value
	}
	return result, nil
}

func (b *Builder) requireFile(path string) error {
	info, err := b.stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

func (b *Builder) requireDir(path string) error {
	info, err := b.stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

// LibraryPathVar names the dynamic library search variable for goos.
func LibraryPathVar(goos string) string {
	switch goos {
	case "windows":
		return "PATH"
	case "darwin":
		return "DYLD_LIBRARY_PATH"
	default:
		return "LD_LIBRARY_PATH"
	}
}

func prependPathList(existing string, dirs []string, goos string) string {
	sep := ":"
	if goos == "windows" {
		sep = ";"
	}
	parts := append([]string(nil), dirs...)
	if existing != "" {
		parts = append(parts, existing)
	}
	return strings.Join(parts, sep)
}

func lookupEnv(environ []string, key string, foldCase bool) string {
	value := ""
	for _, entry := range environ {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if k == key || (foldCase && strings.EqualFold(k, key)) {
			value = v
		}
	}
	return value
}

// mergeEnv applies overrides on top of base, replacing existing keys in place.
func mergeEnv(base []string, overrides map[string]string, foldCase bool) []string {
	normalize := func(key string) string {
		if foldCase {
			return strings.ToUpper(key)
		}
		return key
	}

	pending := make(map[string]string, len(overrides))
	names := make(map[string]string, len(overrides))
	for key, value := range overrides {
		pending[normalize(key)] = value
		names[normalize(key)] = key
	}

	out := make([]string, 0, len(base)+len(overrides))
	for _, entry := range base {
		key, _, ok := strings.Cut(entry, "=")
		if !ok {
			out = append(out, entry)
			continue
		}
		if value, found := pending[normalize(key)]; found {
			out = append(out, key+"="+value)
			delete(pending, normalize(key))
			continue
		}
		out = append(out, entry)
	}

	remaining := make([]string, 0, len(pending))
	for key := range pending {
		remaining = append(remaining, key)
	}
	sort.Strings(remaining)
	for _, key := range remaining {
		out = append(out, names[key]+"="+pending[key])
	}
	return out
}
