package wrapper

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultMarker prefixes every side-channel line announcing a rendered artifact.
	DefaultMarker = "[[INTERP_ARTIFACT]]"
	// Separator sits between the marker and the artifact path.
	Separator = ":"
)

const (
	fileVar  = "__interp_f"
	errorVar = "__interp_err"
)

// DefaultKeywords are the plotting function names that trigger plot capture.
var DefaultKeywords = []string{
	"area", "bar", "barh", "contour", "contourf", "errorbar", "ezplot", "figure", "fill", "fplot",
	"hist", "histogram", "image", "imagesc", "imshow", "loglog", "mesh", "pie", "plot", "plot3",
	"polar", "quiver", "scatter", "scatter3", "semilogx", "semilogy", "stairs", "stem", "subplot", "surf",
}

var (
	renderNowPattern = regexp.MustCompile(`\bdrawnow\b`)
	clearPattern     = regexp.MustCompile(`(?i)\bclc\b`)
)

// Options configures a Wrapper. Zero values select defaults.
type Options struct {
	Marker   string
	TempDir  string
	Keywords []string
	// NewName returns a unique token used in generated artifact file names.
	NewName func() string
}

// Wrapper turns raw commands into single-line interpreter input.
type Wrapper struct {
	marker   string
	tempDir  string
	keywords *regexp.Regexp
	newName  func() string
}

// New builds a wrapper from options.
func New(opts Options) *Wrapper {
	marker := opts.Marker
	if strings.TrimSpace(marker) == "" {
		marker = DefaultMarker
	}
	tempDir := strings.TrimSpace(opts.TempDir)
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	keywords := opts.Keywords
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	newName := opts.NewName
	if newName == nil {
		newName = uuid.NewString
	}
	return &Wrapper{
		marker:   marker,
		tempDir:  tempDir,
		keywords: compileKeywords(keywords),
		newName:  newName,
	}
}

func compileKeywords(keywords []string) *regexp.Regexp {
	quoted := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(keyword))
	}
	if len(quoted) == 0 {
		return nil
	}
	sort.Slice(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Marker returns the configured marker literal.
func (w *Wrapper) Marker() string {
	return w.marker
}

// SignalLine is the exact line the interpreter prints to announce path.
func (w *Wrapper) SignalLine(path string) string {
	return w.marker + Separator + path
}

// HasPlotIntent reports whether raw names any plotting keyword.
func (w *Wrapper) HasPlotIntent(raw string) bool {
	return w.keywords != nil && w.keywords.MatchString(raw)
}

// HasClearDirective reports whether raw asks to clear the screen.
func HasClearDirective(raw string) bool {
	return clearPattern.MatchString(raw)
}

// ClearsScreen reports whether the UI should clear its transcript before raw runs.
func (w *Wrapper) ClearsScreen(raw string) bool {
	return HasClearDirective(raw)
}

// Wrap returns the wire text for raw. The result never contains a line break.
func (w *Wrapper) Wrap(raw string) string {
	plot := w.HasPlotIntent(raw)
	script := raw
	if renderNowPattern.MatchString(script) {
		script = renderNowPattern.ReplaceAllLiteralString(script, w.frameSnippet())
	}

	if !plot {
		return "eval(" + Escape(script) + ")"
	}

	path := w.artifactPath("interp-plot-")
	return strings.Join([]string{
		`try, figure("visible", "off");`,
		" eval(" + Escape(script) + ");",
		" " + fileVar + " = " + Escape(path) + ";",
		" print(" + fileVar + `, "-dpng");`,
		" disp([" + Escape(w.marker+Separator) + " " + fileVar + "]);",
		" close all;",
		" catch " + errorVar + ",",
		" disp(" + errorVar + ".message);",
		" close all;",
		" end",
	}, "")
}

// frameSnippet renders the current figure to a fresh file and announces it.
func (w *Wrapper) frameSnippet() string {
	dir := filepath.ToSlash(w.tempDir)
	return fmt.Sprintf(
		`%s = [tempname(%s, "interp-frame-") ".png"]; print(%s, "-dpng"); disp([%s %s]);`,
		fileVar, Escape(dir), fileVar, Escape(w.marker+Separator), fileVar,
	)
}

func (w *Wrapper) artifactPath(prefix string) string {
	return filepath.ToSlash(filepath.Join(w.tempDir, prefix+w.newName()+".png"))
}

// Unwrapped is the decoded form of a wire string.
type Unwrapped struct {
	Script string
	Plot   bool
	Path   string
}

// Unwrap recovers the evaluated script from a wire string produced by Wrap.
func Unwrap(wire string) (Unwrapped, error) {
	const evalCall = "eval("
	idx := strings.Index(wire, evalCall)
	if idx < 0 {
		return Unwrapped{}, fmt.Errorf("%w: no eval call", ErrMalformedLiteral)
	}
	script, rest, err := readLiteral(wire[idx+len(evalCall):])
	if err != nil {
		return Unwrapped{}, err
	}
	out := Unwrapped{Script: script, Plot: strings.HasPrefix(wire, "try,")}
	if !out.Plot {
		if rest != ")" {
			return Unwrapped{}, fmt.Errorf("%w: trailing text %q", ErrMalformedLiteral, rest)
		}
		return out, nil
	}

	assign := fileVar + " = "
	if at := strings.Index(rest, assign); at >= 0 {
		path, _, err := readLiteral(rest[at+len(assign):])
		if err != nil {
			return Unwrapped{}, err
		}
		out.Path = path
	}
	return out, nil
}
