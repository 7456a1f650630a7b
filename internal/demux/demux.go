package demux

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// Stream identifies which child output pipe a chunk came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("stream(%d)", int(s))
	}
}

// Kind classifies one demultiplexed line.
type Kind int

const (
	// KindText is a visible transcript line.
	KindText Kind = iota
	// KindArtifact is a consumed side-channel line announcing a file.
	KindArtifact
)

// Output is one classified line.
type Output struct {
	Kind   Kind
	Stream Stream
	Text   string
	Path   string
}

// DefaultPromptPatterns match interpreter prompts. The octave prompt is stripped
// wherever it leads a line, since output follows it without a newline. A bare
// ">>" is only dropped when it makes up the whole line.
var DefaultPromptPatterns = []string{
	`^(?:octave(?::\d+)?>\s*)+`,
	`^(?:>>\s*)+$`,
}

// MaxLineBytes bounds a held-back partial line; longer runs are emitted as-is.
const MaxLineBytes = 1 << 20

// Options configures a Demux.
type Options struct {
	Marker    string
	Separator string
	Prompts   []*regexp.Regexp
}

// Demux reassembles lines per stream, classifies them and hands them to a sink
// in the order they were completed. The sink is called with the instance lock
// held, so it must not call back into the Demux.
type Demux struct {
	mu      sync.Mutex
	sink    func(Output)
	marker  string
	sep     string
	prompts []*regexp.Regexp
	buffers map[Stream]*bytes.Buffer
	closed  bool
}

// New creates a demultiplexer delivering to sink.
func New(sink func(Output), opts Options) *Demux {
	if sink == nil {
		sink = func(Output) {}
	}
	sep := opts.Separator
	if sep == "" {
		sep = ":"
	}
	prompts := opts.Prompts
	if prompts == nil {
		prompts = MustCompilePrompts(DefaultPromptPatterns)
	}
	return &Demux{
		sink:    sink,
		marker:  opts.Marker,
		sep:     sep,
		prompts: prompts,
		buffers: map[Stream]*bytes.Buffer{
			Stdout: {},
			Stderr: {},
		},
	}
}

// CompilePrompts compiles prompt-prefix patterns.
func CompilePrompts(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile prompt pattern %q: %w", pattern, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// MustCompilePrompts is CompilePrompts that panics on invalid patterns.
func MustCompilePrompts(patterns []string) []*regexp.Regexp {
	out, err := CompilePrompts(patterns)
	if err != nil {
		panic(err)
	}
	return out
}

// Feed appends a raw chunk from stream and emits every line it completes.
func (d *Demux) Feed(stream Stream, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	buf := d.buffer(stream)
	buf.Write(chunk)
	for {
		data := buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := string(data[:idx])
		buf.Next(idx + 1)
		d.classify(stream, line)
	}
	if buf.Len() > MaxLineBytes {
		d.classify(stream, buf.String())
		buf.Reset()
	}
}

// Flush emits whatever partial line is held for stream.
func (d *Demux) Flush(stream Stream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushLocked(stream)
}

// Close flushes both streams and ignores further input.
func (d *Demux) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.flushLocked(Stdout)
	d.flushLocked(Stderr)
	d.closed = true
}

func (d *Demux) flushLocked(stream Stream) {
	buf := d.buffer(stream)
	if buf.Len() == 0 {
		return
	}
	line := buf.String()
	buf.Reset()
	d.classify(stream, line)
}

func (d *Demux) buffer(stream Stream) *bytes.Buffer {
	buf, ok := d.buffers[stream]
	if !ok {
		buf = &bytes.Buffer{}
		d.buffers[stream] = buf
	}
	return buf
}

func (d *Demux) classify(stream Stream, line string) {
	line = strings.TrimSuffix(line, "\r")
	for _, prompt := range d.prompts {
		if loc := prompt.FindStringIndex(line); loc != nil && loc[0] == 0 {
			line = line[loc[1]:]
		}
	}

	if d.marker != "" && strings.HasPrefix(line, d.marker) {
		payload := strings.TrimPrefix(line, d.marker)
		payload = strings.TrimPrefix(payload, d.sep)
		path := strings.TrimSpace(payload)
		if path != "" {
			d.sink(Output{Kind: KindArtifact, Stream: stream, Path: path})
		}
		return
	}

	text := strings.TrimRightFunc(line, unicode.IsSpace)
	if strings.TrimSpace(text) == "" {
		return
	}
	d.sink(Output{Kind: KindText, Stream: stream, Text: text})
}
