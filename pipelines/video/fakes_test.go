package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type call struct {
	Dir  string
	Name string
	Args []string
}

// fakeExecutor records commands instead of running them. hook runs first and
// its error fails the command. When touch is set the last argument of every
// successful command is created as a file, which is where ffmpeg and friends
// write their output.
type fakeExecutor struct {
	mu     sync.Mutex
	calls  []call
	stdout string
	touch  bool
	hook   func(name string, args []string) error
}

func (f *fakeExecutor) Execute(ctx context.Context, name string, args ...string) (string, error) {
	return f.ExecuteInDir(ctx, "", name, args...)
}

func (f *fakeExecutor) ExecuteInDir(ctx context.Context, dir string, name string, args ...string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{Dir: dir, Name: name, Args: args})
	f.mu.Unlock()

	if f.hook != nil {
		if err := f.hook(name, args); err != nil {
			return "", err
		}
	}
	if f.touch && len(args) > 0 {
		if err := os.WriteFile(args[len(args)-1], []byte("data"), 0644); err != nil {
			return "", err
		}
	}
	return f.stdout, nil
}

func (f *fakeExecutor) named(name string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// fakeSynth writes a small file for every request, failing for texts that
// contain failOn.
type fakeSynth struct {
	failOn string
	empty  bool
	texts  []string
	closed bool
}

func (s *fakeSynth) Synthesize(ctx context.Context, text, outputPath string) error {
	s.texts = append(s.texts, text)
	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return fmt.Errorf("engine refused %q", text)
	}
	if s.empty {
		return os.WriteFile(outputPath, nil, 0644)
	}
	return os.WriteFile(outputPath, []byte("RIFF"), 0644)
}

func (s *fakeSynth) Extension() string { return "wav" }
func (s *fakeSynth) Close() error      { s.closed = true; return nil }

// fakeProber returns durations keyed by file base name, with a default.
type fakeProber struct {
	byName   map[string]float64
	fallback float64
	err      error
}

func (p *fakeProber) Duration(ctx context.Context, path string) (float64, error) {
	if p.err != nil {
		return 0, p.err
	}
	if d, ok := p.byName[filepath.Base(path)]; ok {
		return d, nil
	}
	return p.fallback, nil
}

// fakeStrategy optionally writes the output before returning err.
type fakeStrategy struct {
	name        string
	err         error
	writeOutput bool
	calls       int
	sawOutput   bool
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) Compose(ctx context.Context, tl *Timeline, outputPath string) error {
	s.calls++
	if _, err := os.Stat(outputPath); err == nil {
		s.sawOutput = true
	}
	if s.writeOutput {
		if err := os.WriteFile(outputPath, []byte("video"), 0644); err != nil {
			return err
		}
	}
	return s.err
}
