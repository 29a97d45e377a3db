package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

const (
	// DefaultCommandTimeout bounds shell commands without an explicit timeout.
	DefaultCommandTimeout = 60 * time.Second

	// maxGrepMatches caps search output so a broad pattern cannot flood a turn.
	maxGrepMatches = 200
)

// Options configures a Local backend.
type Options struct {
	// CommandTimeout is the default deadline for shell commands.
	CommandTimeout time.Duration
	// Logger receives execution diagnostics.
	Logger logging.Logger
}

// Local executes environment verbs against a workspace directory. Relative
// paths resolve under the workspace root and may not escape it.
type Local struct {
	root string
	opts Options
}

var _ core.Backend = (*Local)(nil)

// NewLocal creates a Local backend rooted at dir.
func NewLocal(dir string, optFns ...func(o *Options)) (*Local, error) {
	opts := Options{
		CommandTimeout: DefaultCommandTimeout,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("backend: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("backend: workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("backend: workspace root %s is not a directory", abs)
	}
	return &Local{root: abs, opts: opts}, nil
}

// Root returns the workspace directory.
func (b *Local) Root() string { return b.root }

// Execute runs one environment action and returns its textual output.
func (b *Local) Execute(ctx context.Context, action core.Action) (string, error) {
	switch a := action.(type) {
	case core.ReadAction:
		return b.read(a)
	case core.WriteAction:
		return b.write(a)
	case core.EditAction:
		return b.edit(a)
	case core.MultiEditAction:
		return b.multiEdit(a)
	case core.GrepAction:
		return b.grep(a)
	case core.GlobAction:
		return b.glob(a)
	case core.FileMetadataAction:
		return b.fileMetadata(a)
	case core.BashAction:
		return b.bash(ctx, a)
	default:
		return "", ioError(string(action.Verb()), fmt.Errorf("verb is not executable by this backend"))
	}
}

// resolve maps an action path into the workspace, rejecting escapes.
func (b *Local) resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(b.root, p)
	}
	p = filepath.Clean(p)
	if p != b.root && !strings.HasPrefix(p, b.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes the workspace", p)
	}
	return p, nil
}

func (b *Local) read(a core.ReadAction) (string, error) {
	path, err := b.resolve(a.FilePath)
	if err != nil {
		return "", ioError("read", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", classify("read", err)
	}
	content := string(data)
	if a.Offset <= 0 && a.Limit <= 0 {
		return content, nil
	}

	lines := strings.Split(content, "\n")
	start := a.Offset
	if start < 0 {
		start = 0
	}
	if start >= len(lines) {
		return "", nil
	}
	end := len(lines)
	if a.Limit > 0 && start+a.Limit < end {
		end = start + a.Limit
	}
	return strings.Join(lines[start:end], "\n"), nil
}

func (b *Local) write(a core.WriteAction) (string, error) {
	path, err := b.resolve(a.FilePath)
	if err != nil {
		return "", ioError("write", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", classify("write", err)
	}
	if err := os.WriteFile(path, []byte(a.Content), 0o644); err != nil {
		return "", classify("write", err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(a.Content), a.FilePath), nil
}

func (b *Local) edit(a core.EditAction) (string, error) {
	return b.applyEdits("edit", a.FilePath, []core.Edit{{
		OldString:  a.OldString,
		NewString:  a.NewString,
		ReplaceAll: a.ReplaceAll,
	}})
}

func (b *Local) multiEdit(a core.MultiEditAction) (string, error) {
	if len(a.Edits) == 0 {
		return "", ioError("multi_edit", fmt.Errorf("no edits given"))
	}
	return b.applyEdits("multi_edit", a.FilePath, a.Edits)
}

// applyEdits applies replacements in order against a single in-memory copy,
// so a failing edit leaves the file untouched.
func (b *Local) applyEdits(op, filePath string, edits []core.Edit) (string, error) {
	path, err := b.resolve(filePath)
	if err != nil {
		return "", ioError(op, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", classify(op, err)
	}
	content := string(data)

	applied := 0
	for i, e := range edits {
		if e.OldString == "" {
			return "", ioError(op, fmt.Errorf("edit %d: old_string is empty", i+1))
		}
		n := strings.Count(content, e.OldString)
		switch {
		case n == 0:
			return "", ioError(op, fmt.Errorf("edit %d: old_string not found in %s", i+1, filePath))
		case n > 1 && !e.ReplaceAll:
			return "", ioError(op, fmt.Errorf("edit %d: old_string occurs %d times in %s, use replace_all", i+1, n, filePath))
		}
		if e.ReplaceAll {
			content = strings.ReplaceAll(content, e.OldString, e.NewString)
			applied += n
		} else {
			content = strings.Replace(content, e.OldString, e.NewString, 1)
			applied++
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", classify(op, err)
	}
	return fmt.Sprintf("applied %d replacement(s) to %s", applied, filePath), nil
}

func (b *Local) grep(a core.GrepAction) (string, error) {
	re, err := regexp.Compile(a.Pattern)
	if err != nil {
		return "", ioError("grep", fmt.Errorf("invalid pattern: %w", err))
	}
	rootArg := a.Path
	if rootArg == "" {
		rootArg = "."
	}
	root, err := b.resolve(rootArg)
	if err != nil {
		return "", ioError("grep", err)
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if a.Include != "" {
			ok, matchErr := filepath.Match(a.Include, d.Name())
			if matchErr != nil || !ok {
				return matchErr
			}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil // unreadable files are skipped, not fatal
		}
		rel, _ := filepath.Rel(b.root, path)
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, i+1, line))
				if len(matches) >= maxGrepMatches {
					return fs.SkipAll
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return "", classify("grep", walkErr)
	}
	if len(matches) == 0 {
		return "no matches", nil
	}
	return strings.Join(matches, "\n"), nil
}

func (b *Local) glob(a core.GlobAction) (string, error) {
	if a.Pattern == "" {
		return "", ioError("glob", fmt.Errorf("empty pattern"))
	}
	rootArg := a.Path
	if rootArg == "" {
		rootArg = "."
	}
	root, err := b.resolve(rootArg)
	if err != nil {
		return "", ioError("glob", err)
	}

	var hits []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == root {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		ok, matchErr := filepath.Match(a.Pattern, rel)
		if matchErr != nil {
			return matchErr
		}
		if !ok {
			// Fall back to matching the base name so patterns like *.go
			// find files in subdirectories too.
			ok, _ = filepath.Match(a.Pattern, d.Name())
		}
		if ok && !d.IsDir() {
			outRel, _ := filepath.Rel(b.root, path)
			hits = append(hits, outRel)
		}
		return nil
	})
	if walkErr != nil {
		return "", classify("glob", walkErr)
	}
	if len(hits) == 0 {
		return "no files matched", nil
	}
	sort.Strings(hits)
	return strings.Join(hits, "\n"), nil
}

func (b *Local) fileMetadata(a core.FileMetadataAction) (string, error) {
	if len(a.FilePaths) == 0 {
		return "", ioError("file_metadata", fmt.Errorf("no paths given"))
	}
	var out []string
	for _, p := range a.FilePaths {
		path, err := b.resolve(p)
		if err != nil {
			out = append(out, fmt.Sprintf("%s: %v", p, err))
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			out = append(out, fmt.Sprintf("%s: %v", p, err))
			continue
		}
		kind := "file"
		if info.IsDir() {
			kind = "dir"
		}
		out = append(out, fmt.Sprintf("%s: %s, %d bytes, mode %s, modified %s",
			p, kind, info.Size(), info.Mode(), info.ModTime().UTC().Format(time.RFC3339)))
	}
	return strings.Join(out, "\n"), nil
}

func (b *Local) bash(ctx context.Context, a core.BashAction) (string, error) {
	if a.Cmd == "" {
		return "", ioError("bash", fmt.Errorf("empty command"))
	}

	if a.Background {
		cmd := exec.Command("bash", "-c", a.Cmd)
		cmd.Dir = b.root
		if err := cmd.Start(); err != nil {
			return "", classify("bash", err)
		}
		pid := cmd.Process.Pid
		go func() { _ = cmd.Wait() }()
		b.opts.Logger.Info("background command started", "pid", pid)
		return fmt.Sprintf("started in background with pid %d", pid), nil
	}

	timeout := b.opts.CommandTimeout
	if a.TimeoutSecs > 0 {
		timeout = time.Duration(a.TimeoutSecs) * time.Second
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "bash", "-c", a.Cmd)
	cmd.Dir = b.root
	output, err := cmd.CombinedOutput()
	if cmdCtx.Err() == context.DeadlineExceeded {
		return "", &core.BackendError{Kind: core.BackendTimeout, Op: "bash", Err: fmt.Errorf("command exceeded %s", timeout)}
	}
	if err != nil {
		// Non-zero exits carry their output so the worker can react.
		return "", ioError("bash", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output))))
	}
	return string(output), nil
}

func classify(op string, err error) error {
	if errors.Is(err, os.ErrPermission) {
		return &core.BackendError{Kind: core.BackendPermissionDenied, Op: op, Err: err}
	}
	return ioError(op, err)
}

func ioError(op string, err error) error {
	return &core.BackendError{Kind: core.BackendIO, Op: op, Err: err}
}
