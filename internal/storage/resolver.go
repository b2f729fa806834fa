package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ironsheep/image-gen-mcp/internal/config"
	"go.uber.org/zap"
)

// maxSuffix bounds the collision loop. Reaching it means something else is
// wrong with the directory.
const maxSuffix = 10000

// Target is a resolved save location before collision avoidance.
type Target struct {
	Dir  string
	Base string
	Ext  string
}

// Path joins the target without a collision suffix.
func (t Target) Path() string {
	return t.candidate(0)
}

func (t Target) candidate(n int) string {
	name := t.Base
	if n > 0 {
		name = fmt.Sprintf("%s_%d", t.Base, n)
	}
	if t.Ext != "" {
		name += "." + t.Ext
	}
	return filepath.Join(t.Dir, name)
}

// Resolver decides where images go and writes them there.
type Resolver struct {
	saveDir  string
	autoSave bool

	now       func() time.Time
	mkdirAll  func(path string, perm os.FileMode) error
	writeFile func(path string, data []byte) error
	logger    *zap.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithClock replaces time.Now for synthesized names.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithWriter replaces the exclusive file create. The writer must return an
// error matching fs.ErrExist when the path is taken.
func WithWriter(write func(path string, data []byte) error) Option {
	return func(r *Resolver) { r.writeFile = write }
}

// NewResolver builds a Resolver from the save settings in cfg.
func NewResolver(cfg config.Config, logger *zap.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		saveDir:   cfg.SaveDir,
		autoSave:  cfg.AutoSave,
		now:       time.Now,
		mkdirAll:  os.MkdirAll,
		writeFile: writeExclusive,
		logger:    logger.Named("storage"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ExtensionFor maps a MIME type to the extension used for new files.
func ExtensionFor(mimeType string) string {
	if strings.EqualFold(mimeType, "image/jpeg") {
		return "jpg"
	}
	return "png"
}

// Plan resolves where an image would be saved. ok is false when nothing should
// be written: no hint was given and auto-save is off.
func (r *Resolver) Plan(mimeType, hint, toolName string) (Target, bool, error) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		if !r.autoSave {
			return Target{}, false, nil
		}
		stamp := r.now().UTC().Format("2006-01-02-15-04-05")
		hint = filepath.Join(r.saveDir, fmt.Sprintf("%s-%s", toolName, stamp))
	}

	abs, err := filepath.Abs(hint)
	if err != nil {
		return Target{}, false, &Error{Op: "resolve", Path: hint, Err: err}
	}

	dir, file := filepath.Split(abs)
	ext := filepath.Ext(file)
	base := strings.TrimSuffix(file, ext)
	if ext == "" || base == "" {
		// A dotfile such as ".out" is a name, not an extension.
		base, ext = file, "."+ExtensionFor(mimeType)
	}

	return Target{
		Dir:  filepath.Clean(dir),
		Base: base,
		Ext:  strings.TrimPrefix(ext, "."),
	}, true, nil
}

// Save writes data and returns the absolute path it landed on, or "" when
// nothing was requested. An existing file is never overwritten; the name gains
// a _1, _2, ... suffix instead.
func (r *Resolver) Save(data []byte, mimeType, hint, toolName string) (string, error) {
	target, ok, err := r.Plan(mimeType, hint, toolName)
	if err != nil || !ok {
		return "", err
	}

	if err := r.mkdirAll(target.Dir, 0o755); err != nil {
		return "", &Error{Op: "mkdir", Path: target.Dir, Err: err}
	}

	for n := 0; n <= maxSuffix; n++ {
		path := target.candidate(n)
		err := r.writeFile(path, data)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", &Error{Op: "write", Path: path, Err: err}
		}

		r.logger.Debug("image saved",
			zap.String("path", path),
			zap.String("tool", toolName),
			zap.Int("bytes", len(data)),
			zap.Int("suffix", n),
		)
		return path, nil
	}

	return "", &Error{
		Op:   "write",
		Path: target.Path(),
		Err:  fmt.Errorf("no free name after %d attempts", maxSuffix),
	}
}

// writeExclusive creates path and fails with fs.ErrExist if it is taken.
// A file that could not be written in full is removed, so the name stays free.
func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
