// Package resource copies the auxiliary resource categories of a data
// directory (styles, images, logs ...) into a backup target, filtering the
// entries of each category.
package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Azure/go-asyncstep/diagnostics"
)

// DiagnosticSource identifies synchronizer diagnostics.
const DiagnosticSource = "resource"

type SyncOptions struct {
	// Concurrency is how many categories are copied at once.
	Concurrency int
	Diagnostics diagnostics.Sink
	Logger      logrus.FieldLogger
}

type SyncOptionPreparer func(*SyncOptions) *SyncOptions

func WithConcurrency(n int) SyncOptionPreparer {
	return func(options *SyncOptions) *SyncOptions {
		options.Concurrency = n
		return options
	}
}

func WithDiagnostics(sink diagnostics.Sink) SyncOptionPreparer {
	return func(options *SyncOptions) *SyncOptions {
		if sink != nil {
			options.Diagnostics = sink
		}
		return options
	}
}

func WithLogger(logger logrus.FieldLogger) SyncOptionPreparer {
	return func(options *SyncOptions) *SyncOptions {
		if logger != nil {
			options.Logger = logger
		}
		return options
	}
}

// Synchronizer copies every category of its registry from a source root to a
// target root.
type Synchronizer struct {
	registry *Registry
	options  *SyncOptions
}

func NewSynchronizer(registry *Registry, optionDecorators ...SyncOptionPreparer) (*Synchronizer, error) {
	if registry == nil {
		return nil, errors.New("category registry is required")
	}

	silent := logrus.New()
	silent.Out = io.Discard
	options := &SyncOptions{Concurrency: 1, Diagnostics: diagnostics.Discard, Logger: silent}
	for _, decorator := range optionDecorators {
		options = decorator(options)
	}
	if options.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", options.Concurrency)
	}

	return &Synchronizer{registry: registry, options: options}, nil
}

// CategoryResult is what happened to one category.
type CategoryResult struct {
	Category string
	// Skipped is set when the category does not exist in the source tree.
	Skipped bool
	Files   int
	Dirs    int
	Bytes   int64
	Err     error
}

// Summary lists category results in registry order.
type Summary struct {
	Categories []CategoryResult
}

func (s Summary) Failed() []CategoryResult {
	var failed []CategoryResult
	for _, r := range s.Categories {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

func (s Summary) Files() int {
	total := 0
	for _, r := range s.Categories {
		total += r.Files
	}
	return total
}

// Sync copies each category present under sourceRoot into a like-named
// directory under targetRoot. It never fails as a whole: a category error is
// reported to the diagnostics sink, recorded in the summary, and the other
// categories are still copied. Existing target files are overwritten.
func (s *Synchronizer) Sync(ctx context.Context, sourceRoot, targetRoot string) Summary {
	categories := s.registry.Categories()
	results := make([]CategoryResult, len(categories))

	var g errgroup.Group
	g.SetLimit(s.options.Concurrency)
	for i, c := range categories {
		g.Go(func() error {
			results[i] = copyCategory(ctx, c, sourceRoot, targetRoot)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		logger := s.options.Logger.WithField("category", r.Category)
		switch {
		case r.Err != nil:
			s.options.Diagnostics.Report(ctx, diagnostics.Error(ctx, DiagnosticSource, r.Category, r.Err))
			logger.WithError(r.Err).Warn("category not synchronized")
		case r.Skipped:
			logger.Debug("category absent from source, skipped")
		default:
			logger.WithFields(logrus.Fields{"files": r.Files, "dirs": r.Dirs, "bytes": r.Bytes}).Info("category synchronized")
		}
	}

	return Summary{Categories: results}
}

func copyCategory(ctx context.Context, c Category, sourceRoot, targetRoot string) CategoryResult {
	result := CategoryResult{Category: c.Name}

	src := filepath.Join(sourceRoot, c.Name)
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		result.Skipped = true
		return result
	}
	if err != nil {
		result.Err = &CategoryError{Category: c.Name, Err: err}
		return result
	}
	if !info.IsDir() {
		result.Err = &CategoryError{Category: c.Name, Err: fmt.Errorf("%s is not a directory", src)}
		return result
	}

	dst := filepath.Join(targetRoot, c.Name)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		result.Err = &CategoryError{Category: c.Name, Err: err}
		return result
	}

	fsys := os.DirFS(src)
	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &CategoryError{Category: c.Name, Path: path, Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &CategoryError{Category: c.Name, Path: path, Err: ctxErr}
		}
		if path == "." {
			return nil
		}
		if !c.Accept(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, filepath.FromSlash(path))
		switch {
		case d.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return &CategoryError{Category: c.Name, Path: path, Err: err}
			}
			result.Dirs++
		case d.Type().IsRegular():
			n, err := copyFile(fsys, path, target)
			if err != nil {
				return &CategoryError{Category: c.Name, Path: path, Err: err}
			}
			result.Files++
			result.Bytes += n
		}
		// symlinks and devices are not part of a backup
		return nil
	})
	if err != nil {
		result.Err = err
	}

	return result
}

func copyFile(fsys fs.FS, name, target string) (int64, error) {
	in, err := fsys.Open(name)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()|0o600)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
