package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Azure/go-asyncstep/diagnostics"
)

// DiagnosticSource identifies persister diagnostics.
const DiagnosticSource = "persist"

// Persister stores items in a backup directory.
type Persister struct {
	registry *Registry
	sink     diagnostics.Sink
}

// NewPersister accepts a nil registry (no dedicated loaders) and a nil sink.
func NewPersister(registry *Registry, sink diagnostics.Sink) *Persister {
	if sink == nil {
		sink = diagnostics.Discard
	}
	return &Persister{registry: registry, sink: sink}
}

// Write stores item at dir/fileName. An Object goes through the loader of its
// kind, and an Object without one is an ErrNoLoader failure. Any other value is
// YAML encoded. Failures are reported to diagnostics and returned.
func (p *Persister) Write(ctx context.Context, item any, dir, fileName string) error {
	path := filepath.Join(dir, fileName)
	err := p.write(ctx, item, path)
	if err != nil {
		p.sink.Report(ctx, diagnostics.Error(ctx, DiagnosticSource, fileName, err))
	}
	return err
}

func (p *Persister) write(ctx context.Context, item any, path string) error {
	if obj, ok := item.(Object); ok {
		loader, ok := p.registry.ForKind(obj.Kind())
		if !ok {
			return fmt.Errorf("kind %q: %w", obj.Kind(), ErrNoLoader)
		}
		return loader.Save(ctx, obj, path)
	}

	data, err := yaml.Marshal(item)
	if err != nil {
		return &CodecError{Op: "encode", Path: path, Err: err}
	}
	return writeFile(path, data)
}

// Read loads dir/fileName. The loader registered for fileName is tried first;
// when it fails the file is decoded generically into maps and slices. A file
// that cannot be opened is reported and returned as an error. A file that
// cannot be decoded is reported as a warning and yields nil without error.
func (p *Persister) Read(ctx context.Context, dir, fileName string) (any, error) {
	return p.read(ctx, dir, fileName, func(data []byte) (any, error) {
		var v any
		err := yaml.Unmarshal(data, &v)
		return v, err
	})
}

// ReadAs is Read with the generic decoding targeting T. A loaded Object of
// another type is an error.
func ReadAs[T any](ctx context.Context, p *Persister, dir, fileName string) (*T, error) {
	item, err := p.read(ctx, dir, fileName, func(data []byte) (any, error) {
		v := new(T)
		err := yaml.Unmarshal(data, v)
		return v, err
	})
	if err != nil || item == nil {
		return nil, err
	}

	switch v := item.(type) {
	case *T:
		return v, nil
	case T:
		return &v, nil
	default:
		return nil, fmt.Errorf("%s holds %T, not %T", filepath.Join(dir, fileName), item, new(T))
	}
}

func (p *Persister) read(ctx context.Context, dir, fileName string, decode func([]byte) (any, error)) (any, error) {
	path := filepath.Join(dir, fileName)
	data, err := os.ReadFile(path)
	if err != nil {
		p.sink.Report(ctx, diagnostics.Error(ctx, DiagnosticSource, fileName, err))
		return nil, err
	}

	if loader, ok := p.registry.ForFile(fileName); ok {
		// a loader failure falls back to the generic decoding
		if obj, err := loader.Load(ctx, path); err == nil && obj != nil {
			return obj, nil
		}
	}

	item, err := decode(data)
	if err != nil {
		p.sink.Report(ctx, diagnostics.Warning(ctx, DiagnosticSource, fileName, &CodecError{Op: "decode", Path: path, Err: err}))
		return nil, nil
	}
	return item, nil
}
