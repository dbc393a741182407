// Package persist writes and reads backup items. Items with a registered kind
// go through their Loader; everything else is stored with a generic YAML
// encoding.
package persist

import (
	"context"
	"errors"
	"fmt"
)

// Kind discriminates the item types that have a dedicated Loader.
type Kind string

// Object is an item that declares its kind.
type Object interface {
	Kind() Kind
}

// Loader saves and loads the objects of one kind at a path inside a backup.
type Loader interface {
	Kind() Kind
	// FileName is the name the loader's objects are stored under, and the
	// name used to find a loader when reading.
	FileName() string
	Save(ctx context.Context, obj Object, path string) error
	Load(ctx context.Context, path string) (Object, error)
}

var ErrNoLoader = errors.New("no loader registered")

// Registry resolves loaders by kind and by file name. It is immutable once
// built.
type Registry struct {
	byKind map[Kind]Loader
	byFile map[string]Loader
}

func NewRegistry(loaders ...Loader) (*Registry, error) {
	r := &Registry{
		byKind: make(map[Kind]Loader, len(loaders)),
		byFile: make(map[string]Loader, len(loaders)),
	}
	for _, l := range loaders {
		if l == nil {
			return nil, errors.New("nil loader")
		}
		if l.Kind() == "" || l.FileName() == "" {
			return nil, fmt.Errorf("loader %T needs a kind and a file name", l)
		}
		if _, ok := r.byKind[l.Kind()]; ok {
			return nil, fmt.Errorf("duplicate loader for kind %q", l.Kind())
		}
		if _, ok := r.byFile[l.FileName()]; ok {
			return nil, fmt.Errorf("duplicate loader for file %q", l.FileName())
		}
		r.byKind[l.Kind()] = l
		r.byFile[l.FileName()] = l
	}
	return r, nil
}

func (r *Registry) ForKind(kind Kind) (Loader, bool) {
	if r == nil {
		return nil, false
	}
	l, ok := r.byKind[kind]
	return l, ok
}

func (r *Registry) ForFile(fileName string) (Loader, bool) {
	if r == nil {
		return nil, false
	}
	l, ok := r.byFile[fileName]
	return l, ok
}
