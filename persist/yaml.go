package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type envelope[T any] struct {
	Kind Kind `yaml:"kind"`
	Item T    `yaml:"item"`
}

// YAMLLoader stores objects of type T as a YAML document tagged with their
// kind.
type YAMLLoader[T Object] struct {
	kind     Kind
	fileName string
}

func NewYAMLLoader[T Object](kind Kind, fileName string) *YAMLLoader[T] {
	return &YAMLLoader[T]{kind: kind, fileName: fileName}
}

func (l *YAMLLoader[T]) Kind() Kind       { return l.kind }
func (l *YAMLLoader[T]) FileName() string { return l.fileName }

func (l *YAMLLoader[T]) Save(_ context.Context, obj Object, path string) error {
	item, ok := obj.(T)
	if !ok {
		return &CodecError{Op: "save", Path: path, Err: fmt.Errorf("loader for kind %q cannot store %T", l.kind, obj)}
	}
	data, err := yaml.Marshal(envelope[T]{Kind: l.kind, Item: item})
	if err != nil {
		return &CodecError{Op: "save", Path: path, Err: err}
	}
	return writeFile(path, data)
}

func (l *YAMLLoader[T]) Load(_ context.Context, path string) (Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc envelope[T]
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &CodecError{Op: "load", Path: path, Err: err}
	}
	if doc.Kind != l.kind {
		return nil, &CodecError{Op: "load", Path: path, Err: fmt.Errorf("document kind %q, want %q", doc.Kind, l.kind)}
	}
	return doc.Item, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
