package resource_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/go-asyncstep/diagnostics"
	"github.com/Azure/go-asyncstep/resource"
)

func TestStyleFilterSkipsDefinitions(t *testing.T) {
	t.Parallel()

	source, target := t.TempDir(), t.TempDir()
	writeFiles(t, source, map[string]string{
		"styles/a.sld": "<sld/>",
		"styles/b.xml": "<xml/>",
		"styles/c.txt": "keep me",
	})

	sync := newSynchronizer(t, styles(), nil)
	summary := sync.Sync(t.Context(), source, target)

	assert.Equal(t, []string{"c.txt"}, listTree(t, filepath.Join(target, "styles")))
	require.Len(t, summary.Categories, 1)
	assert.Equal(t, 1, summary.Categories[0].Files)
	assert.Equal(t, int64(len("keep me")), summary.Categories[0].Bytes)
	assert.Empty(t, summary.Failed())
}

func TestFilterAppliesAtEveryLevel(t *testing.T) {
	t.Parallel()

	source, target := t.TempDir(), t.TempDir()
	writeFiles(t, source, map[string]string{
		"styles/icons/pin.png":        "png",
		"styles/icons/pin.SLD":        "sld",
		"styles/nested/deep/road.css": "css",
		"styles/nested/deep/road.svg": "svg",
		"styles/ysld/x.txt":           "directory name ends with sld",
		"logs/logging.properties":     "level=info",
		"logs/geoserver.log":          "noise",
		"logs/archive/old.properties": "directories are filtered too",
	})

	sync := newSynchronizer(t, resource.DefaultRegistry(), nil)
	summary := sync.Sync(t.Context(), source, target)
	assert.Empty(t, summary.Failed())

	assert.Equal(t, []string{"icons/pin.png", "nested/deep/road.svg"}, listTree(t, filepath.Join(target, "styles")))
	assert.Equal(t, []string{"logging.properties"}, listTree(t, filepath.Join(target, "logs")))
	assert.Equal(t, 3, summary.Files())
}

func TestMissingCategoryIsSkipped(t *testing.T) {
	t.Parallel()

	source, target := t.TempDir(), t.TempDir()
	writeFiles(t, source, map[string]string{"images/logo.png": "png"})

	collector := diagnostics.NewCollector()
	sync := newSynchronizer(t, resource.DefaultRegistry(), collector)
	summary := sync.Sync(t.Context(), source, target)

	assert.Equal(t, 0, collector.Len())
	assert.Empty(t, summary.Failed())
	assert.NoDirExists(t, filepath.Join(target, "styles"))
	assert.NoDirExists(t, filepath.Join(target, "www"))
	assert.FileExists(t, filepath.Join(target, "images", "logo.png"))

	for _, r := range summary.Categories {
		assert.Equal(t, r.Category != "images", r.Skipped, r.Category)
	}
}

func TestCategoryFailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	source, target := t.TempDir(), t.TempDir()
	writeFiles(t, source, map[string]string{
		"demo/request.xml": "<req/>",
		"images/logo.png":  "png",
		"www/index.html":   "<html/>",
	})
	// a file where the demo target directory should be
	require.NoError(t, os.WriteFile(filepath.Join(target, "demo"), []byte("in the way"), 0o644))

	collector := diagnostics.NewCollector()
	sync := newSynchronizer(t, resource.DefaultRegistry(), collector)
	summary := sync.Sync(t.Context(), source, target)

	failed := summary.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "demo", failed[0].Category)

	require.Len(t, collector.Errors(), 1)
	reported := collector.Errors()[0]
	assert.Equal(t, resource.DiagnosticSource, reported.Source)
	assert.Equal(t, "demo", reported.Subject)
	var categoryErr *resource.CategoryError
	require.True(t, errors.As(reported.Err, &categoryErr))
	assert.Equal(t, "demo", categoryErr.Category)

	assert.FileExists(t, filepath.Join(target, "images", "logo.png"))
	assert.FileExists(t, filepath.Join(target, "www", "index.html"))
}

func TestLastWriteWins(t *testing.T) {
	t.Parallel()

	source, target := t.TempDir(), t.TempDir()
	writeFiles(t, source, map[string]string{"www/index.html": "new"})
	writeFiles(t, target, map[string]string{"www/index.html": "old and longer"})

	sync := newSynchronizer(t, resource.DefaultRegistry(), nil)
	sync.Sync(t.Context(), source, target)

	content, err := os.ReadFile(filepath.Join(target, "www", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))
}

func TestConcurrentSync(t *testing.T) {
	t.Parallel()

	source, target := t.TempDir(), t.TempDir()
	files := map[string]string{}
	for _, c := range resource.DefaultRegistry().Categories() {
		files[c.Name+"/a.properties"] = c.Name
		files[c.Name+"/sub.properties/b.properties"] = c.Name
	}
	writeFiles(t, source, files)

	collector := diagnostics.NewCollector()
	sync, err := resource.NewSynchronizer(resource.DefaultRegistry(),
		resource.WithConcurrency(4),
		resource.WithDiagnostics(collector))
	require.NoError(t, err)

	summary := sync.Sync(t.Context(), source, target)
	assert.Equal(t, 0, collector.Len())
	assert.Equal(t, 2*resource.DefaultRegistry().Len(), summary.Files())
	for _, c := range resource.DefaultRegistry().Categories() {
		assert.Equal(t, []string{"a.properties", "sub.properties/b.properties"}, listTree(t, filepath.Join(target, c.Name)), c.Name)
	}
}

func TestCancelledContextFailsCategories(t *testing.T) {
	t.Parallel()

	source, target := t.TempDir(), t.TempDir()
	writeFiles(t, source, map[string]string{"images/logo.png": "png", "www/index.html": "<html/>"})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	collector := diagnostics.NewCollector()
	sync := newSynchronizer(t, resource.DefaultRegistry(), collector)
	summary := sync.Sync(ctx, source, target)

	require.Len(t, summary.Failed(), 2)
	for _, d := range collector.Errors() {
		assert.ErrorIs(t, d.Err, context.Canceled)
	}
}

func TestRegistryValidation(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario   string
		categories []resource.Category
		wantErr    string
	}{
		{"empty name", []resource.Category{{Name: "", Accept: resource.AcceptAll}}, "invalid category name"},
		{"nested name", []resource.Category{{Name: "a/b", Accept: resource.AcceptAll}}, "invalid category name"},
		{"parent", []resource.Category{{Name: "..", Accept: resource.AcceptAll}}, "invalid category name"},
		{"no filter", []resource.Category{{Name: "styles"}}, "has no filter"},
		{"duplicate", []resource.Category{{Name: "www", Accept: resource.AcceptAll}, {Name: "www", Accept: resource.AcceptAll}}, "duplicate category"},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			_, err := resource.NewRegistry(tt.categories...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := resource.NewSynchronizer(nil)
	assert.Error(t, err)
	_, err = resource.NewSynchronizer(resource.DefaultRegistry(), resource.WithConcurrency(0))
	assert.Error(t, err)
}

func TestRegistryIsImmutable(t *testing.T) {
	t.Parallel()

	registry := resource.DefaultRegistry()
	categories := registry.Categories()
	categories[0] = resource.Category{Name: "replaced", Accept: resource.AcceptAll}

	_, ok := registry.Lookup("replaced")
	assert.False(t, ok)
	styles, ok := registry.Lookup("styles")
	require.True(t, ok)
	assert.False(t, styles.Accept("point.ysld"))
	assert.False(t, styles.Accept("theme.CSS"))
	assert.True(t, styles.Accept("marker.png"))

	names := make([]string, 0, registry.Len())
	for _, c := range registry.Categories() {
		names = append(names, c.Name)
	}
	assert.True(t, sort.StringsAreSorted(names))
	assert.Len(t, names, 9)
}

func styles() *resource.Registry {
	r, err := resource.NewRegistry(resource.Category{Name: "styles", Accept: resource.ExcludeStyleDefinitions})
	if err != nil {
		panic(err)
	}
	return r
}

func newSynchronizer(t *testing.T, registry *resource.Registry, sink diagnostics.Sink) *resource.Synchronizer {
	t.Helper()
	sync, err := resource.NewSynchronizer(registry, resource.WithDiagnostics(sink))
	require.NoError(t, err)
	return sync
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// listTree returns the regular files below root as sorted slash paths.
func listTree(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	return files
}
