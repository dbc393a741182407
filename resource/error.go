package resource

import "fmt"

// CategoryError is a failure confined to one category. The synchronizer
// reports it and moves on to the next category.
type CategoryError struct {
	Category string
	// Path is the entry being copied when the failure happened, empty when
	// the category could not be prepared at all.
	Path string
	Err  error
}

func (e *CategoryError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("category %q: %s", e.Category, e.Err)
	}
	return fmt.Sprintf("category %q, entry %q: %s", e.Category, e.Path, e.Err)
}

func (e *CategoryError) Unwrap() error {
	return e.Err
}
