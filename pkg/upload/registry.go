package upload

import (
	"errors"
	"fmt"
	"mime/multipart"
	"sort"
	"strings"
)

// Errors.
var (
	// ErrInvalidSpec is returned when a file descriptor is malformed.
	// The wrapped message names the offending key and field.
	ErrInvalidSpec = errors.New("upload: invalid file specification")

	// ErrNestingTooDeep is returned when the uploaded-file tree exceeds
	// the configured maximum nesting depth. Deeply nested multipart
	// payloads are a cheap way to exhaust a worker, so the walk is bounded.
	ErrNestingTooDeep = errors.New("upload: maximum nesting depth exceeded")
)

// defaultMaxDepth bounds the uploaded-file tree walk.
const defaultMaxDepth = 8

// File describes one uploaded file as reported by the client plus the
// server-side temporary handle.
type File struct {
	Name      string // client-provided filename
	MediaType string // client-provided content type
	TempPath  string // server-side temporary storage path
	Size      int64
	Err       int // server-side error code, 0 = ok
}

// Registry maps form field names to uploaded file descriptors for one
// request. A Registry is owned by the request scope and starts empty by
// construction; nothing from a previous request can ever be visible.
type Registry struct {
	files    map[string][]*File
	maxDepth int
}

// Option configures the Registry.
type Option func(*Registry)

// WithMaxDepth sets the maximum nesting depth for the file tree walk.
// Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(r *Registry) {
		if n >= 1 {
			r.maxDepth = n
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		files:    make(map[string][]*File),
		maxDepth: defaultMaxDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reset empties the registry unconditionally.
func (r *Registry) Reset() {
	r.files = make(map[string][]*File)
}

// PopulateFrom rebuilds the registry from an uploaded-file tree. Keys
// are form field names; values are either a leaf descriptor map, a list
// of descriptor maps, or a nested tree for bracketed field syntax such
// as "a[b][]". Population starts from a clean slate: the registry is
// reset before the walk begins.
//
// Leaf descriptors must carry "name" and "type" strings, an integer
// "size", a "tmp_path" string, and an integer "error" code. Malformed
// leaves fail with ErrInvalidSpec; nothing is silently coerced.
func (r *Registry) PopulateFrom(tree map[string]any) error {
	r.Reset()

	// Deterministic walk order keeps failure messages stable.
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := r.walk(k, tree[k], 1); err != nil {
			r.Reset()
			return err
		}
	}
	return nil
}

func (r *Registry) walk(field string, node any, depth int) error {
	if depth > r.maxDepth {
		return fmt.Errorf("%w: field %q at depth %d", ErrNestingTooDeep, field, depth)
	}

	switch v := node.(type) {
	case map[string]any:
		if looksLikeLeaf(v) {
			f, err := parseLeaf(field, v)
			if err != nil {
				return err
			}
			r.files[field] = append(r.files[field], f)
			return nil
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := r.walk(field+"["+k+"]", v[k], depth+1); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for _, item := range v {
			if err := r.walk(field+"[]", item, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: field %q is neither a descriptor nor a nested tree", ErrInvalidSpec, field)
	}
}

// looksLikeLeaf distinguishes a descriptor map from a nested field map.
// A descriptor always carries a "tmp_path" entry.
func looksLikeLeaf(m map[string]any) bool {
	_, ok := m["tmp_path"]
	return ok
}

func parseLeaf(field string, m map[string]any) (*File, error) {
	name, err := stringKey(field, m, "name")
	if err != nil {
		return nil, err
	}
	mediaType, err := stringKey(field, m, "type")
	if err != nil {
		return nil, err
	}
	tmpPath, err := stringKey(field, m, "tmp_path")
	if err != nil {
		return nil, err
	}
	size, err := intKey(field, m, "size")
	if err != nil {
		return nil, err
	}
	errCode, err := intKey(field, m, "error")
	if err != nil {
		return nil, err
	}

	return &File{
		Name:      name,
		MediaType: mediaType,
		TempPath:  tmpPath,
		Size:      size,
		Err:       int(errCode),
	}, nil
}

func stringKey(field string, m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("%w: missing key %q in field %q", ErrInvalidSpec, key, field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: key %q in field %q must be a string", ErrInvalidSpec, key, field)
	}
	return s, nil
}

func intKey(field string, m map[string]any, key string) (int64, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing key %q in field %q", ErrInvalidSpec, key, field)
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("%w: key %q in field %q must be an integer", ErrInvalidSpec, key, field)
	}
}

// PopulateFromMultipart rebuilds the registry from a parsed multipart
// form. Bracketed field names keep their full name as the lookup key;
// temporary paths are not available for in-memory parts and stay empty.
func (r *Registry) PopulateFromMultipart(form *multipart.Form) error {
	r.Reset()
	if form == nil {
		return nil
	}

	for field, headers := range form.File {
		if strings.Count(field, "[") > r.maxDepth {
			return fmt.Errorf("%w: field %q", ErrNestingTooDeep, field)
		}
		for _, h := range headers {
			r.files[field] = append(r.files[field], &File{
				Name:      h.Filename,
				MediaType: h.Header.Get("Content-Type"),
				Size:      h.Size,
			})
		}
	}
	return nil
}

// Get returns the files uploaded under the given field name.
// Returns nil if the field has no files.
func (r *Registry) Get(field string) []*File {
	return r.files[field]
}

// Count returns the total number of registered files.
func (r *Registry) Count() int {
	n := 0
	for _, fs := range r.files {
		n += len(fs)
	}
	return n
}

// Fields returns the registered field names in sorted order.
func (r *Registry) Fields() []string {
	fields := make([]string, 0, len(r.files))
	for f := range r.files {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
