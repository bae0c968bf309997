package view

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/goccy/go-json"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/kubusdb/kubus/pkg/constants"
)

// File is the on-disk shape of a design document definition:
//
//	name: cats
//	views:
//	  by_name:
//	    map: function(doc) { if (doc.type == 'Cat') emit(doc.name, null) }
//	    reduce: _count
//	lists:
//	  main: function(head, req) { ... }
//
// A file without a name is named after its file name minus the suffix.
type File struct {
	Name    string              `json:"name" yaml:"name"`
	Views   map[string]Function `json:"views" yaml:"views"`
	Lists   map[string]string   `json:"lists" yaml:"lists"`
	Shows   map[string]string   `json:"shows" yaml:"shows"`
	Indexes map[string]Index    `json:"indexes" yaml:"indexes"`
}

// LoadDir reads every file under dir, at any depth, whose name ends with
// suffix. Files ending in .json are read as JSON with comments, anything
// else as YAML. Two files may not define the same design document.
func LoadDir(dir, suffix string) ([]*Builder, error) {
	if suffix == "" {
		suffix = constants.DefaultViewsSuffix
	}
	matcher, err := glob.Compile("{*,**/*}"+glob.QuoteMeta(suffix), '/')
	if err != nil {
		return nil, fmt.Errorf("%w: suffix %q: %v", constants.ErrInvalidArgument, suffix, err)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if matcher.Match(filepath.ToSlash(rel)) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load views from %s: %w", dir, err)
	}
	sort.Strings(paths)

	builders := make([]*Builder, 0, len(paths))
	seen := map[string]string{}
	for _, path := range paths {
		b, err := LoadFile(path, suffix)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[b.Name()]; dup {
			return nil, fmt.Errorf("%w: %s is defined by %s and %s", constants.ErrInvalidArgument, b.ID(), prev, path)
		}
		seen[b.Name()] = path
		builders = append(builders, b)
	}
	return builders, nil
}

// LoadFile reads a single definition file.
func LoadFile(path, suffix string) (*Builder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if strings.HasSuffix(path, ".json") {
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		err = json.Unmarshal(std, &f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), suffix)
	}
	b, err := f.Builder()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Builder turns the definition into a builder. Entries named "main" replace
// the placeholders.
func (f File) Builder() (*Builder, error) {
	b, err := NewBuilder(f.Name)
	if err != nil {
		return nil, err
	}

	for _, name := range sortedKeys(f.Views) {
		fn := f.Views[name]
		var reduce []string
		if fn.Reduce != "" {
			reduce = append(reduce, fn.Reduce)
		}
		if err := b.RegisterView(name, fn.Map, reduce...); err != nil {
			return nil, err
		}
	}
	for _, name := range sortedKeys(f.Lists) {
		if err := b.RegisterList(name, f.Lists[name]); err != nil {
			return nil, err
		}
	}
	for _, name := range sortedKeys(f.Shows) {
		if err := b.RegisterShow(name, f.Shows[name]); err != nil {
			return nil, err
		}
	}
	for _, name := range sortedKeys(f.Indexes) {
		idx := f.Indexes[name]
		if err := b.RegisterIndex(name, idx.Analyzer, idx.Index); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
