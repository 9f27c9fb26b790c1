// Package staging holds captured images until a tag sweep consumes them.
//
// Consumers enumerate a key, process each entry, then remove it. Implementations
// must make Put atomic so a concurrent List never observes a partial image.
package staging

import (
	"context"
	"errors"
	"path/filepath"
)

var ErrNotFound = errors.New("staged image not found")

// ImageExt is the extension of every staged image.
const ImageExt = ".jpg"

// Key names one (camera staging root, factory, module, tag) folder.
type Key struct {
	Root       string
	FactoryID  string
	ModuleName string
	TagName    string
}

// Dir is <root>/<factoryId>/<moduleName>/<tagName>.
func (k Key) Dir() string {
	return filepath.Join(k.Root, k.FactoryID, k.ModuleName, k.TagName)
}

type Queue interface {
	Put(ctx context.Context, key Key, name string, data []byte) error
	List(ctx context.Context, key Key) ([]string, error)
	Read(ctx context.Context, key Key, name string) ([]byte, error)
	Remove(ctx context.Context, key Key, name string) error
}
