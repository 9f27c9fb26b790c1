package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"edge-analyzer/internal/utils"
)

// FSQueue stores staged images as files under Key.Dir().
type FSQueue struct{}

func NewFSQueue() *FSQueue {
	return &FSQueue{}
}

func (q *FSQueue) Put(_ context.Context, key Key, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	dir := key.Dir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create staging dir %q: %w", dir, err)
	}
	return utils.AtomicWrite(filepath.Join(dir, name), data)
}

func (q *FSQueue) List(_ context.Context, key Key) ([]string, error) {
	entries, err := os.ReadDir(key.Dir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list staging dir %q: %w", key.Dir(), err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), ImageExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (q *FSQueue) Read(_ context.Context, key Key, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(key.Dir(), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, err
}

func (q *FSQueue) Remove(_ context.Context, key Key, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(key.Dir(), name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return err
}

func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid staged image name %q", name)
	}
	return nil
}
