// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resultstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ObjectBackend is a filesystem-backed object-store adapter standing in for
// a vendor object store (S3/GCS/MinIO): same put/get/delete/list trait, no
// object-store SDK in the pack small enough to justify adopting one here.
type ObjectBackend struct {
	root string
}

// NewObjectBackend returns a Backend rooted at dir; dir is created if
// missing.
func NewObjectBackend(dir string) (*ObjectBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("resultstore: object backend mkdir: %w", err)
	}
	return &ObjectBackend{root: dir}, nil
}

func (o *ObjectBackend) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	return filepath.Join(o.root, clean), nil
}

func (o *ObjectBackend) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	path, err := o.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("resultstore: object backend mkdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("resultstore: object backend write: %w", err)
	}
	return "object://" + key, nil
}

func (o *ObjectBackend) Get(ctx context.Context, uri string) ([]byte, error) {
	key := strings.TrimPrefix(uri, "object://")
	path, err := o.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resultstore: object backend read: %w", err)
	}
	return data, nil
}

func (o *ObjectBackend) Delete(ctx context.Context, uri string) error {
	key := strings.TrimPrefix(uri, "object://")
	path, err := o.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("resultstore: object backend delete: %w", err)
	}
	return nil
}

func (o *ObjectBackend) List(ctx context.Context, prefix string) ([]string, error) {
	dir, err := o.resolve(prefix)
	if err != nil {
		return nil, err
	}
	var out []string
	base := filepath.Dir(dir)
	err = filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(o.root, path)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			out = append(out, "object://"+key)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

var _ Backend = (*ObjectBackend)(nil)
