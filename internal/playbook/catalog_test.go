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

package playbook

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCatalog_GetCachesAfterFirstRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fetch-and-store.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0644))

	cat := NewFileCatalog(dir)
	pb, err := cat.Get(context.Background(), "fetch-and-store")
	require.NoError(t, err)
	assert.Equal(t, "fetch-and-store", pb.Name)

	// Remove the file; a cached Get must still succeed.
	require.NoError(t, os.Remove(path))
	pb2, err := cat.Get(context.Background(), "fetch-and-store")
	require.NoError(t, err)
	assert.Same(t, pb, pb2)
}

func TestFileCatalog_GetMissingFile(t *testing.T) {
	cat := NewFileCatalog(t.TempDir())
	_, err := cat.Get(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestFileCatalog_InvalidateForcesReread(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fetch-and-store.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0644))

	cat := NewFileCatalog(dir)
	_, err := cat.Get(context.Background(), "fetch-and-store")
	require.NoError(t, err)

	cat.Invalidate("fetch-and-store")
	require.NoError(t, os.Remove(path))
	_, err = cat.Get(context.Background(), "fetch-and-store")
	assert.Error(t, err)
}
