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
	"errors"
)

// ErrCloudNotConfigured is returned by CloudBackend stubs: no S3/GCS SDK is
// wired in this tree (see DESIGN.md — no pack example imports one), so the
// unbounded "cloud" tier exists only as a satisfiable interface for
// deployments that supply their own Backend.
var ErrCloudNotConfigured = errors.New("resultstore: cloud tier not configured")

// CloudBackend is an interface-only stand-in for the unbounded s3/gcs tier.
// Operators wire a concrete Backend implementation at process start; this
// type exists so Store's tier map always has a TierCloud entry to fall
// back to, even if unconfigured deployments get ErrCloudNotConfigured.
type CloudBackend struct{}

// NewUnconfiguredCloudBackend returns a Backend whose every method fails
// with ErrCloudNotConfigured, used as a safe default entry in Store's tier
// map until an operator supplies a real S3/GCS-backed Backend.
func NewUnconfiguredCloudBackend() *CloudBackend { return &CloudBackend{} }

func (c *CloudBackend) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return "", ErrCloudNotConfigured
}

func (c *CloudBackend) Get(ctx context.Context, uri string) ([]byte, error) {
	return nil, ErrCloudNotConfigured
}

func (c *CloudBackend) Delete(ctx context.Context, uri string) error {
	return ErrCloudNotConfigured
}

func (c *CloudBackend) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, ErrCloudNotConfigured
}

var _ Backend = (*CloudBackend)(nil)
