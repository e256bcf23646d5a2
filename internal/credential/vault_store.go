// Copyright 2026 fanjia1024
// Secret management abstraction
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

package credential

import (
	"context"
	"fmt"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig configures a HashiCorp Vault-backed Store.
type VaultConfig struct {
	Address    string
	Token      string
	PathPrefix string
}

type vaultStore struct {
	client     *vault.Client
	pathPrefix string
	mu         sync.RWMutex
	transient  map[string]string
}

// NewVaultStore connects to Vault and returns a Store backed by it.
func NewVaultStore(cfg VaultConfig) (Store, error) {
	if cfg.Address == "" {
		cfg.Address = "http://localhost:8200"
	}
	vcfg := vault.DefaultConfig()
	vcfg.Address = cfg.Address

	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("credential: vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("credential: vault health check: %w", err)
	}

	prefix := "secret"
	if cfg.PathPrefix != "" {
		prefix = cfg.PathPrefix
	}
	return &vaultStore{client: client, pathPrefix: prefix, transient: make(map[string]string)}, nil
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	v.mu.RLock()
	if val, ok := v.transient[key]; ok {
		v.mu.RUnlock()
		return val, nil
	}
	v.mu.RUnlock()

	secret, err := v.client.Logical().Read(v.path(key))
	if err != nil {
		return "", fmt.Errorf("credential: vault read: %w", err)
	}
	if secret == nil {
		return "", fmt.Errorf("credential: not found: %s", key)
	}
	if data, ok := secret.Data["value"].(string); ok {
		return data, nil
	}
	for _, val := range secret.Data {
		if s, ok := val.(string); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("credential: value not found: %s", key)
}

func (v *vaultStore) Set(ctx context.Context, key, value string) error {
	_, err := v.client.Logical().Write(v.path(key), map[string]interface{}{"value": value})
	if err != nil {
		return fmt.Errorf("credential: vault write: %w", err)
	}
	v.mu.Lock()
	v.transient[key] = value
	v.mu.Unlock()
	return nil
}

func (v *vaultStore) Delete(ctx context.Context, key string) error {
	if _, err := v.client.Logical().Delete(v.path(key)); err != nil {
		return fmt.Errorf("credential: vault delete: %w", err)
	}
	v.mu.Lock()
	delete(v.transient, key)
	v.mu.Unlock()
	return nil
}

func (v *vaultStore) List(ctx context.Context, prefix string) ([]string, error) {
	searchPath := v.pathPrefix
	if prefix != "" {
		searchPath = fmt.Sprintf("%s/metadata/%s", v.pathPrefix, prefix)
	}
	secret, err := v.client.Logical().List(searchPath)
	if err != nil {
		return nil, fmt.Errorf("credential: vault list: %w", err)
	}
	if secret == nil {
		return nil, nil
	}
	keysRaw, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}
	var out []string
	for _, k := range keysRaw {
		s, ok := k.(string)
		if !ok {
			continue
		}
		if !strings.HasPrefix(s, prefix) {
			s = fmt.Sprintf("%s/%s", prefix, s)
		}
		out = append(out, s)
	}
	return out, nil
}

func (v *vaultStore) path(key string) string {
	return fmt.Sprintf("%s/%s", v.pathPrefix, key)
}
