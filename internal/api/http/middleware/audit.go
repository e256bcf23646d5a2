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

package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/noetl/noetl/pkg/auth"
)

// AuditMiddleware records one AuditLog entry per Control API request.
type AuditMiddleware struct {
	auditStore AuditStore
}

// AuditStore persists AuditLog entries.
type AuditStore interface {
	LogAccess(ctx context.Context, log AuditLog) error
}

// AuditLog is one recorded Control API access.
type AuditLog struct {
	TenantID     string
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Success      bool
	DurationMS   int64
	CreatedAt    time.Time
}

// NewAuditMiddleware wraps store for use in a route chain.
func NewAuditMiddleware(store AuditStore) *AuditMiddleware {
	return &AuditMiddleware{auditStore: store}
}

// AuditAccess records method/path/outcome for every request, after it
// completes, without blocking the response.
func (a *AuditMiddleware) AuditAccess() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		userID := auth.GetUserID(ctx)
		tenantID := auth.GetTenantID(ctx)

		c.Next(ctx)

		action := determineAction(string(c.Method()), string(c.Path()))
		resourceType, resourceID := extractResource(string(c.Path()))
		status := c.Response.StatusCode()
		go func() {
			_ = a.auditStore.LogAccess(context.Background(), AuditLog{
				TenantID:     tenantID,
				UserID:       userID,
				Action:       action,
				ResourceType: resourceType,
				ResourceID:   resourceID,
				Success:      status < 400,
				DurationMS:   time.Since(start).Milliseconds(),
				CreatedAt:    time.Now().UTC(),
			})
		}()
	}
}

func determineAction(method string, path string) string {
	switch {
	case strings.Contains(path, "/cancel"):
		return "cancel_execution"
	case strings.Contains(path, "/variables"):
		return "set_variable"
	case strings.Contains(path, "/events"):
		return "query_events"
	case strings.HasSuffix(path, "/executions") && method == "POST":
		return "submit_execution"
	case strings.Contains(path, "/executions/"):
		return "view_execution"
	default:
		return "unknown"
	}
}

func extractResource(path string) (resourceType string, resourceID string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if p == "executions" && i+1 < len(parts) {
			return "execution", parts[i+1]
		}
	}
	return "unknown", ""
}
