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

package auth

import (
	"context"
)

// Permission names one Control API operation (submit/status/cancel/
// query_events/set_variable).
type Permission string

const (
	PermissionExecutionView   Permission = "execution:view"   // status
	PermissionExecutionCreate Permission = "execution:create" // submit
	PermissionExecutionCancel Permission = "execution:cancel" // cancel
	PermissionEventsView      Permission = "events:view"      // query_events
	PermissionVariableSet     Permission = "variable:set"     // set_variable
)

// Role is a tenant-scoped user role.
type Role string

const (
	RoleAdmin    Role = "admin"    // every permission
	RoleOperator Role = "operator" // view + cancel + set_variable, same as admin here
	RoleAuditor  Role = "auditor"  // read-only: view + query_events
	RoleUser     Role = "user"     // submit + view + query_events, no cancel/set_variable
)

// RolePermissions maps each Role to the Permissions it holds.
var RolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermissionExecutionView,
		PermissionExecutionCreate,
		PermissionExecutionCancel,
		PermissionEventsView,
		PermissionVariableSet,
	},
	RoleOperator: {
		PermissionExecutionView,
		PermissionExecutionCreate,
		PermissionExecutionCancel,
		PermissionEventsView,
		PermissionVariableSet,
	},
	RoleAuditor: {
		PermissionExecutionView,
		PermissionEventsView,
	},
	RoleUser: {
		PermissionExecutionView,
		PermissionExecutionCreate,
		PermissionEventsView,
	},
}

// RBACChecker decides whether a tenant+user holds a Permission.
type RBACChecker interface {
	// CheckPermission reports whether userID may exercise permission,
	// optionally scoped to one resourceID.
	CheckPermission(ctx context.Context, tenantID string, userID string, permission Permission, resourceID string) (bool, error)

	// GetUserRole returns userID's Role within tenantID.
	GetUserRole(ctx context.Context, tenantID string, userID string) (Role, error)

	// AssignRole sets userID's Role within tenantID.
	AssignRole(ctx context.Context, tenantID string, userID string, role Role) error
}

// HasPermission reports whether role's permission set contains permission.
func HasPermission(role Role, permission Permission) bool {
	permissions, ok := RolePermissions[role]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// SimpleRBACChecker is an RBACChecker backed by a RoleStore plus the
// static RolePermissions table.
type SimpleRBACChecker struct {
	roleStore RoleStore
}

// RoleStore persists each tenant+user's assigned Role.
type RoleStore interface {
	GetUserRole(ctx context.Context, tenantID string, userID string) (Role, error)
	SetUserRole(ctx context.Context, tenantID string, userID string, role Role) error
}

// NewSimpleRBACChecker wraps roleStore as an RBACChecker.
func NewSimpleRBACChecker(roleStore RoleStore) *SimpleRBACChecker {
	return &SimpleRBACChecker{roleStore: roleStore}
}

func (c *SimpleRBACChecker) CheckPermission(ctx context.Context, tenantID string, userID string, permission Permission, resourceID string) (bool, error) {
	role, err := c.roleStore.GetUserRole(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}

	return HasPermission(role, permission), nil
}

func (c *SimpleRBACChecker) GetUserRole(ctx context.Context, tenantID string, userID string) (Role, error) {
	return c.roleStore.GetUserRole(ctx, tenantID, userID)
}

func (c *SimpleRBACChecker) AssignRole(ctx context.Context, tenantID string, userID string, role Role) error {
	return c.roleStore.SetUserRole(ctx, tenantID, userID, role)
}
