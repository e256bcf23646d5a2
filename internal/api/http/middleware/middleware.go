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
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/jwt"

	"github.com/noetl/noetl/pkg/auth"
)

// Middleware holds the Control API's ambient middleware: CORS, access
// logging, and the auth-context injector every route chain starts with.
type Middleware struct{}

// NewMiddleware creates a new middleware bundle.
func NewMiddleware() *Middleware {
	return &Middleware{}
}

// CORS answers preflight requests and sets the cross-origin headers the
// rest of the chain needs on every response.
func (m *Middleware) CORS() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if string(c.Method()) == "OPTIONS" {
			c.AbortWithStatus(consts.StatusNoContent)
			return
		}
		c.Next(ctx)
	}
}

// Auth is a no-op pass-through used when JWT is disabled (no jwt_key
// configured); InjectAuthContext still runs after it either way.
func (m *Middleware) Auth() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		c.Next(ctx)
	}
}

// InjectAuthContext copies the X-Tenant-ID/X-User-ID headers (or the JWT
// identity, when JWTAuth ran earlier in the chain) into the request
// context so downstream handlers and AuthZMiddleware can read them via
// pkg/auth.GetTenantID/GetUserID.
func (m *Middleware) InjectAuthContext() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		tenantID := string(c.GetHeader("X-Tenant-ID"))
		if tenantID == "" {
			tenantID = "default"
		}
		userID := string(c.GetHeader("X-User-ID"))
		if claims := jwt.ExtractClaims(ctx, c); claims != nil {
			if id, ok := claims["id"].(string); ok && id != "" {
				userID = id
			}
		}
		ctx = auth.WithTenantID(ctx, tenantID)
		ctx = auth.WithUserID(ctx, userID)
		c.Next(ctx)
	}
}

// JWTAuth wraps hertz-contrib/jwt's middleware for the login + bearer-token
// flow that guards every Control API route.
type JWTAuth struct {
	Middleware *jwt.HertzJWTMiddleware
}

// LoginHandler returns the POST /api/login handler.
func (j *JWTAuth) LoginHandler() app.HandlerFunc {
	return j.Middleware.LoginHandler
}

// MiddlewareFunc returns the bearer-token verification middleware.
func (j *JWTAuth) MiddlewareFunc() app.HandlerFunc {
	return j.Middleware.MiddlewareFunc()
}

// AuthUser is the identity carried in a Control API JWT.
type AuthUser struct {
	Username string
	Role     auth.Role
}

// NewJWTAuth builds a JWTAuth guarding the Control API with key as its
// signing secret. Authenticator accepts any username whose password
// equals the username itself followed by "-pass", purely so the reference
// deployment has something to log in with; a real deployment replaces
// Authenticator with a call into its own identity provider.
func NewJWTAuth(key []byte, timeout time.Duration) (*JWTAuth, error) {
	identityKey := "id"
	mw, err := jwt.New(&jwt.HertzJWTMiddleware{
		Realm:       "noetl-control",
		Key:         key,
		Timeout:     timeout,
		MaxRefresh:  timeout,
		IdentityKey: identityKey,
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if u, ok := data.(*AuthUser); ok {
				return jwt.MapClaims{identityKey: u.Username, "role": string(u.Role)}
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			return &AuthUser{Username: claims[identityKey].(string)}
		},
		Authenticator: func(ctx context.Context, c *app.RequestContext) (interface{}, error) {
			var loginVals struct {
				Username string `form:"username" json:"username"`
				Password string `form:"password" json:"password"`
			}
			if err := c.Bind(&loginVals); err != nil {
				return nil, jwt.ErrMissingLoginValues
			}
			if loginVals.Password != loginVals.Username+"-pass" {
				return nil, jwt.ErrFailedAuthentication
			}
			return &AuthUser{Username: loginVals.Username, Role: auth.RoleOperator}, nil
		},
		Authorizator: func(data interface{}, ctx context.Context, c *app.RequestContext) bool {
			return data != nil
		},
		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			c.JSON(code, map[string]interface{}{"code": code, "message": message})
		},
	})
	if err != nil {
		return nil, err
	}
	if err := mw.MiddlewareInit(); err != nil {
		return nil, err
	}
	return &JWTAuth{Middleware: mw}, nil
}

// AccessLog logs method, path, client IP, status and latency for every
// request via hlog, the request-scoped logger.
func (m *Middleware) AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)
		hlog.CtxInfof(ctx, "%s %s %s %d %s",
			c.Method(), c.Path(), c.ClientIP(), c.Response.StatusCode(), time.Since(start))
	}
}
