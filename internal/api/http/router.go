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

package http

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"

	"github.com/noetl/noetl/internal/api/http/middleware"
	"github.com/noetl/noetl/pkg/auth"
)

// Router builds the Control API's Hertz engine: one route per control-plane
// operation, each gated by a permission from pkg/auth.
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	jwtAuth    *middleware.JWTAuth
	authz      *middleware.AuthZMiddleware
}

// NewRouter wires a Router over handler; mw carries the ambient CORS/
// access-log/auth-context middleware.
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// SetJWT enables bearer-token auth; call before Build.
func (r *Router) SetJWT(jwtAuth *middleware.JWTAuth) {
	r.jwtAuth = jwtAuth
}

// SetAuthZ enables RBAC permission checks; call before Build.
func (r *Router) SetAuthZ(authz *middleware.AuthZMiddleware) {
	r.authz = authz
}

// authChainWith returns the handler chain for one route: auth, auth-context
// injection, an optional RBAC check, then handler.
func (r *Router) authChainWith(permission auth.Permission, handler app.HandlerFunc) []app.HandlerFunc {
	chain := []app.HandlerFunc{r.middleware.Auth(), r.middleware.InjectAuthContext()}
	if r.jwtAuth != nil {
		chain[0] = r.jwtAuth.MiddlewareFunc()
	}
	if r.authz != nil {
		chain = append(chain, r.authz.RequirePermission(permission))
	}
	return append(chain, handler)
}

// Build creates the Hertz engine, registers middleware and routes, and
// returns it ready for Run(). opts is passed through to server.Default (for
// example server.WithTracer from the OTel integration).
func (r *Router) Build(addr string, opts ...hertzconfig.Option) *server.Hertz {
	allOpts := append([]hertzconfig.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(allOpts...)

	h.Use(r.middleware.AccessLog())
	h.Use(r.middleware.CORS())

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)
	api.GET("/metrics", r.handler.Metrics)
	if r.jwtAuth != nil {
		api.POST("/login", r.jwtAuth.LoginHandler())
	}

	executions := api.Group("/executions")
	{
		executions.POST("", r.authChainWith(auth.PermissionExecutionCreate, r.handler.Submit)...)
		executions.GET("/:id", r.authChainWith(auth.PermissionExecutionView, r.handler.Status)...)
		executions.POST("/:id/cancel", r.authChainWith(auth.PermissionExecutionCancel, r.handler.Cancel)...)
		executions.GET("/:id/events", r.authChainWith(auth.PermissionEventsView, r.handler.QueryEvents)...)
		executions.POST("/:id/variables", r.authChainWith(auth.PermissionVariableSet, r.handler.SetVariable)...)
	}

	return h
}
