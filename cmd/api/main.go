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

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/cloudwego/hertz/pkg/common/hlog"

	"github.com/redis/go-redis/v9"

	noetlhttp "github.com/noetl/noetl/internal/api/http"
	"github.com/noetl/noetl/internal/api/http/middleware"
	"github.com/noetl/noetl/internal/engine"
	"github.com/noetl/noetl/internal/eventlog"
	"github.com/noetl/noetl/internal/kvstore"
	"github.com/noetl/noetl/internal/playbook"
	"github.com/noetl/noetl/internal/queue"
	"github.com/noetl/noetl/pkg/auth"
	"github.com/noetl/noetl/pkg/config"
	"github.com/noetl/noetl/pkg/tracing"
)

func main() {
	cfg, err := config.Load(os.Getenv("NOETL_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	hlog.SetLogger(hertzslog.NewLogger())

	events, err := openEventLog(cfg.EventLog)
	if err != nil {
		log.Fatalf("open event log: %v", err)
	}
	cmds := queue.NewMemoryQueue()
	catalog := playbook.NewFileCatalog(cfg.Playbooks.Dir)

	eng := engine.New(events, cmds, catalog)
	defer eng.Close()
	eng.SetKVMirror(openKVStore(cfg.KVStore))

	handler := noetlhttp.NewHandler(eng)
	router := noetlhttp.NewRouter(handler, middleware.NewMiddleware())

	if cfg.API.JWTKey != "" {
		timeout, perr := time.ParseDuration(cfg.API.JWTTimeout)
		if perr != nil || timeout <= 0 {
			timeout = time.Hour
		}
		jwtAuth, jerr := middleware.NewJWTAuth([]byte(cfg.API.JWTKey), timeout)
		if jerr != nil {
			log.Fatalf("init jwt auth: %v", jerr)
		}
		router.SetJWT(jwtAuth)
		router.SetAuthZ(middleware.NewAuthZMiddleware(auth.NewSimpleRBACChecker(auth.NewMemoryRoleStore())))
	}

	var tracerShutdown func(context.Context) error
	if cfg.Tracing.Enable {
		tp, terr := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    cfg.Tracing.ServiceName,
			ExportEndpoint: cfg.Tracing.ExportEndpoint,
			Insecure:       cfg.Tracing.Insecure,
		})
		if terr != nil {
			log.Printf("tracing disabled, init failed: %v", terr)
		} else {
			tracerShutdown = tp.Shutdown
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	h := router.Build(addr)

	go func() {
		log.Printf("noetl-api listening on %s", addr)
		if err := h.Run(); err != nil {
			log.Printf("api server exited: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := h.Shutdown(ctx); err != nil {
		log.Printf("shutdown api server: %v", err)
	}
	if tracerShutdown != nil {
		_ = tracerShutdown(ctx)
	}
	log.Println("noetl-api shut down")
}

func openKVStore(cfg config.KVStoreConfig) kvstore.Store {
	switch cfg.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})
		return kvstore.NewRedisStore(client, "noetl:loopstate:")
	default:
		return kvstore.NewMemoryStore()
	}
}

func openEventLog(cfg config.EventLogConfig) (eventlog.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return eventlog.NewMemoryStore(), nil
	case "postgres":
		lease := 30 * time.Second
		if cfg.LeaseDuration != "" {
			if d, err := time.ParseDuration(cfg.LeaseDuration); err == nil {
				lease = d
			}
		}
		return eventlog.NewPostgresStore(context.Background(), cfg.DSN, lease)
	default:
		return nil, fmt.Errorf("unsupported eventlog type %q", cfg.Type)
	}
}
