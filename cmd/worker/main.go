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
	"sync"
	"syscall"
	"time"

	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/cloudwego/hertz/pkg/common/hlog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/noetl/noetl/internal/credential"
	"github.com/noetl/noetl/internal/engine"
	"github.com/noetl/noetl/internal/eventlog"
	"github.com/noetl/noetl/internal/kvstore"
	"github.com/noetl/noetl/internal/playbook"
	"github.com/noetl/noetl/internal/queue"
	"github.com/noetl/noetl/internal/resultstore"
	"github.com/noetl/noetl/internal/tool"
	"github.com/noetl/noetl/internal/tool/httptool"
	"github.com/noetl/noetl/internal/tool/playbooktool"
	"github.com/noetl/noetl/internal/tool/scripttool"
	"github.com/noetl/noetl/internal/tool/shelltool"
	"github.com/noetl/noetl/internal/tool/sqltool"
	"github.com/noetl/noetl/internal/worker"
	"github.com/noetl/noetl/pkg/config"
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

	creds, err := openCredentialStore(cfg.Credential)
	if err != nil {
		log.Fatalf("open credential store: %v", err)
	}

	results, index, err := openResultStore(cfg.ResultStore, cfg.KVStore)
	if err != nil {
		log.Fatalf("open result store: %v", err)
	}

	tools := tool.NewRegistry()
	tools.Register(httptool.New())
	tools.Register(shelltool.New())
	tools.Register(scripttool.New())
	tools.Register(playbooktool.New(&engineSubmitter{eng: eng}))
	if cfg.Tools.SQLDSN != "" {
		pool, perr := pgxpool.New(context.Background(), cfg.Tools.SQLDSN)
		if perr != nil {
			log.Fatalf("open sql pool: %v", perr)
		}
		defer pool.Close()
		tools.Register(sqltool.New(pool))
	}

	runnerCfg := worker.Config{
		WorkerID:     cfg.Worker.WorkerID,
		Capabilities: cfg.Worker.Capabilities,
	}
	if d, perr := time.ParseDuration(cfg.Worker.LeaseTime); perr == nil {
		runnerCfg.LeaseTime = d
	}
	if d, perr := time.ParseDuration(cfg.Worker.PollInterval); perr == nil {
		runnerCfg.PollInterval = d
	}

	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	var sweepShutdown func()
	if sweepInterval, perr := time.ParseDuration(cfg.ResultStore.SweepInterval); perr == nil && sweepInterval > 0 {
		sweeper := resultstore.NewSweeper(results, index, resultstore.RetentionConfig{SweepInterval: sweepInterval})
		sweepCtx, sweepCancel := context.WithCancel(ctx)
		go sweeper.Run(sweepCtx, func(serr error) { log.Printf("resultstore sweep: %v", serr) })
		sweepShutdown = sweepCancel
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		runnerID := runnerCfg
		if concurrency > 1 {
			runnerID.WorkerID = fmt.Sprintf("%s-%d", cfg.Worker.WorkerID, i)
		}
		r := worker.New(cmds, tools, creds, results, eng, eng, runnerID)
		r.SetResultIndex(index)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
	}

	log.Printf("noetl-worker running (%d runner(s), worker_id=%s)", concurrency, cfg.Worker.WorkerID)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	cancel()
	if sweepShutdown != nil {
		sweepShutdown()
	}
	wg.Wait()
	log.Println("noetl-worker shut down")
}

// engineSubmitter adapts *engine.Engine to playbooktool.Submitter: the
// sub-playbook tool calls Submit/Await with just a playbook name and
// variables, while Engine.Submit also wants the parent execution ID for
// cascade cancel. That ID travels in ctx rather than the Submitter
// interface, via the same context-key mechanism the worker uses to thread
// execution_id into tool.Execute.
type engineSubmitter struct {
	eng *engine.Engine
}

func (s *engineSubmitter) Submit(ctx context.Context, playbookName string, vars map[string]any) (string, error) {
	parent := tool.ExecutionIDFromContext(ctx)
	return s.eng.Submit(ctx, playbookName, vars, parent)
}

func (s *engineSubmitter) Await(ctx context.Context, executionID string) (any, error) {
	return s.eng.Await(ctx, executionID)
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

func openKVStore(cfg config.KVStoreConfig) kvstore.Store {
	switch cfg.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})
		return kvstore.NewRedisStore(client, "noetl:loopstate:")
	default:
		return kvstore.NewMemoryStore()
	}
}

func openCredentialStore(cfg config.CredentialConfig) (credential.Store, error) {
	backing, err := credential.NewStore(credential.Config{Provider: cfg.Provider, Options: cfg.Options})
	if err != nil {
		return nil, err
	}
	ttl := 15 * time.Minute
	if cfg.TTL != "" {
		if d, perr := time.ParseDuration(cfg.TTL); perr == nil {
			ttl = d
		}
	}
	cache := credential.NewCache(backing, ttl)
	if cfg.RefreshThresholdSeconds > 0 {
		cache = cache.WithRefreshThreshold(time.Duration(cfg.RefreshThresholdSeconds) * time.Second)
	}
	return cache, nil
}

// openResultStore wires the memory/kv/object tiers behind Store's
// size+scope auto-selection (the cloud tier stays unconfigured, see
// resultstore.NewUnconfiguredCloudBackend), plus the in-process Index a
// Sweeper needs to find expired refs.
func openResultStore(cfg config.ResultStoreConfig, kvcfg config.KVStoreConfig) (*resultstore.Store, *resultstore.Index, error) {
	backends := map[resultstore.Tier]resultstore.Backend{
		resultstore.TierMemory: resultstore.NewMemoryBackend(),
		resultstore.TierCloud:  resultstore.NewUnconfiguredCloudBackend(),
	}

	redisAddr := cfg.RedisAddr
	if redisAddr == "" {
		redisAddr = kvcfg.Addr
	}
	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		backends[resultstore.TierKV] = resultstore.NewKVBackend(client, "noetl:resultstore:", 24*time.Hour)
	}

	if cfg.ObjectDir != "" {
		objectBackend, err := resultstore.NewObjectBackend(cfg.ObjectDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open object backend: %w", err)
		}
		backends[resultstore.TierObject] = objectBackend
	}

	return resultstore.NewStore(backends), resultstore.NewIndex(), nil
}
