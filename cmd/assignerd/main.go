// Command assignerd runs the Task-to-Cloud Assigner worker pool and its
// admin/control HTTP surface (SPEC_FULL.md §5, §4.8).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gridassign/gridassign/internal/api"
	"github.com/gridassign/gridassign/internal/assigner"
	"github.com/gridassign/gridassign/internal/boundary"
	"github.com/gridassign/gridassign/internal/buildinfo"
	"github.com/gridassign/gridassign/internal/config"
	"github.com/gridassign/gridassign/internal/directory"
	"github.com/gridassign/gridassign/internal/loadoracle"
	"github.com/gridassign/gridassign/internal/locator"
	"github.com/gridassign/gridassign/internal/scanloop"
	"github.com/gridassign/gridassign/internal/state"
	"github.com/gridassign/gridassign/internal/subplanner"
	"github.com/gridassign/gridassign/internal/subscription"
	"github.com/gridassign/gridassign/internal/taskpayload"
)

func main() {
	log.Printf("gridassign %s (%s, built %s)", buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime)

	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		fatalf("%v", err)
	}
	if config.IsWeakToken(envCfg.AdminToken) {
		log.Printf("WARNING: GRIDASSIGN_ADMIN_TOKEN is weak; continuing anyway")
	}

	repo, dbCloser, err := state.PersistenceBootstrap(envCfg.StateDir)
	if err != nil {
		fatalf("persistence bootstrap: %v", err)
	}
	defer dbCloser.Close()
	log.Println("persistence bootstrap complete")

	liveCfg, version := loadRuntimeConfig(repo)

	dir := directory.New()
	if snap, err := directory.LoadFile(envCfg.TopologyPath); err != nil {
		log.Printf("WARNING: initial topology load failed for %s: %v (starting with empty directory)", envCfg.TopologyPath, err)
	} else {
		dir.Replace(snap)
		log.Printf("loaded topology: %d clouds, %d sites", len(snap.Clouds), len(snap.Sites))
	}

	stopCh := make(chan struct{})
	go directory.RunReloadLoop(stopCh, dir, envCfg.TopologyPath, envCfg.TopologyReload, scanloop.DefaultJitterRange)

	topologyCron, err := directory.StartCronReload(dir, envCfg.TopologyPath, envCfg.TopologySchedule)
	if err != nil {
		log.Printf("WARNING: GRIDASSIGN_TOPOLOGY_SCHEDULE cron reload disabled: %v", err)
	} else {
		defer topologyCron.Stop()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			log.Println("received SIGHUP, reloading topology")
			directory.Reload(dir, envCfg.TopologyPath)
		}
	}()

	catalogue := boundary.NewCatalogueWithClient(envCfg.CatalogueBaseURL, boundary.NewHTTPClient(envCfg.LocatorProbeTimeout))
	loc, err := locator.New(locator.Config{
		Catalogue:     catalogue,
		Batch:         liveCfg.Load().Batch,
		MaxBatches:    liveCfg.Load().MaxBatches,
		BatchRetries:  envCfg.LocatorBatchRetries,
		BatchBackoff:  envCfg.LocatorBatchBackoff,
		Concurrency:   envCfg.LocatorConcurrency,
		CacheCapacity: 10_000,
		CacheTTL:      envCfg.LocatorCacheTTL,
	})
	if err != nil {
		fatalf("locator: %v", err)
	}

	siteData := boundary.NewSiteData(envCfg.TaskDBBaseURL)
	oracle := loadoracle.New(siteData)

	ddm := boundary.NewDDM(envCfg.DDMBaseURL)
	identity := boundary.StaticIdentity{DN: envCfg.CallerDN}
	ledger := subscription.NewLedger(24 * time.Hour)
	planner := subplanner.New(ddm, identity, ledger,
		subplanner.WithRetries(envCfg.SubscriptionListRetries, envCfg.SubscriptionListBackoff, 3),
	)

	cfgSource := &runtimeConfigSource{live: liveCfg}
	controller := assigner.New(repo, dir, loc, oracle, planner, cfgSource)

	srv := api.NewServer(envCfg.APIPort, envCfg.AdminToken, int64(envCfg.APIMaxBodyBytes), repo, liveCfg, version)
	serverErrCh := make(chan error, 1)
	go func() {
		log.Printf("admin API listening on :%d", envCfg.APIPort)
		if err := srv.ListenAndServe(); err != nil {
			serverErrCh <- err
		}
	}()

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	for i := 0; i < envCfg.AssignWorkerCount; i++ {
		go runWorker(workerCtx, i, repo, controller, envCfg.AssignPollInterval)
	}
	log.Printf("started %d assign workers", envCfg.AssignWorkerCount)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runtimeErr error
	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down", sig)
	case err := <-serverErrCh:
		runtimeErr = err
		log.Printf("admin API server error: %v, shutting down", err)
	}

	close(stopCh)
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("admin API shutdown error: %v", err)
	}

	if runtimeErr != nil {
		fatalf("runtime server error: %v", runtimeErr)
	}
	log.Println("gridassignd stopped")
}

// runtimeConfigSource adapts an atomic.Pointer[config.RuntimeConfig] to
// assigner.ConfigSource.
type runtimeConfigSource struct {
	live *atomic.Pointer[config.RuntimeConfig]
}

func (r *runtimeConfigSource) Current() *config.RuntimeConfig {
	return r.live.Load()
}

func loadRuntimeConfig(repo *state.StateRepo) (*atomic.Pointer[config.RuntimeConfig], *atomic.Int64) {
	live := &atomic.Pointer[config.RuntimeConfig]{}
	version := &atomic.Int64{}

	cfg, ver, err := repo.GetRuntimeConfig()
	if err != nil {
		log.Printf("WARNING: failed to load persisted runtime config: %v (using spec defaults)", err)
		cfg = nil
	}
	if cfg == nil {
		cfg = config.NewDefaultRuntimeConfig()
		ver = 0
	}
	if diffs := config.DiffFromDefault(cfg); len(diffs) > 0 {
		for _, d := range diffs {
			log.Printf("WARNING: runtime config override: %s", d)
		}
	}
	live.Store(cfg)
	version.Store(int64(ver))
	return live, version
}

// runWorker drains unassigned claim rows with a decodable task payload and
// runs them through the Assigner Controller (SPEC_FULL.md §5).
func runWorker(ctx context.Context, id int, repo *state.StateRepo, controller *assigner.Controller, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		claims, err := repo.ListPendingClaims(ctx, 32)
		if err != nil {
			log.Printf("[worker %d] list pending claims: %v", id, err)
			continue
		}
		for _, claim := range claims {
			payload, err := taskpayload.Unmarshal(claim.PayloadJSON)
			if err != nil {
				log.Printf("[worker %d] task %d: bad payload: %v", id, claim.TaskID, err)
				continue
			}
			cloud, err := controller.Assign(ctx, payload.Task, payload.Metadata)
			if err != nil {
				log.Printf("[worker %d] task %d: assign failed: %v", id, claim.TaskID, err)
				continue
			}
			if cloud != "" {
				log.Printf("[worker %d] task %d assigned to %s", id, claim.TaskID, cloud)
			}
		}
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}
