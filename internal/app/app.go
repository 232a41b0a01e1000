// Package app wires the fifteen components into a single handle the CLI
// drives, grounded on the teacher's internal/controller/controller.go,
// which constructs its backend, event bus, and sub-controllers once at
// startup and hands the assembled graph to every command.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tombee/forge/pkg/agentregistry"
	"github.com/tombee/forge/pkg/approval"
	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/config"
	"github.com/tombee/forge/pkg/gc"
	"github.com/tombee/forge/pkg/ledger"
	"github.com/tombee/forge/pkg/lifecycle"
	"github.com/tombee/forge/pkg/metrics"
	"github.com/tombee/forge/pkg/resume"
	"github.com/tombee/forge/pkg/revive"
	"github.com/tombee/forge/pkg/store"
	"github.com/tombee/forge/pkg/summary"
	"github.com/tombee/forge/pkg/transport"
	"github.com/tombee/forge/pkg/workflow"
	"github.com/tombee/forge/pkg/workflowledger"
)

// App bundles every wired component. Command handlers take what they need
// directly off this struct rather than reaching into package globals.
type App struct {
	Clock     clock.Clock
	Store     store.Store
	Ledger    *ledger.Ledger
	Metrics   *metrics.Tap
	Registry  *agentregistry.Registry
	Transport transport.Transport

	Lifecycle *lifecycle.Service
	Revive    *revive.Planner
	GC        *gc.Controller
	Summary   *summary.Generator

	Workflows *workflow.Registry
	Engine    *workflow.Engine
	Approval  *approval.Controller
	Resume    *resume.Inspector

	closeStore func() error
}

// Options configures how an App is constructed.
type Options struct {
	// DatabasePath overrides config.DatabasePath(). Empty means resolve
	// from the environment. The literal value ":memory:" selects the
	// in-memory store instead of opening SQLite.
	DatabasePath string
	// RepoRoot anchors the workflow ledger and relative step workdirs.
	RepoRoot string
	// ConfigPath is an optional scheduler YAML config consulted for the
	// workflow max-parallel fallback (§4.8.1).
	ConfigPath string
}

// New constructs a fully wired App. Transport is always the in-memory Fake:
// a real daemon/process transport is an external collaborator the core
// depends on through the transport.Transport interface (§6) but does not
// implement itself.
func New(opts Options) (*App, error) {
	c := clock.New()

	dbPath := opts.DatabasePath
	if dbPath == "" {
		dbPath = config.DatabasePath()
	}

	var (
		st         store.Store
		closeStore func() error
	)
	if dbPath == ":memory:" {
		st = store.NewMemoryStore(c)
		closeStore = func() error { return nil }
	} else {
		sq, err := store.OpenSQLite(dbPath, c)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		st = sq
		closeStore = sq.Close
	}

	l := ledger.New(st.Events(), nil)
	tap := metrics.New(l, prometheus.NewRegistry())
	registry := agentregistry.New(st.Agents())
	tr := transport.NewFake(c)

	svc := lifecycle.New(tr, registry, l, tap)
	summaryGen := summary.New(c, l)
	revivePlanner := revive.New(svc, registry, l, tap, summaryGen)
	svc.SetReviver(revivePlanner)

	gcController := gc.New(c, registry, l)

	engine := workflow.New(st.WorkflowRuns(), c, l, opts.RepoRoot, opts.ConfigPath)
	ledgerWriter := workflowledger.New(opts.RepoRoot)
	engine.SetLedgerWriter(ledgerWriter)

	defs := workflow.NewRegistry()
	approvalCtrl := approval.New(st.WorkflowRuns(), defs, engine)
	resumeInspector := resume.New(st.WorkflowRuns())

	return &App{
		Clock:      c,
		Store:      st,
		Ledger:     l,
		Metrics:    tap,
		Registry:   registry,
		Transport:  tr,
		Lifecycle:  svc,
		Revive:     revivePlanner,
		GC:         gcController,
		Summary:    summaryGen,
		Workflows:  defs,
		Engine:     engine,
		Approval:   approvalCtrl,
		Resume:     resumeInspector,
		closeStore: closeStore,
	}, nil
}

// Close releases the underlying store handle.
func (a *App) Close() error {
	if a.closeStore == nil {
		return nil
	}
	return a.closeStore()
}
