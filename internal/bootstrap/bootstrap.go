package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"

	"github.com/kirillkom/civic-records/internal/config"
	"github.com/kirillkom/civic-records/internal/core/ports"
	"github.com/kirillkom/civic-records/internal/core/usecase"
	"github.com/kirillkom/civic-records/internal/infrastructure/catalog"
	"github.com/kirillkom/civic-records/internal/infrastructure/fingerprint"
	"github.com/kirillkom/civic-records/internal/infrastructure/identity"
	"github.com/kirillkom/civic-records/internal/infrastructure/ledger/httpledger"
	"github.com/kirillkom/civic-records/internal/infrastructure/ledger/simulator"
	"github.com/kirillkom/civic-records/internal/infrastructure/queue/nats"
	"github.com/kirillkom/civic-records/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/civic-records/internal/infrastructure/repository/memory"
	"github.com/kirillkom/civic-records/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/civic-records/internal/infrastructure/resilience"
	redisseq "github.com/kirillkom/civic-records/internal/infrastructure/sequence/redis"
)

type Options struct {
	Clock    clock.Clock
	Observer ports.LifecycleObserver
}

type App struct {
	Config   config.Config
	Location *time.Location
	Clock    clock.Clock

	Catalog   *catalog.Registry
	Lifecycle *usecase.LifecycleEngine
	Requests  *usecase.RequestQueries
	Documents *usecase.DocumentUseCase
	Anchorer  *usecase.AnchorUseCase
	Reports   *usecase.ReportUseCase

	// Queue is nil when NATS is not configured; documents are then anchored
	// in-process right after issuance.
	Queue  *nats.Queue
	Outbox ports.AnchorOutbox

	notifier interface{ Wait() }
	closers  []func()
}

type storage struct {
	requests  ports.RequestRepository
	documents ports.DocumentRepository
	uow       ports.UnitOfWork
	sequences ports.SequenceAllocator
	outbox    ports.AnchorOutbox
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	app := &App{Config: cfg, Location: loc, Clock: clk}

	registry, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load document catalog: %w", err)
	}
	app.Catalog = registry

	store, err := app.openStorage(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	hasher, err := fingerprint.New()
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init fingerprinter: %w", err)
	}

	app.Outbox = store.outbox
	app.Anchorer = usecase.NewAnchorUseCase(store.documents, newLedger(cfg, clk), store.outbox, hasher, clk, usecase.AnchorConfig{
		Location:        loc,
		RetryBackoff:    cfg.OutboxRetryBackoff,
		MaxRetryBackoff: cfg.OutboxMaxBackoff,
		Observer:        opts.Observer,
	})

	var notifier ports.IssuanceNotifier
	if cfg.NATSURL != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)
		async := usecase.NewAsyncNotifier(queue, store.outbox, clk, cfg.LedgerTimeout())
		notifier, app.notifier = async, async
	} else {
		direct := usecase.NewDirectNotifier(app.Anchorer, cfg.LedgerTimeout())
		notifier, app.notifier = direct, direct
	}

	// The sweep takes over a queued anchor after one retry backoff.
	synth := usecase.NewSynthesizer(identity.NewStaticDirectory(cfg.DefaultIssuerID), hasher, usecase.SynthesisConfig{
		Location:    loc,
		AnchorDelay: cfg.OutboxRetryBackoff,
	})
	app.Lifecycle = usecase.NewLifecycleEngine(registry, store.requests, store.uow, store.sequences, synth, notifier, clk, usecase.LifecycleConfig{
		ChairmanActsAsOfficer: cfg.ChairmanActsAsOfficer,
		Location:              loc,
		Observer:              opts.Observer,
	})
	app.Requests = usecase.NewRequestQueries(store.requests)
	app.Documents = usecase.NewDocumentUseCase(registry, store.documents, store.uow, hasher, notifier, clk, usecase.DocumentConfig{
		ChairmanActsAsOfficer: cfg.ChairmanActsAsOfficer,
		Location:              loc,
		AnchorDelay:           cfg.OutboxRetryBackoff,
		Observer:              opts.Observer,
	})
	app.Reports = usecase.NewReportUseCase(store.requests, xlsx.NewWriter(loc), loc)

	slog.Info("app_initialized",
		"storage", cfg.StorageBackend,
		"sequence", cfg.SequenceBackend,
		"ledger", cfg.LedgerMode,
		"queue", app.Queue != nil,
		"document_types", len(registry.List()),
		"timezone", loc.String(),
	)
	return app, nil
}

func (a *App) openStorage(ctx context.Context, cfg config.Config) (storage, error) {
	var s storage
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return s, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return s, fmt.Errorf("ensure schema: %w", err)
		}
		s = postgresStorage(db)
	default:
		mem := memory.NewStore(a.Clock)
		s = storage{
			requests:  mem.Requests(),
			documents: mem.Documents(),
			uow:       mem,
			sequences: memory.NewSequenceAllocator(),
			outbox:    mem.Outbox(),
		}
	}

	if cfg.SequenceBackend == config.SequenceRedis {
		client, err := redisseq.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return s, fmt.Errorf("init redis sequences: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		s.sequences = redisseq.NewAllocator(client)
	}
	return s, nil
}

func postgresStorage(db *sql.DB) storage {
	return storage{
		requests:  postgres.NewRequestRepository(db),
		documents: postgres.NewDocumentRepository(db),
		uow:       postgres.NewUnitOfWork(db, 0),
		sequences: postgres.NewSequenceAllocator(db),
		outbox:    postgres.NewOutbox(db, 0),
	}
}

func newLedger(cfg config.Config, clk clock.Clock) ports.LedgerAdapter {
	if cfg.LedgerMode == config.LedgerHTTP {
		policy := resilience.DefaultConfig()
		policy.AttemptTimeout = cfg.LedgerTimeout()
		return httpledger.New(cfg.LedgerURL, httpledger.Options{
			Token:    cfg.LedgerToken,
			Executor: resilience.NewExecutor(policy),
		})
	}
	return simulator.New(clk)
}

// Close waits for in-flight ledger dispatches, then releases connections
// in reverse order of opening.
func (a *App) Close() {
	if a.notifier != nil {
		a.notifier.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
