package processor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/cuemby/wal-cas/internal/errs"
	"github.com/cuemby/wal-cas/internal/health"
	"github.com/cuemby/wal-cas/internal/obslog"
	"github.com/cuemby/wal-cas/internal/types"
	"github.com/cuemby/wal-cas/internal/wal"
)

// Dispatcher sends one Operation to its backend handler and reports the
// outcome. Implementations MUST NOT panic; any error is recorded on the
// Operation as a dispatch failure, since a handler exception is treated
// as equivalent to a failure result.
type Dispatcher interface {
	Dispatch(ctx context.Context, op *types.Operation) (*types.Result, error)
}

// Config tunes the Processor's loop.
type Config struct {
	Interval        time.Duration // process_interval
	MaxRetries      int
	RetryDelay      time.Duration // linear backoff baseline
	DispatchTimeout time.Duration // per-operation deadline
	PoolSize        int           // bounded dispatch concurrency; <=1 means single-threaded
	BackendRPS      float64       // per-backend dispatch rate limit; <=0 disables throttling
}

// DefaultConfig returns conservative Processor tunables.
func DefaultConfig() Config {
	return Config{
		Interval:        2 * time.Second,
		MaxRetries:      3,
		RetryDelay:      5 * time.Second,
		DispatchTimeout: 30 * time.Second,
		PoolSize:        4,
		BackendRPS:      0,
	}
}

// Processor is the single long-lived worker loop driving dispatch.
type Processor struct {
	store      *wal.Store
	monitor    *health.Monitor
	dispatcher Dispatcher
	cfg        Config
	logger     zerolog.Logger

	limitersMu sync.Mutex
	limiters   map[types.BackendKind]*rate.Limiter

	wakeCh chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeMu sync.Mutex
	closed  bool
}

// New builds a Processor. It does not start the loop; call Start.
func New(store *wal.Store, monitor *health.Monitor, dispatcher Dispatcher, cfg Config) *Processor {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	return &Processor{
		store:      store,
		monitor:    monitor,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     obslog.WithComponent("wal-processor"),
		limiters:   make(map[types.BackendKind]*rate.Limiter),
		wakeCh:     make(chan struct{}, 1),
	}
}

// Start spawns the worker loop.
func (p *Processor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go p.run(ctx)
}

// Wake signals the loop to run a cycle immediately instead of waiting for
// the next tick.
func (p *Processor) Wake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *Processor) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		case <-p.wakeCh:
			p.cycle(ctx)
		}
	}
}

// cycle runs one pass of the scheduling loop: list PENDING operations
// whose backend is online, then drain them.
func (p *Processor) cycle(ctx context.Context) {
	pending, err := p.store.GetOperationsByStatus(types.StatusPending, 0)
	if err != nil {
		p.logger.Error().Err(err).Msg("listing pending operations failed")
		return
	}
	retrying, err := p.store.GetOperationsByStatus(types.StatusRetrying, 0)
	if err != nil {
		p.logger.Error().Err(err).Msg("listing retrying operations failed")
		return
	}

	now := time.Now()
	var ready []*types.Operation
	for _, op := range pending {
		if p.monitor == nil || p.monitor.IsBackendAvailable(op.Backend) {
			ready = append(ready, op)
		}
	}
	for _, op := range retrying {
		if op.NextRetryAt != nil && op.NextRetryAt.After(now) {
			continue
		}
		if p.monitor == nil || p.monitor.IsBackendAvailable(op.Backend) {
			ready = append(ready, op)
		}
	}
	if len(ready) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.PoolSize)
	for _, op := range ready {
		op := op
		g.Go(func() error {
			p.dispatchOne(gctx, op)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Processor) limiterFor(backend types.BackendKind) *rate.Limiter {
	if p.cfg.BackendRPS <= 0 {
		return nil
	}
	p.limitersMu.Lock()
	defer p.limitersMu.Unlock()
	l, ok := p.limiters[backend]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.cfg.BackendRPS), 1)
		p.limiters[backend] = l
	}
	return l
}

// dispatchOne carries one operation through PROCESSING to its terminal
// or retry outcome.
func (p *Processor) dispatchOne(ctx context.Context, op *types.Operation) {
	if lim := p.limiterFor(op.Backend); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return
		}
	}

	err := p.store.UpdateOperationStatus(op.OperationID, types.StatusProcessing, nil)
	if err != nil {
		p.logger.Warn().Str("operation_id", op.OperationID).Err(err).Msg("could not move to PROCESSING, skipping cycle")
		return
	}

	dctx := ctx
	var dcancel context.CancelFunc
	if p.cfg.DispatchTimeout > 0 {
		dctx, dcancel = context.WithTimeout(ctx, p.cfg.DispatchTimeout)
		defer dcancel()
	}

	result, dispatchErr := p.safeDispatch(dctx, op)
	if dispatchErr != nil && dctx.Err() == context.DeadlineExceeded {
		dispatchErr = errs.New(errs.Timeout, dispatchErr)
	}

	if dispatchErr == nil {
		err := p.store.UpdateOperationStatus(op.OperationID, types.StatusCompleted, func(o *types.Operation) {
			o.Result = result
			o.Error = ""
			o.ErrorType = ""
		})
		if err != nil {
			p.logger.Error().Str("operation_id", op.OperationID).Err(err).Msg("recording success failed")
		}
		return
	}

	p.logger.Warn().Str("operation_id", op.OperationID).Str("backend", string(op.Backend)).Err(dispatchErr).Msg("dispatch failed")

	maxRetries := op.MaxRetries
	if maxRetries <= 0 {
		maxRetries = p.cfg.MaxRetries
	}

	if op.RetryCount < maxRetries {
		delay := p.cfg.RetryDelay
		err := p.store.UpdateOperationStatus(op.OperationID, types.StatusRetrying, func(o *types.Operation) {
			o.RetryCount++
			o.Error = dispatchErr.Error()
			o.ErrorType = string(errs.KindOf(dispatchErr))
			next := time.Now().Add(delay)
			o.NextRetryAt = &next
		})
		if err != nil {
			p.logger.Error().Str("operation_id", op.OperationID).Err(err).Msg("recording retry failed")
		}
		return
	}

	err = p.store.UpdateOperationStatus(op.OperationID, types.StatusFailed, func(o *types.Operation) {
		o.Error = dispatchErr.Error()
		o.ErrorType = string(errs.KindOf(dispatchErr))
	})
	if err != nil {
		p.logger.Error().Str("operation_id", op.OperationID).Err(err).Msg("recording failure failed")
	}
}

// safeDispatch recovers from a panicking Dispatcher so a single bad
// handler cannot take down the worker loop.
func (p *Processor) safeDispatch(ctx context.Context, op *types.Operation) (res *types.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Newf(errs.ExecutionError, "dispatcher panic: %v", r)
		}
	}()
	return p.dispatcher.Dispatch(ctx, op)
}

// CancelOperation cancels an operation: valid from
// PENDING, PROCESSING, or RETRYING; the Operation ends FAILED with a
// cancellation error kind. If a concurrent handler has already moved the
// Operation to a terminal state, cancellation fails and the Operation
// keeps its natural outcome.
func (p *Processor) CancelOperation(id string) error {
	op, err := p.store.GetOperation(id)
	if err != nil {
		return err
	}
	if op.Status.Terminal() {
		if op.ErrorType == string(errs.Cancelled) {
			return nil // already cancelled; repeat cancellation is a no-op
		}
		return errs.Newf(errs.InvalidArgument, "operation %s already %s", id, op.Status)
	}
	return p.store.UpdateOperationStatus(id, types.StatusFailed, func(o *types.Operation) {
		o.Error = "operation cancelled"
		o.ErrorType = string(errs.Cancelled)
	})
}

// Close stops the worker loop. Close is idempotent.
func (p *Processor) Close() {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}
