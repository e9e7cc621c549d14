package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zero-finance/treasury-engine/internal/metrics"
	"github.com/zero-finance/treasury-engine/pkg/allocation"
	apperrors "github.com/zero-finance/treasury-engine/pkg/app/errors"
	"github.com/zero-finance/treasury-engine/pkg/chains"
	"github.com/zero-finance/treasury-engine/pkg/config"
	"github.com/zero-finance/treasury-engine/pkg/events"
	"github.com/zero-finance/treasury-engine/pkg/executor"
	"github.com/zero-finance/treasury-engine/pkg/oracle"
	"github.com/zero-finance/treasury-engine/pkg/policy"
	"github.com/zero-finance/treasury-engine/pkg/safes"
)

// ErrRunInProgress is returned when a reconciliation run is already in flight
// for the target safe. The trigger is rejected, not queued: two runs racing
// against the same stale balance snapshot would build conflicting batches.
var ErrRunInProgress = errors.New("reconciliation already in progress for safe")

// Caller executes an allocation plan as one atomic Safe transaction.
type Caller interface {
	Execute(ctx context.Context, safe common.Address, chainID int64, instructions []allocation.Instruction) (*executor.Result, error)
}

// BalanceReader is the subset of the balance oracle the runner needs.
type BalanceReader interface {
	ReadBalances(ctx context.Context, targets []oracle.Target) []oracle.Balance
	ReadBalance(ctx context.Context, target oracle.Target) (*big.Int, error)
}

// Runner drives reconciliation runs and the periodic scheduler.
type Runner struct {
	registry  *chains.Registry
	safeStore safes.Store
	policies  policy.Store
	balances  BalanceReader
	caller    Caller
	runs      Store
	cfg       config.ReconciliationConfig
	dust      *big.Int
	bus       *events.Bus
	logger    *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRunner creates a reconciliation runner.
func NewRunner(
	registry *chains.Registry,
	safeStore safes.Store,
	policies policy.Store,
	balances BalanceReader,
	caller Caller,
	runs Store,
	cfg config.ReconciliationConfig,
	allocCfg config.AllocationConfig,
	bus *events.Bus,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		registry:  registry,
		safeStore: safeStore,
		policies:  policies,
		balances:  balances,
		caller:    caller,
		runs:      runs,
		cfg:       cfg,
		dust:      big.NewInt(allocCfg.DustThreshold),
		bus:       bus,
		logger:    logger,
		inFlight:  make(map[string]struct{}),
		stopCh:    make(chan struct{}),
	}
}

func runKey(primary common.Address, chainID int64) string {
	return primary.Hex() + "/" + strconv.FormatInt(chainID, 10)
}

func (r *Runner) tryLock(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.inFlight[key]; held {
		return false
	}
	r.inFlight[key] = struct{}{}
	return true
}

func (r *Runner) unlock(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, key)
}

// Trigger starts one reconciliation run for the given primary safe record.
// The returned run is terminal; failures during the run are recorded on it
// rather than returned as an error. Errors are returned only when no run
// could be started at all.
func (r *Runner) Trigger(ctx context.Context, safeID uuid.UUID, trigger Trigger) (*Run, error) {
	safe, err := r.safeStore.GetSafe(ctx, safes.WithID(safeID.String()))
	if err != nil {
		return nil, err
	}
	if safe.Category != safes.CategoryPrimary {
		return nil, apperrors.BadRequestError(nil, "reconciliation targets a primary safe")
	}

	key := runKey(safe.Address, safe.ChainID)
	if !r.tryLock(key) {
		return nil, fmt.Errorf("%w: %s on chain %d", ErrRunInProgress, safe.Address.Hex(), safe.ChainID)
	}
	defer r.unlock(key)

	run := &Run{
		ID:             uuid.New(),
		SafeID:         safe.ID,
		PrimaryAddress: safe.Address.Hex(),
		ChainID:        safe.ChainID,
		Trigger:        trigger,
		State:          StateReading,
		StartedAt:      time.Now().UTC(),
	}
	if err := r.runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	r.publish(events.TypeReconciliationStarted, run)

	started := time.Now()
	r.reconcile(ctx, run, safe)
	metrics.ReconciliationDuration.Observe(time.Since(started).Seconds())
	metrics.ReconciliationRunsTotal.WithLabelValues(outcomeLabel(run)).Inc()
	r.publish(events.TypeReconciliationDone, run)

	return run, nil
}

func outcomeLabel(run *Run) string {
	if run.State == StateCompleted && run.PlannedTransfers == 0 {
		return "no_op"
	}
	return string(run.State)
}

// reconcile walks the run through reading -> diffing -> executing and leaves
// it in a terminal state.
func (r *Runner) reconcile(ctx context.Context, run *Run, safe *safes.Safe) {
	chain, err := r.registry.Resolve(safe.ChainID)
	if err != nil {
		r.fail(ctx, run, err)
		return
	}

	pol, err := r.policies.GetActivePolicy(ctx, safe.Address.Hex())
	if err != nil {
		r.fail(ctx, run, fmt.Errorf("no active policy: %w", err))
		return
	}

	states, err := r.categoryStates(ctx, safe, pol)
	if err != nil {
		r.fail(ctx, run, err)
		return
	}

	// One read per target; a failed read aborts the run rather than diffing
	// against a partial snapshot.
	targets := []oracle.Target{{ChainID: safe.ChainID, Account: safe.Address}}
	order := make([]safes.Category, 0, len(states))
	for _, category := range safes.AllocationCategories {
		state, ok := states[category]
		if !ok {
			continue
		}
		targets = append(targets, oracle.Target{ChainID: safe.ChainID, Account: state.Address})
		order = append(order, category)
	}

	balances := r.balances.ReadBalances(ctx, targets)
	for _, balance := range balances {
		if balance.Err != nil {
			r.fail(ctx, run, fmt.Errorf("balance read failed for %s: %w", balance.Target.Account.Hex(), balance.Err))
			return
		}
	}
	primaryBalance := balances[0].Amount
	for i, category := range order {
		state := states[category]
		state.Balance = balances[i+1].Amount
		states[category] = state
	}

	r.advance(ctx, run, StateDiffing)

	plan, err := allocation.Build(allocation.Input{
		ChainID:        safe.ChainID,
		Asset:          chain.USDCAddress,
		Policy:         pol,
		PrimaryAddress: safe.Address,
		PrimaryBalance: primaryBalance,
		Categories:     states,
		DustThreshold:  r.dust,
	})
	if err != nil {
		r.fail(ctx, run, err)
		return
	}

	run.PlannedTransfers = len(plan.Instructions)
	run.Shortfalls = len(plan.Shortfalls)
	for _, shortfall := range plan.Shortfalls {
		r.logger.Warn("Category cannot be funded",
			zap.String("run_id", run.ID.String()),
			zap.String("category", string(shortfall.Category)),
			zap.String("needed", shortfall.Needed.String()),
			zap.String("have", shortfall.Have.String()))
	}
	for _, inst := range plan.Instructions {
		metrics.AllocationTransfersPlanned.WithLabelValues(string(inst.Category)).Inc()
	}

	if plan.Empty() {
		r.finish(ctx, run, StateCompleted, nil, nil)
		r.logger.Info("No allocation needed",
			zap.String("run_id", run.ID.String()),
			zap.String("primary", safe.Address.Hex()),
			zap.Int64("chain_id", safe.ChainID))
		return
	}

	r.advance(ctx, run, StateExecuting)

	result, err := r.caller.Execute(ctx, safe.Address, safe.ChainID, plan.Instructions)
	switch {
	case err == nil:
		hash := result.TxHash.Hex()
		r.finish(ctx, run, StateCompleted, &hash, nil)
		r.logger.Info("Reconciliation run completed",
			zap.String("run_id", run.ID.String()),
			zap.Int("transfers", run.PlannedTransfers),
			zap.String("tx_hash", hash))
		r.confirmBalances(ctx, run, safe)

	case errors.Is(err, executor.ErrConfirmationTimeout):
		var hash *string
		if result != nil {
			h := result.TxHash.Hex()
			hash = &h
		}
		message := err.Error()
		r.finish(ctx, run, StateTimeout, hash, &message)
		r.logger.Warn("Reconciliation run outcome unknown, next run re-reads balances",
			zap.String("run_id", run.ID.String()),
			zap.Error(err))

	default:
		var hash *string
		if result != nil {
			h := result.TxHash.Hex()
			hash = &h
		}
		message := err.Error()
		r.finish(ctx, run, StateFailed, hash, &message)
		r.logger.Error("Reconciliation run failed",
			zap.String("run_id", run.ID.String()),
			zap.Error(err))
	}
}

// categoryStates resolves the deployed category safes for the primary. Every
// category the policy allocates to must have a deployed safe.
func (r *Runner) categoryStates(ctx context.Context, safe *safes.Safe, pol *policy.Policy) (map[safes.Category]allocation.CategoryState, error) {
	records, err := r.safeStore.ListSafes(ctx,
		safes.WithPrimaryAddress(safe.Address.Hex()),
		safes.WithChainID(safe.ChainID))
	if err != nil {
		return nil, err
	}

	states := make(map[safes.Category]allocation.CategoryState)
	for _, record := range records {
		if record.Category == safes.CategoryPrimary || record.Status != safes.DeploymentDeployed {
			continue
		}
		states[record.Category] = allocation.CategoryState{Address: record.Address}
	}

	for _, category := range safes.AllocationCategories {
		if pol.Percentage(category) <= 0 {
			continue
		}
		if _, ok := states[category]; !ok {
			return nil, fmt.Errorf("no deployed %s safe for %s on chain %d", category, safe.Address.Hex(), safe.ChainID)
		}
	}
	return states, nil
}

// confirmBalances re-reads the primary after a confirmed execution. The next
// scheduled run corrects residual drift; this read only records it.
func (r *Runner) confirmBalances(ctx context.Context, run *Run, safe *safes.Safe) {
	balance, err := r.balances.ReadBalance(ctx, oracle.Target{ChainID: safe.ChainID, Account: safe.Address})
	if err != nil {
		r.logger.Warn("Post-execution balance read failed",
			zap.String("run_id", run.ID.String()),
			zap.Error(err))
		return
	}
	r.logger.Info("Post-execution primary balance",
		zap.String("run_id", run.ID.String()),
		zap.String("balance", balance.String()))
}

func (r *Runner) advance(ctx context.Context, run *Run, state State) {
	run.State = state
	if err := r.runs.UpdateRun(ctx, run); err != nil {
		r.logger.Warn("Failed to persist run state",
			zap.String("run_id", run.ID.String()),
			zap.String("state", string(state)),
			zap.Error(err))
	}
}

func (r *Runner) fail(ctx context.Context, run *Run, cause error) {
	message := cause.Error()
	r.finish(ctx, run, StateFailed, nil, &message)
	r.logger.Error("Reconciliation run failed",
		zap.String("run_id", run.ID.String()),
		zap.String("primary", run.PrimaryAddress),
		zap.Error(cause))
}

func (r *Runner) finish(ctx context.Context, run *Run, state State, txHash, errorMessage *string) {
	now := time.Now().UTC()
	run.State = state
	run.TxHash = txHash
	run.ErrorMessage = errorMessage
	run.FinishedAt = &now
	if err := r.runs.UpdateRun(ctx, run); err != nil {
		r.logger.Error("Failed to persist terminal run state",
			zap.String("run_id", run.ID.String()),
			zap.Error(err))
	}
}

func (r *Runner) publish(eventType events.Type, run *Run) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventType, map[string]string{
		"run_id":   run.ID.String(),
		"safe_id":  run.SafeID.String(),
		"primary":  run.PrimaryAddress,
		"chain_id": strconv.FormatInt(run.ChainID, 10),
		"state":    string(run.State),
		"trigger":  string(run.Trigger),
	})
}

// ManualLine is one transfer in a manual allocation batch.
type ManualLine struct {
	Category safes.Category
	Amount   *big.Int
}

// ManualAllocate executes a one-off transfer batch from the primary safe to
// category safes with operator-chosen amounts. The active policy is neither
// consulted nor modified; the next reconciliation run converges from whatever
// balances result.
func (r *Runner) ManualAllocate(ctx context.Context, safeID uuid.UUID, lines []ManualLine) (*executor.Result, error) {
	if len(lines) == 0 {
		return nil, apperrors.BadRequestError(nil, "no allocation lines")
	}

	safe, err := r.safeStore.GetSafe(ctx, safes.WithID(safeID.String()))
	if err != nil {
		return nil, err
	}
	if safe.Category != safes.CategoryPrimary {
		return nil, apperrors.BadRequestError(nil, "manual allocation targets a primary safe")
	}
	chain, err := r.registry.Resolve(safe.ChainID)
	if err != nil {
		return nil, err
	}

	total := big.NewInt(0)
	for _, line := range lines {
		if line.Category == safes.CategoryPrimary || !line.Category.Valid() {
			return nil, apperrors.BadRequestError(nil, fmt.Sprintf("invalid category %q", line.Category))
		}
		if line.Amount == nil || line.Amount.Sign() <= 0 {
			return nil, apperrors.BadRequestError(nil, "amounts must be positive")
		}
		total.Add(total, line.Amount)
	}

	balance, err := r.balances.ReadBalance(ctx, oracle.Target{ChainID: safe.ChainID, Account: safe.Address})
	if err != nil {
		return nil, apperrors.DependencyError(err, "failed to read primary balance")
	}
	if total.Cmp(balance) > 0 {
		return nil, apperrors.BadRequestError(nil,
			fmt.Sprintf("batch total %s exceeds primary balance %s", total, balance))
	}

	instructions := make([]allocation.Instruction, 0, len(lines))
	for _, line := range lines {
		record, err := r.safeStore.GetSafe(ctx,
			safes.WithPrimaryAddress(safe.Address.Hex()),
			safes.WithChainID(safe.ChainID),
			safes.WithCategory(line.Category))
		if err != nil {
			if errors.Is(err, safes.ErrSafeNotFound) {
				return nil, apperrors.BadRequestError(err, fmt.Sprintf("no %s safe registered", line.Category))
			}
			return nil, err
		}
		if record.Status != safes.DeploymentDeployed {
			return nil, apperrors.BadRequestError(nil, fmt.Sprintf("%s safe is not deployed", line.Category))
		}
		instructions = append(instructions, allocation.Instruction{
			Category:    line.Category,
			Source:      safe.Address,
			Destination: record.Address,
			Asset:       chain.USDCAddress,
			Amount:      line.Amount,
			ChainID:     safe.ChainID,
		})
	}

	result, err := r.caller.Execute(ctx, safe.Address, safe.ChainID, instructions)
	if err != nil {
		if errors.Is(err, executor.ErrExecutionInFlight) {
			return nil, apperrors.LockedError(err, "an execution is already in flight for this safe")
		}
		if r.bus != nil {
			r.bus.Publish(events.TypeExecutionFailed, map[string]string{
				"safe_id": safe.ID.String(),
				"primary": safe.Address.Hex(),
				"error":   err.Error(),
			})
		}
		return result, err
	}

	if r.bus != nil {
		r.bus.Publish(events.TypeExecutionCompleted, map[string]string{
			"safe_id": safe.ID.String(),
			"primary": safe.Address.Hex(),
			"tx_hash": result.TxHash.Hex(),
		})
	}
	r.logger.Info("Manual allocation executed",
		zap.String("primary", safe.Address.Hex()),
		zap.Int64("chain_id", safe.ChainID),
		zap.Int("lines", len(lines)),
		zap.String("tx_hash", result.TxHash.Hex()))

	return result, nil
}

// Start launches the periodic scheduler over all registered primary safes.
func (r *Runner) Start() {
	interval := r.cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.logger.Info("Reconciliation scheduler started", zap.Duration("interval", interval))
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.runScheduled()
			}
		}
	}()
}

// Stop terminates the scheduler and waits for it to exit. In-flight runs
// complete; only future ticks are cancelled.
func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("Reconciliation scheduler stopped")
}

func (r *Runner) runScheduled() {
	listCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	primaries, err := r.safeStore.ListSafes(listCtx, safes.WithCategory(safes.CategoryPrimary))
	cancel()
	if err != nil {
		r.logger.Error("Failed to list primary safes", zap.Error(err))
		return
	}

	timeout := r.cfg.RunTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	for _, primary := range primaries {
		runCtx, cancel := context.WithTimeout(context.Background(), timeout)
		// Safes without a policy are onboarding; don't record a failed run
		// for them every tick.
		if _, err := r.policies.GetActivePolicy(runCtx, primary.Address.Hex()); err != nil {
			cancel()
			if !errors.Is(err, policy.ErrPolicyNotFound) {
				r.logger.Error("Failed to load policy for scheduled run",
					zap.String("safe_id", primary.ID.String()),
					zap.Error(err))
			}
			continue
		}
		_, err := r.Trigger(runCtx, primary.ID, TriggerScheduled)
		cancel()
		if err != nil {
			if errors.Is(err, ErrRunInProgress) {
				continue
			}
			r.logger.Error("Scheduled reconciliation failed to start",
				zap.String("safe_id", primary.ID.String()),
				zap.Error(err))
		}
	}
}
