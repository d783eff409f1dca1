package staking

import (
	"context"
	"encoding/binary"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stakeledger/core/events"
	"stakeledger/crypto"
	nativecommon "stakeledger/native/common"
	"stakeledger/observability"
)

// Derivation seeds for pool and vault addresses.
var (
	poolSeed           = []byte("pool")
	principalVaultSeed = []byte("principal_vault")
	rewardVaultSeed    = []byte("reward_vault")
)

// Engine applies pool and stake transitions. Every mutating call serialises on
// the target pool, settles the accumulator, moves funds through custody and
// commits the records in one store transaction.
type Engine struct {
	store      Store
	custody    Custody
	authorizer Authorizer
	limits     Limits
	pauses     nativecommon.PauseView
	emitter    events.Emitter
	logger     *slog.Logger
	nowFn      func() int64
	locks      *poolLocks
	metrics    *observability.StakingMetrics
	tracer     trace.Tracer
}

// NewEngine constructs an engine over the supplied persistence and custody
// backends using the module default limits.
func NewEngine(store Store, custody Custody) *Engine {
	return &Engine{
		store:      store,
		custody:    custody,
		authorizer: AllowAll{},
		limits:     DefaultLimits(),
		emitter:    events.NoopEmitter{},
		logger:     slog.Default(),
		nowFn:      func() int64 { return time.Now().Unix() },
		locks:      newPoolLocks(),
		metrics:    observability.Staking(),
		tracer:     otel.Tracer("stakeledger/staking"),
	}
}

// SetAuthorizer configures who may create pools. Nil restores AllowAll.
func (e *Engine) SetAuthorizer(a Authorizer) {
	if e == nil {
		return
	}
	if a == nil {
		a = AllowAll{}
	}
	e.authorizer = a
}

// SetLimits replaces the engine bounds after validating them.
func (e *Engine) SetLimits(l Limits) error {
	if e == nil {
		return ErrStateNotConfigured
	}
	if err := l.Validate(); err != nil {
		return err
	}
	e.limits = l
	return nil
}

// Limits returns the active bounds.
func (e *Engine) Limits() Limits {
	if e == nil {
		return DefaultLimits()
	}
	return e.limits
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter wires the event sink used after successful commits.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// SetNowFunc overrides the clock used to timestamp settlements, primarily in
// tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil || now == nil {
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 { return e.nowFn() }

func (e *Engine) ready() error {
	if e == nil || e.store == nil {
		return ErrStateNotConfigured
	}
	if e.custody == nil {
		return ErrCustodyNotConfigured
	}
	return nil
}

func (e *Engine) guard() error {
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil && evt != nil {
		e.emitter.Emit(evt)
	}
}

type operation struct {
	engine *Engine
	name   string
	span   trace.Span
	start  time.Time
}

func (e *Engine) startOp(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *operation) {
	ctx, span := e.tracer.Start(ctx, "staking."+name, trace.WithAttributes(attrs...))
	return ctx, &operation{engine: e, name: name, span: span, start: time.Now()}
}

func (o *operation) end(err error) {
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
		if code := CodeOf(err); code != 0 {
			o.span.SetAttributes(attribute.Int("staking.error_code", int(code)))
		}
	} else {
		o.span.SetStatus(codes.Ok, "")
	}
	o.engine.metrics.Observe(o.name, time.Since(o.start), err)
	o.span.End()
}

// DerivePoolID returns the address of the nonce-th pool opened by authority.
func DerivePoolID(authority crypto.Address, nonce uint64) crypto.Address {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return crypto.DeriveAddress(crypto.PoolPrefix, poolSeed, authority.Bytes(), buf[:])
}

// DeriveVaults returns the principal and reward vault addresses of a pool.
func DeriveVaults(poolID crypto.Address) (principal, reward crypto.Address) {
	principal = crypto.DeriveAddress(crypto.VaultPrefix, principalVaultSeed, poolID.Bytes())
	reward = crypto.DeriveAddress(crypto.VaultPrefix, rewardVaultSeed, poolID.Bytes())
	return principal, reward
}

// CreatePool opens a new pool owned by params.Authority. The pool starts
// active with an empty accumulator settled at the current time.
func (e *Engine) CreatePool(ctx context.Context, params PoolParams) (pool *Pool, err error) {
	ctx, op := e.startOp(ctx, "create_pool", attribute.String("staking.authority", params.Authority.String()))
	defer func() { op.end(err) }()

	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	params = params.normalized()
	if params.Authority.IsZero() {
		return nil, wrapf(ErrInvalidAddress, "authority required")
	}
	if params.PrincipalUnit == "" || params.RewardUnit == "" {
		return nil, wrapf(ErrInvalidParameter, "principal and reward units required")
	}
	if err := e.limits.checkPool(params); err != nil {
		return nil, err
	}
	if err := e.authorizer.AuthorizeCreatePool(ctx, params.Authority); err != nil {
		return nil, err
	}

	unlock := e.locks.lock("authority/" + params.Authority.String())
	defer unlock()

	now := e.now()
	err = e.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		nonce, err := tx.CountPoolsByAuthority(params.Authority)
		if err != nil {
			return err
		}
		id := DerivePoolID(params.Authority, nonce)
		if _, exists, err := tx.GetPool(id); err != nil {
			return err
		} else if exists {
			return wrapf(ErrPoolAlreadyExists, "%s", id)
		}
		principalVault, rewardVault := DeriveVaults(id)
		if opener, ok := e.custody.(VaultOpener); ok {
			if err := opener.OpenVault(ctx, params.PrincipalUnit, principalVault); err != nil {
				return wrapf(ErrVaultUnavailable, "principal vault: %v", err)
			}
			if err := opener.OpenVault(ctx, params.RewardUnit, rewardVault); err != nil {
				return wrapf(ErrVaultUnavailable, "reward vault: %v", err)
			}
		}
		pool = &Pool{
			ID:             id,
			Authority:      params.Authority,
			Nonce:          nonce,
			PrincipalUnit:  params.PrincipalUnit,
			RewardUnit:     params.RewardUnit,
			PrincipalVault: principalVault,
			RewardVault:    rewardVault,
			RewardRate:     params.RewardRate,
			Accumulator:    ZeroAccumulator(),
			LastSettledAt:  now,
			LockDuration:   params.LockDuration,
			Active:         true,
			CreatedAt:      now,
		}
		return tx.PutPool(pool)
	})
	if err != nil {
		return nil, err
	}
	op.span.SetAttributes(attribute.String("staking.pool", pool.ID.String()))
	e.logger.Info("staking pool created",
		"pool", pool.ID.String(),
		"principal_unit", pool.PrincipalUnit,
		"reward_unit", pool.RewardUnit,
		"reward_rate", pool.RewardRate,
		"lock_duration", pool.LockDuration)
	e.emit(events.PoolCreated{
		Pool:           pool.ID.String(),
		Authority:      pool.Authority.String(),
		PrincipalUnit:  pool.PrincipalUnit,
		RewardUnit:     pool.RewardUnit,
		PrincipalVault: pool.PrincipalVault.String(),
		RewardVault:    pool.RewardVault.String(),
		RewardRate:     pool.RewardRate,
		LockDuration:   pool.LockDuration,
		CreatedAt:      pool.CreatedAt,
	})
	return pool.Clone(), nil
}

// SetPoolActive toggles whether the pool accepts new stakes. Only the pool
// authority may call it; existing stakes keep accruing and may still be
// claimed or withdrawn while the pool is inactive.
func (e *Engine) SetPoolActive(ctx context.Context, caller, poolID crypto.Address, active bool) (err error) {
	ctx, op := e.startOp(ctx, "set_pool_active",
		attribute.String("staking.pool", poolID.String()),
		attribute.Bool("staking.active", active))
	defer func() { op.end(err) }()

	if err := e.ready(); err != nil {
		return err
	}
	unlock := e.locks.lock(poolID.String())
	defer unlock()

	now := e.now()
	changed := false
	err = e.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		pool, err := loadPool(tx, poolID)
		if err != nil {
			return err
		}
		if !pool.Authority.Equal(caller) {
			return wrapf(ErrUnauthorized, "%s is not the pool authority", caller)
		}
		if pool.Active == active {
			return nil
		}
		if err := SettlePool(pool, now); err != nil {
			return err
		}
		pool.Active = active
		changed = true
		return tx.PutPool(pool)
	})
	if err != nil {
		return err
	}
	if changed {
		e.logger.Info("staking pool status changed", "pool", poolID.String(), "active", active)
		e.emit(events.PoolStatusChanged{Pool: poolID.String(), Active: active, At: now})
	}
	return nil
}

func loadPool(tx Tx, id crypto.Address) (*Pool, error) {
	pool, ok, err := tx.GetPool(id)
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return nil, wrapf(ErrPoolNotFound, "%s", id)
	}
	if pool.Accumulator == nil {
		pool.Accumulator = ZeroAccumulator()
	}
	return pool, nil
}

func normalizeUnit(unit string) string {
	return strings.ToUpper(strings.TrimSpace(unit))
}
