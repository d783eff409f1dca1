package staking_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"stakeledger/core/events"
	"stakeledger/crypto"
	nativecommon "stakeledger/native/common"
	"stakeledger/native/staking"
)

func TestCreatePoolValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.CreatePool(ctx, staking.PoolParams{Authority: h.authority, PrincipalUnit: "stk", RewardUnit: "rwd", RewardRate: 0})
	if !errors.Is(err, staking.ErrInvalidRewardRate) || !errors.Is(err, staking.ErrInvalidParameter) {
		t.Fatalf("expected invalid reward rate, got %v", err)
	}
	_, err = h.engine.CreatePool(ctx, staking.PoolParams{Authority: h.authority, PrincipalUnit: "stk", RewardUnit: "rwd", RewardRate: fullRate + 1})
	if !errors.Is(err, staking.ErrInvalidRewardRate) {
		t.Fatalf("expected invalid reward rate above max, got %v", err)
	}
	_, err = h.engine.CreatePool(ctx, staking.PoolParams{Authority: h.authority, PrincipalUnit: "stk", RewardUnit: "rwd", RewardRate: fullRate, LockDuration: 60})
	if !errors.Is(err, staking.ErrInvalidLockDuration) || staking.CodeOf(err) != 1005 {
		t.Fatalf("expected invalid lock duration, got %v", err)
	}
	_, err = h.engine.CreatePool(ctx, staking.PoolParams{PrincipalUnit: "stk", RewardUnit: "rwd", RewardRate: fullRate})
	if !errors.Is(err, staking.ErrInvalidAddress) {
		t.Fatalf("expected missing authority to be rejected, got %v", err)
	}
}

func TestCreatePoolDerivesAddresses(t *testing.T) {
	h := newHarness(t)
	h.at(1_000)
	first := h.createPool(fullRate, 0)
	second := h.createPool(fullRate, staking.MinLockDuration)

	if !first.ID.Equal(staking.DerivePoolID(h.authority, 0)) || !second.ID.Equal(staking.DerivePoolID(h.authority, 1)) {
		t.Fatalf("pool ids not derived from authority nonce")
	}
	principalVault, rewardVault := staking.DeriveVaults(first.ID)
	if !first.PrincipalVault.Equal(principalVault) || !first.RewardVault.Equal(rewardVault) {
		t.Fatalf("vaults not derived from pool id")
	}
	if first.PrincipalVault.Prefix() != crypto.VaultPrefix {
		t.Fatalf("unexpected vault prefix %q", first.PrincipalVault.Prefix())
	}
	if !h.ledger.HasVault(principalUnit, principalVault) || !h.ledger.HasVault(rewardUnit, rewardVault) {
		t.Fatalf("vaults not opened in custody")
	}
	if first.LockDuration != staking.DefaultLockDuration {
		t.Fatalf("expected default lock duration, got %d", first.LockDuration)
	}
	if !first.Active || first.TotalStaked != 0 || !first.Accumulator.IsZero() || first.LastSettledAt != 1_000 {
		t.Fatalf("unexpected initial pool state: %+v", first)
	}
	if got := h.recorder.Filter(events.TypePoolCreated); len(got) != 2 {
		t.Fatalf("expected 2 pool created events, got %d", len(got))
	}
}

func TestCreatePoolAuthorizer(t *testing.T) {
	h := newHarness(t)
	h.engine.SetAuthorizer(staking.NewAllowList(participant(1)))
	_, err := h.engine.CreatePool(context.Background(), staking.PoolParams{
		Authority: h.authority, PrincipalUnit: "stk", RewardUnit: "rwd", RewardRate: fullRate,
	})
	if !errors.Is(err, staking.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestSingleStakerClaim(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(fullRate, staking.MinLockDuration)
	alice := participant(1)
	h.fund(principalUnit, alice, 100*units)
	h.fund(rewardUnit, pool.RewardVault, 1_000)

	h.stake(pool, alice, 100*units)
	h.at(100)
	paid, err := h.engine.Claim(context.Background(), alice, pool.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid != 100 {
		t.Fatalf("expected 100 reward units, got %d", paid)
	}
	if got := h.balance(rewardUnit, alice); got != 100 {
		t.Fatalf("alice reward balance: got %d", got)
	}
	if stake := h.position(pool.ID, alice); stake.UnclaimedRewards != 0 {
		t.Fatalf("unclaimed rewards not reset: %d", stake.UnclaimedRewards)
	}

	paid, err = h.engine.Claim(context.Background(), alice, pool.ID)
	if err != nil || paid != 0 {
		t.Fatalf("second claim at same instant: paid %d err %v", paid, err)
	}
}

func TestProportionalClaims(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(fullRate, staking.MinLockDuration)
	alice, bob := participant(1), participant(2)
	h.fund(principalUnit, alice, 100*units)
	h.fund(principalUnit, bob, 300*units)
	h.fund(rewardUnit, pool.RewardVault, 1_000)

	h.stake(pool, alice, 100*units)
	h.stake(pool, bob, 300*units)
	h.at(100)

	ctx := context.Background()
	a, err := h.engine.Claim(ctx, alice, pool.ID)
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	b, err := h.engine.Claim(ctx, bob, pool.ID)
	if err != nil {
		t.Fatalf("bob claim: %v", err)
	}
	if a != 25 || b != 75 {
		t.Fatalf("expected 25/75 split, got %d/%d", a, b)
	}
}

func TestEqualStakesAccrueEqually(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(7_777_777, staking.MinLockDuration)
	alice, bob, carol := participant(1), participant(2), participant(3)
	for _, who := range []crypto.Address{alice, bob, carol} {
		h.fund(principalUnit, who, 1_000*units)
	}
	h.at(5)
	h.stake(pool, alice, 333*units)
	h.stake(pool, bob, 333*units)
	h.at(40)
	h.stake(pool, carol, 17*units)
	h.at(900_000)

	ctx := context.Background()
	sa, err := h.engine.StakeSummary(ctx, pool.ID, alice)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	sb, err := h.engine.StakeSummary(ctx, pool.ID, bob)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	diff := int64(sa.TotalRewards) - int64(sb.TotalRewards)
	if diff < -1 || diff > 1 {
		t.Fatalf("equal stakes diverged: %d vs %d", sa.TotalRewards, sb.TotalRewards)
	}
	if sa.TotalRewards == 0 {
		t.Fatalf("expected rewards to accrue")
	}
}

func TestUnstakeLockWindow(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(fullRate, staking.MinLockDuration)
	alice := participant(1)
	h.fund(principalUnit, alice, 50*units)
	h.fund(rewardUnit, pool.RewardVault, 1_000_000)
	h.stake(pool, alice, 50*units)

	unlockAt := h.position(pool.ID, alice).UnlockAt
	if unlockAt != staking.MinLockDuration {
		t.Fatalf("unexpected unlock time %d", unlockAt)
	}

	ctx := context.Background()
	h.at(unlockAt - 1)
	if _, err := h.engine.Unstake(ctx, alice, pool.ID); !errors.Is(err, staking.ErrStakeLocked) {
		t.Fatalf("expected stake locked, got %v", err)
	}
	if stake := h.position(pool.ID, alice); !stake.Active || stake.Amount != 50*units || stake.UnclaimedRewards != 0 {
		t.Fatalf("locked unstake mutated stake: %+v", stake)
	}

	h.at(unlockAt)
	res, err := h.engine.Unstake(ctx, alice, pool.ID)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if res.PrincipalPaid != 50*units || res.RewardPaid != uint64(unlockAt) {
		t.Fatalf("unexpected payout %+v", res)
	}
	if got := h.balance(principalUnit, alice); got != 50*units {
		t.Fatalf("principal not returned: %d", got)
	}
	if got := h.pool(pool.ID).TotalStaked; got != 0 {
		t.Fatalf("total staked not reduced: %d", got)
	}

	if _, err := h.engine.Claim(ctx, alice, pool.ID); !errors.Is(err, staking.ErrNoActiveStake) {
		t.Fatalf("expected no active stake after unstake, got %v", err)
	}
	if _, err := h.engine.Unstake(ctx, alice, pool.ID); !errors.Is(err, staking.ErrNoActiveStake) {
		t.Fatalf("expected no active stake on second unstake, got %v", err)
	}
}

func TestTopUpKeepsUnlockAndSettlesFirst(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(fullRate, staking.MinLockDuration)
	alice := participant(1)
	h.fund(principalUnit, alice, 200*units)

	firstID := h.stake(pool, alice, 100*units)
	h.at(50)
	secondID := h.stake(pool, alice, 100*units)
	if firstID != secondID {
		t.Fatalf("top-up opened a new position")
	}
	stake := h.position(pool.ID, alice)
	if stake.UnlockAt != staking.MinLockDuration {
		t.Fatalf("top-up moved unlock time to %d", stake.UnlockAt)
	}
	if stake.Amount != 200*units || stake.UnclaimedRewards != 50 {
		t.Fatalf("unexpected stake after top-up: amount %d unclaimed %d", stake.Amount, stake.UnclaimedRewards)
	}
	if got := h.pool(pool.ID).TotalStaked; got != 200*units {
		t.Fatalf("unexpected total staked %d", got)
	}
	topUps := h.recorder.Filter(events.TypeStaked)
	if len(topUps) != 2 || topUps[1].Attributes["topUp"] != "true" {
		t.Fatalf("unexpected staked events: %+v", topUps)
	}
}

func TestRestakeAfterUnstakeOpensNewPosition(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(fullRate, staking.MinLockDuration)
	alice := participant(1)
	h.fund(principalUnit, alice, 10*units)
	h.fund(rewardUnit, pool.RewardVault, 1_000_000)

	first := h.stake(pool, alice, 10*units)
	h.at(staking.MinLockDuration)
	if _, err := h.engine.Unstake(context.Background(), alice, pool.ID); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	second := h.stake(pool, alice, 10*units)
	if first == second {
		t.Fatalf("expected a fresh stake id")
	}
	stake := h.position(pool.ID, alice)
	if stake.UnlockAt != 2*staking.MinLockDuration || stake.UnclaimedRewards != 0 {
		t.Fatalf("unexpected reopened stake: %+v", stake)
	}
}

func TestStakeRejections(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(fullRate, staking.MinLockDuration)
	alice := participant(1)
	h.fund(principalUnit, alice, 5*units)
	ctx := context.Background()

	if _, err := h.engine.Stake(ctx, alice, pool.ID, staking.MinStakeAmount-1); !errors.Is(err, staking.ErrStakeTooSmall) || !errors.Is(err, staking.ErrAmountOutOfRange) {
		t.Fatalf("expected too small, got %v", err)
	}
	if _, err := h.engine.Stake(ctx, alice, pool.ID, staking.MaxStakeAmount+1); !errors.Is(err, staking.ErrStakeTooLarge) {
		t.Fatalf("expected too large, got %v", err)
	}
	if _, err := h.engine.Stake(ctx, alice, pool.ID, 6*units); !errors.Is(err, staking.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if _, err := h.engine.Stake(ctx, alice, participant(9), units); !errors.Is(err, staking.ErrPoolNotFound) {
		t.Fatalf("expected pool not found, got %v", err)
	}
	if got := h.pool(pool.ID).TotalStaked; got != 0 {
		t.Fatalf("rejected stakes changed total: %d", got)
	}

	if err := h.engine.SetPoolActive(ctx, alice, pool.ID, false); !errors.Is(err, staking.ErrUnauthorized) {
		t.Fatalf("expected non-authority to be rejected, got %v", err)
	}
	if err := h.engine.SetPoolActive(ctx, h.authority, pool.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := h.engine.Stake(ctx, alice, pool.ID, units); !errors.Is(err, staking.ErrPoolInactive) {
		t.Fatalf("expected pool inactive, got %v", err)
	}
	if got := h.balance(principalUnit, alice); got != 5*units {
		t.Fatalf("rejected stakes moved funds: %d", got)
	}
}

func TestInactivePoolStillPaysOut(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(fullRate, staking.MinLockDuration)
	alice := participant(1)
	h.fund(principalUnit, alice, 10*units)
	h.fund(rewardUnit, pool.RewardVault, 1_000_000)
	h.stake(pool, alice, 10*units)
	ctx := context.Background()

	h.at(10)
	if err := h.engine.SetPoolActive(ctx, h.authority, pool.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	h.at(20)
	if paid, err := h.engine.Claim(ctx, alice, pool.ID); err != nil || paid != 20 {
		t.Fatalf("claim on inactive pool: paid %d err %v", paid, err)
	}
	h.at(staking.MinLockDuration)
	if _, err := h.engine.Unstake(ctx, alice, pool.ID); err != nil {
		t.Fatalf("unstake on inactive pool: %v", err)
	}
}

func TestUnstakeRewardShortfallIsAtomic(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(fullRate, staking.MinLockDuration)
	alice := participant(1)
	h.fund(principalUnit, alice, 10*units)
	h.fund(rewardUnit, pool.RewardVault, 10)
	h.stake(pool, alice, 10*units)
	ctx := context.Background()

	h.at(staking.MinLockDuration)
	_, err := h.engine.Unstake(ctx, alice, pool.ID)
	if !errors.Is(err, staking.ErrInsufficientRewardTokens) {
		t.Fatalf("expected insufficient reward tokens, got %v", err)
	}
	if errors.Is(err, staking.ErrInvariantViolation) {
		t.Fatalf("reward shortfall must not be reported as an invariant violation")
	}
	if got := h.balance(principalUnit, alice); got != 0 {
		t.Fatalf("principal paid despite abort: %d", got)
	}
	stake := h.position(pool.ID, alice)
	if !stake.Active || stake.Amount != 10*units {
		t.Fatalf("stake mutated despite abort: %+v", stake)
	}
	if got := h.pool(pool.ID).TotalStaked; got != 10*units {
		t.Fatalf("total staked mutated despite abort: %d", got)
	}

	h.fund(rewardUnit, pool.RewardVault, uint64(staking.MinLockDuration))
	res, err := h.engine.Unstake(ctx, alice, pool.ID)
	if err != nil {
		t.Fatalf("unstake after funding: %v", err)
	}
	if res.RewardPaid != uint64(staking.MinLockDuration) {
		t.Fatalf("unexpected reward paid %d", res.RewardPaid)
	}
}

func TestClaimShortfallKeepsRewardsClaimable(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(fullRate, staking.MinLockDuration)
	alice := participant(1)
	h.fund(principalUnit, alice, 10*units)
	h.stake(pool, alice, 10*units)
	ctx := context.Background()

	h.at(30)
	if _, err := h.engine.Claim(ctx, alice, pool.ID); !errors.Is(err, staking.ErrInsufficientRewardTokens) {
		t.Fatalf("expected insufficient reward tokens, got %v", err)
	}
	if stake := h.position(pool.ID, alice); stake.UnclaimedRewards != 0 || stake.Checkpoint.Sign() != 0 {
		t.Fatalf("failed claim mutated stake: %+v", stake)
	}
	h.fund(rewardUnit, pool.RewardVault, 30)
	if paid, err := h.engine.Claim(ctx, alice, pool.ID); err != nil || paid != 30 {
		t.Fatalf("claim after funding: paid %d err %v", paid, err)
	}
}

func TestVaultDivergenceIsInvariantViolation(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(fullRate, staking.MinLockDuration)
	alice, thief := participant(1), participant(2)
	h.fund(principalUnit, alice, 10*units)
	h.fund(rewardUnit, pool.RewardVault, 1_000_000)
	h.stake(pool, alice, 10*units)
	ctx := context.Background()

	if err := h.ledger.Transfer(ctx, staking.Transfer{Unit: principalUnit, From: pool.PrincipalVault, To: thief, Amount: units}); err != nil {
		t.Fatalf("drain vault: %v", err)
	}
	if err := h.engine.Audit(ctx, pool.ID); !errors.Is(err, staking.ErrInvariantViolation) {
		t.Fatalf("audit should detect divergence, got %v", err)
	}

	h.at(staking.MinLockDuration)
	_, err := h.engine.Unstake(ctx, alice, pool.ID)
	if !errors.Is(err, staking.ErrInsufficientVaultBalance) || !errors.Is(err, staking.ErrInvariantViolation) {
		t.Fatalf("expected vault invariant violation, got %v", err)
	}
	if staking.CodeOf(err) != 1601 || staking.CategoryOf(err) != staking.CategoryVaultOperations {
		t.Fatalf("unexpected code %d category %s", staking.CodeOf(err), staking.CategoryOf(err))
	}
	if got := h.balance(rewardUnit, alice); got != 0 {
		t.Fatalf("rewards paid despite abort: %d", got)
	}
}

func TestCommitFailureReversesTransfers(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(fullRate, staking.MinLockDuration)
	alice := participant(1)
	h.fund(principalUnit, alice, 10*units)

	h.store.failCommit = errors.New("disk full")
	if _, err := h.engine.Stake(context.Background(), alice, pool.ID, 10*units); err == nil {
		t.Fatalf("expected commit failure")
	}
	h.store.failCommit = nil

	if got := h.balance(principalUnit, alice); got != 10*units {
		t.Fatalf("transfer not reversed: alice holds %d", got)
	}
	if got := h.balance(principalUnit, pool.PrincipalVault); got != 0 {
		t.Fatalf("transfer not reversed: vault holds %d", got)
	}
	if _, err := h.engine.Position(context.Background(), pool.ID, alice); !errors.Is(err, staking.ErrNoActiveStake) {
		t.Fatalf("stake persisted despite failed commit: %v", err)
	}
}

func TestSequentialCustodyCompensatesFailedLeg(t *testing.T) {
	h := newHarness(t)
	custody := &sequentialCustody{inner: h.ledger}
	h.engine = staking.NewEngine(h.store, custody)
	h.engine.SetNowFunc(h.clock.Load)

	pool := h.createPool(fullRate, staking.MinLockDuration)
	alice := participant(1)
	h.fund(principalUnit, alice, 10*units)
	h.fund(rewardUnit, pool.RewardVault, 1_000_000)
	h.stake(pool, alice, 10*units)

	// The stake used transfer 1; the unstake principal leg is 2 and the
	// reward leg 3.
	custody.failAt = 3
	h.at(staking.MinLockDuration)
	_, err := h.engine.Unstake(context.Background(), alice, pool.ID)
	var te *staking.TransferError
	if !errors.As(err, &te) || te.Index != 1 || !errors.Is(err, errCustodyDown) {
		t.Fatalf("expected reward leg failure, got %v", err)
	}
	if got := h.balance(principalUnit, alice); got != 0 {
		t.Fatalf("principal leg not reversed: alice holds %d", got)
	}
	if got := h.balance(principalUnit, pool.PrincipalVault); got != 10*units {
		t.Fatalf("principal leg not reversed: vault holds %d", got)
	}
	if stake := h.position(pool.ID, alice); !stake.Active {
		t.Fatalf("stake closed despite failure")
	}
}

func TestSettle(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(fullRate, staking.MinLockDuration)
	alice := participant(1)
	h.fund(principalUnit, alice, 10*units)
	ctx := context.Background()

	h.at(10)
	if advanced, err := h.engine.Settle(ctx, pool.ID); err != nil || advanced {
		t.Fatalf("settle on empty pool: advanced %v err %v", advanced, err)
	}
	if got := h.pool(pool.ID).LastSettledAt; got != 0 {
		t.Fatalf("settle on empty pool moved timestamp to %d", got)
	}

	h.stake(pool, alice, 10*units)
	h.at(20)
	advanced, err := h.engine.Settle(ctx, pool.ID)
	if err != nil || !advanced {
		t.Fatalf("settle: advanced %v err %v", advanced, err)
	}
	first := h.pool(pool.ID)
	advanced, err = h.engine.Settle(ctx, pool.ID)
	if err != nil || advanced {
		t.Fatalf("repeat settle: advanced %v err %v", advanced, err)
	}
	second := h.pool(pool.ID)
	if !second.Accumulator.Eq(first.Accumulator) || second.LastSettledAt != first.LastSettledAt {
		t.Fatalf("repeat settle changed pool")
	}

	h.at(15)
	if _, err := h.engine.Settle(ctx, pool.ID); !errors.Is(err, staking.ErrInvalidTimestamp) {
		t.Fatalf("expected clock regression error, got %v", err)
	}
	if got := h.recorder.Filter(events.TypePoolSettled); len(got) != 1 {
		t.Fatalf("expected one settled event, got %d", len(got))
	}
}

func TestSettleSkipsInactivePool(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(fullRate, staking.MinLockDuration)
	alice := participant(1)
	h.fund(principalUnit, alice, 10*units)
	h.stake(pool, alice, 10*units)
	ctx := context.Background()
	if err := h.engine.SetPoolActive(ctx, h.authority, pool.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	h.at(100)
	if advanced, err := h.engine.Settle(ctx, pool.ID); err != nil || advanced {
		t.Fatalf("settle on inactive pool: advanced %v err %v", advanced, err)
	}
	if got := h.pool(pool.ID).LastSettledAt; got != 0 {
		t.Fatalf("inactive pool settled to %d", got)
	}
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(fullRate, staking.MinLockDuration)
	alice := participant(1)
	h.fund(principalUnit, alice, 10*units)
	pauses := nativecommon.NewPauses(staking.ModuleName)
	h.engine.SetPauses(pauses)

	if _, err := h.engine.Stake(context.Background(), alice, pool.ID, units); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected module paused, got %v", err)
	}
	pauses.Set(staking.ModuleName, false)
	h.stake(pool, alice, units)
}

func TestConcurrentOperationsConserveTotals(t *testing.T) {
	h := newHarness(t)
	poolA := h.createPool(fullRate, staking.MinLockDuration)
	poolB := h.createPool(fullRate/2, staking.MinLockDuration)
	h.fund(rewardUnit, poolA.RewardVault, 1_000_000)
	h.fund(rewardUnit, poolB.RewardVault, 1_000_000)

	const participants = 24
	for i := 0; i < participants; i++ {
		h.fund(principalUnit, participant(byte(i+1)), 100*units)
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, participants*3)
	for i := 0; i < participants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			who := participant(byte(i + 1))
			pool := poolA
			if i%2 == 1 {
				pool = poolB
			}
			if _, err := h.engine.Stake(ctx, who, pool.ID, 30*units); err != nil {
				errs <- err
				return
			}
			if _, err := h.engine.Stake(ctx, who, pool.ID, 20*units); err != nil {
				errs <- err
				return
			}
			if _, err := h.engine.Claim(ctx, who, pool.ID); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent operation failed: %v", err)
	}

	for _, pool := range []*staking.Pool{poolA, poolB} {
		if err := h.engine.Audit(ctx, pool.ID); err != nil {
			t.Fatalf("audit %s: %v", pool.ID, err)
		}
		if got := h.pool(pool.ID).TotalStaked; got != participants/2*50*units {
			t.Fatalf("unexpected total staked %d", got)
		}
	}
}

func TestQueries(t *testing.T) {
	h := newHarness(t)
	pool := h.createPool(fullRate, staking.MinLockDuration)
	idle := h.createPool(fullRate, staking.MinLockDuration)
	alice := participant(1)
	h.fund(principalUnit, alice, 100*units)
	h.stake(pool, alice, 100*units)
	ctx := context.Background()

	h.at(40)
	summary, err := h.engine.StakeSummary(ctx, pool.ID, alice)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.PendingRewards != 40 || summary.TotalRewards != 40 || summary.CanUnstake {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.SecondsUntilUnlock != staking.MinLockDuration-40 {
		t.Fatalf("unexpected seconds until unlock %d", summary.SecondsUntilUnlock)
	}

	stats, err := h.engine.PoolStats(ctx, pool.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalStaked != 100*units || stats.DailyEmission != 86_400 || stats.SecondsSinceSettle != 40 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.PendingAccumulator.Cmp(stats.Accumulator) <= 0 {
		t.Fatalf("pending accumulator should lead the stored value")
	}

	needing, err := h.engine.PoolsNeedingSettle(ctx, 30)
	if err != nil {
		t.Fatalf("pools needing settle: %v", err)
	}
	if len(needing) != 1 || !needing[0].Equal(pool.ID) {
		t.Fatalf("expected only the staked pool, got %v (idle %s)", needing, idle.ID)
	}
	if needing, _ = h.engine.PoolsNeedingSettle(ctx, 41); len(needing) != 0 {
		t.Fatalf("threshold not applied: %v", needing)
	}

	pools, err := h.engine.Pools(ctx)
	if err != nil || len(pools) != 2 {
		t.Fatalf("list pools: %d %v", len(pools), err)
	}
}
