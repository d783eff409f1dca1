package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"stakeledger/crypto"
	nativecommon "stakeledger/native/common"
	"stakeledger/native/staking"
	"stakeledger/services/stakingd/server"
	"stakeledger/storage/journal"
	"stakeledger/storage/ledger"
)

const secret = "0123456789abcdef0123456789abcdef"

func participant(b byte) crypto.Address {
	return crypto.NewAddress(crypto.ParticipantPrefix, bytes.Repeat([]byte{b}, crypto.AddressLength))
}

func startDaemon(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	db, err := ledger.Open(ledger.MemoryDSN(uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close(db) })
	j, err := journal.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	custody := ledger.NewCustody(db)
	engine := staking.NewEngine(ledger.NewStore(db), custody)
	now := new(atomic.Int64)
	engine.SetNowFunc(now.Load)
	engine.SetEmitter(j)
	pauses := nativecommon.NewPauses()
	engine.SetPauses(pauses)

	srv, err := server.New(server.Config{Auth: server.AuthConfig{HMACSecret: secret}}, engine, custody, j, pauses, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, now
}

func clientFor(t *testing.T, base string, addr crypto.Address, scopes ...string) *Client {
	t.Helper()
	tok, err := server.IssueToken(secret, server.TokenParams{Subject: addr, Scopes: scopes}, time.Now())
	require.NoError(t, err)
	c, err := New(base, WithToken(tok))
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("localhost")
	require.Error(t, err)
}

func TestClientRoundTrip(t *testing.T) {
	ts, now := startDaemon(t)
	ctx := context.Background()
	authority := clientFor(t, ts.URL, participant(0xAA))
	admin := clientFor(t, ts.URL, participant(0xAD), server.ScopeAdmin)
	aliceAddr := participant(1)
	alice := clientFor(t, ts.URL, aliceAddr)

	pool, err := authority.CreatePool(ctx, server.CreatePoolRequest{PrincipalUnit: "stk", RewardUnit: "rwd", RewardRate: server.Amount(staking.RatePrecision)})
	require.NoError(t, err)
	require.EqualValues(t, staking.DefaultLockDuration, pool.LockDuration)

	_, err = admin.Fund(ctx, "stk", aliceAddr.String(), 50_000_000)
	require.NoError(t, err)
	_, err = admin.Fund(ctx, "rwd", pool.RewardVault, 1_000)
	require.NoError(t, err)

	res, err := alice.Stake(ctx, pool.ID, 50_000_000)
	require.NoError(t, err)
	require.NotEmpty(t, res.StakeID)

	now.Store(30)
	settled, err := alice.Settle(ctx, pool.ID)
	require.NoError(t, err)
	require.True(t, settled.Advanced)

	claimed, err := alice.Claim(ctx, pool.ID)
	require.NoError(t, err)
	require.EqualValues(t, 30, claimed.Paid)

	bal, err := alice.Balance(ctx, "rwd", aliceAddr.String())
	require.NoError(t, err)
	require.EqualValues(t, 30, bal.Balance)

	_, err = alice.Unstake(ctx, pool.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusConflict, apiErr.Status)
	require.Equal(t, staking.ErrStakeLocked.Code, apiErr.Code)

	pools, err := alice.Pools(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 1)

	evts, err := alice.Events(ctx, 0, 10, "")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(evts), 4)
	require.EqualValues(t, 1, evts[0].Sequence)
}

func TestClientEstimateAndAdminRoutes(t *testing.T) {
	ts, now := startDaemon(t)
	ctx := context.Background()
	authority := clientFor(t, ts.URL, participant(0xAA))
	admin := clientFor(t, ts.URL, participant(0xAD), server.ScopeAdmin)
	aliceAddr := participant(1)
	alice := clientFor(t, ts.URL, aliceAddr)

	pool, err := authority.CreatePool(ctx, server.CreatePoolRequest{PrincipalUnit: "stk", RewardUnit: "rwd", RewardRate: server.Amount(staking.RatePrecision)})
	require.NoError(t, err)
	_, err = admin.Fund(ctx, "stk", aliceAddr.String(), 50_000_000)
	require.NoError(t, err)
	_, err = alice.Stake(ctx, pool.ID, 50_000_000)
	require.NoError(t, err)

	est, err := alice.Estimate(ctx, pool.ID, 50_000_000, 100)
	require.NoError(t, err)
	require.EqualValues(t, 100, est.Seconds)
	require.EqualValues(t, 100, est.Rewards)

	est, err = alice.Estimate(ctx, pool.ID, 25_000_000, 100)
	require.NoError(t, err)
	require.EqualValues(t, 50, est.Rewards)

	audit, err := admin.Audit(ctx, pool.ID)
	require.NoError(t, err)
	require.Equal(t, "consistent", audit.Status)
	require.Equal(t, pool.ID, audit.Pool)

	_, err = alice.Audit(ctx, pool.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.Status)

	paused, err := admin.Pauses(ctx)
	require.NoError(t, err)
	require.Empty(t, paused)

	paused, err = admin.SetPause(ctx, staking.ModuleName, true)
	require.NoError(t, err)
	require.Equal(t, []string{staking.ModuleName}, paused)

	now.Store(10)
	_, err = alice.Claim(ctx, pool.ID)
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusServiceUnavailable, apiErr.Status)

	paused, err = admin.SetPause(ctx, staking.ModuleName, false)
	require.NoError(t, err)
	require.Empty(t, paused)
}
