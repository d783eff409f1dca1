package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"stakeledger/crypto"
	"stakeledger/native/staking"
)

const maxBodyBytes = 1 << 16

// Amount is a uint64 carried as a decimal string in JSON so that clients
// without 64-bit integers do not lose precision.
type Amount uint64

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(a), 10))
}

// UnmarshalJSON accepts a decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("amount must be a decimal string")
	}
	parsed, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", raw)
	}
	*a = Amount(parsed)
	return nil
}

// PoolView is the JSON form of a pool with its derived statistics.
type PoolView struct {
	ID                 string `json:"id"`
	Authority          string `json:"authority"`
	PrincipalUnit      string `json:"principalUnit"`
	RewardUnit         string `json:"rewardUnit"`
	PrincipalVault     string `json:"principalVault"`
	RewardVault        string `json:"rewardVault"`
	RewardRate         Amount `json:"rewardRate"`
	AprPercent         uint64 `json:"aprPercent"`
	DailyEmission      Amount `json:"dailyEmission"`
	TotalStaked        Amount `json:"totalStaked"`
	Accumulator        string `json:"accumulator"`
	PendingAccumulator string `json:"pendingAccumulator,omitempty"`
	LastSettledAt      int64  `json:"lastSettledAt"`
	LockDuration       int64  `json:"lockDuration"`
	Active             bool   `json:"active"`
	CreatedAt          int64  `json:"createdAt"`
	Age                int64  `json:"age,omitempty"`
}

func poolView(pool *staking.Pool, stats *staking.PoolStats) PoolView {
	view := PoolView{
		ID:             pool.ID.String(),
		Authority:      pool.Authority.String(),
		PrincipalUnit:  pool.PrincipalUnit,
		RewardUnit:     pool.RewardUnit,
		PrincipalVault: pool.PrincipalVault.String(),
		RewardVault:    pool.RewardVault.String(),
		RewardRate:     Amount(pool.RewardRate),
		AprPercent:     staking.AprForRewardRate(pool.RewardRate, pool.TotalStaked),
		DailyEmission:  Amount(staking.EmissionForPeriod(pool.RewardRate, 86400)),
		TotalStaked:    Amount(pool.TotalStaked),
		Accumulator:    staking.FormatAccumulator(pool.Accumulator),
		LastSettledAt:  pool.LastSettledAt,
		LockDuration:   pool.LockDuration,
		Active:         pool.Active,
		CreatedAt:      pool.CreatedAt,
	}
	if stats != nil {
		view.PendingAccumulator = staking.FormatAccumulator(stats.PendingAccumulator)
		view.Age = stats.Age
	}
	return view
}

// StakeView is the JSON form of a stake summary.
type StakeView struct {
	Pool               string `json:"pool"`
	Owner              string `json:"owner"`
	StakeID            string `json:"stakeId"`
	Amount             Amount `json:"amount"`
	UnclaimedRewards   Amount `json:"unclaimedRewards"`
	PendingRewards     Amount `json:"pendingRewards"`
	TotalRewards       Amount `json:"totalRewards"`
	StakedAt           int64  `json:"stakedAt"`
	UnlockAt           int64  `json:"unlockAt"`
	SecondsUntilUnlock int64  `json:"secondsUntilUnlock"`
	CanUnstake         bool   `json:"canUnstake"`
	Active             bool   `json:"active"`
}

func stakeView(s staking.StakeSummary) StakeView {
	return StakeView{
		Pool:               s.Pool.String(),
		Owner:              s.Owner.String(),
		StakeID:            s.StakeID,
		Amount:             Amount(s.Amount),
		UnclaimedRewards:   Amount(s.UnclaimedRewards),
		PendingRewards:     Amount(s.PendingRewards),
		TotalRewards:       Amount(s.TotalRewards),
		StakedAt:           s.StakedAt,
		UnlockAt:           s.UnlockAt,
		SecondsUntilUnlock: s.SecondsUntilUnlock,
		CanUnstake:         s.CanUnstake,
		Active:             s.Active,
	}
}

// CreatePoolRequest opens a pool owned by the caller. Either RewardRate or
// AprPercent with TargetStake must be supplied.
type CreatePoolRequest struct {
	PrincipalUnit string `json:"principalUnit"`
	RewardUnit    string `json:"rewardUnit"`
	RewardRate    Amount `json:"rewardRate,omitempty"`
	AprPercent    uint64 `json:"aprPercent,omitempty"`
	TargetStake   Amount `json:"targetStake,omitempty"`
	LockDuration  int64  `json:"lockDuration,omitempty"`
}

// StakeRequest deposits Amount principal units.
type StakeRequest struct {
	Amount Amount `json:"amount"`
}

// StakeResponse reports the position after a deposit.
type StakeResponse struct {
	StakeID string    `json:"stakeId"`
	Stake   StakeView `json:"stake"`
}

// UnstakeResponse reports what a withdrawal released.
type UnstakeResponse struct {
	PrincipalPaid Amount `json:"principalPaid"`
	RewardPaid    Amount `json:"rewardPaid"`
}

// ClaimResponse reports a reward payout.
type ClaimResponse struct {
	Paid Amount `json:"paid"`
}

// SettleResponse reports whether the accumulator moved.
type SettleResponse struct {
	Advanced bool     `json:"advanced"`
	Pool     PoolView `json:"pool"`
}

// StatusRequest toggles a pool.
type StatusRequest struct {
	Active bool `json:"active"`
}

// FundRequest mints units to a holder, typically a reward vault.
type FundRequest struct {
	Unit   string `json:"unit"`
	Holder string `json:"holder"`
	Amount Amount `json:"amount"`
}

// PauseRequest toggles a module kill switch.
type PauseRequest struct {
	Paused bool `json:"paused"`
}

// BalanceResponse reports a custody balance.
type BalanceResponse struct {
	Unit    string `json:"unit"`
	Holder  string `json:"holder"`
	Balance Amount `json:"balance"`
}

// EstimateResponse projects rewards for a hypothetical deposit.
type EstimateResponse struct {
	Amount  Amount `json:"amount"`
	Seconds int64  `json:"seconds"`
	Rewards Amount `json:"rewards"`
}

// PausesResponse lists the paused modules.
type PausesResponse struct {
	Paused []string `json:"paused"`
}

// AuditResponse reports a passed pool audit.
type AuditResponse struct {
	Pool   string `json:"pool"`
	Status string `json:"status"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func pathAddress(r *http.Request, param string, prefix crypto.AddressPrefix) (crypto.Address, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	addr, err := crypto.DecodeAddressWithPrefix(raw, prefix)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %s: %v", staking.ErrInvalidAddress, param, err)
	}
	return addr, nil
}

func chiParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

func queryInt(r *http.Request, key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", staking.ErrInvalidParameter, key)
	}
	return v, nil
}
