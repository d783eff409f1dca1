package server

import (
	"net/http"
	"strconv"
	"strings"

	"stakeledger/crypto"
	"stakeledger/native/staking"
	"stakeledger/observability/logging"
)

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.engine.Pools(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]PoolView, 0, len(pools))
	for _, pool := range pools {
		out = append(out, poolView(pool, nil))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) loadPoolView(r *http.Request, poolID crypto.Address) (PoolView, error) {
	pool, err := s.engine.Pool(r.Context(), poolID)
	if err != nil {
		return PoolView{}, err
	}
	stats, err := s.engine.PoolStats(r.Context(), poolID)
	if err != nil {
		return PoolView{}, err
	}
	return poolView(pool, &stats), nil
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	poolID, err := pathAddress(r, "pool", crypto.PoolPrefix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.loadPoolView(r, poolID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	poolID, err := pathAddress(r, "pool", crypto.PoolPrefix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := queryInt(r, "amount", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	seconds, err := queryInt(r, "seconds", 86400)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pool, err := s.engine.Pool(r.Context(), poolID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rewards := staking.EstimateRewards(uint64(amount), pool.TotalStaked, pool.RewardRate, seconds)
	writeJSON(w, http.StatusOK, EstimateResponse{Amount: Amount(amount), Seconds: seconds, Rewards: Amount(rewards)})
}

func (s *Server) handleGetStake(w http.ResponseWriter, r *http.Request) {
	poolID, err := pathAddress(r, "pool", crypto.PoolPrefix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := pathAddress(r, "owner", crypto.ParticipantPrefix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.engine.StakeSummary(r.Context(), poolID, owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stakeView(summary))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("unit"))
	if raw == "" {
		s.writeError(w, r, staking.ErrInvalidParameter)
		return
	}
	holder, err := crypto.DecodeAddress(strings.TrimSpace(chiParam(r, "holder")))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error(), staking.ErrInvalidAddress.Code, staking.ErrInvalidAddress.Category.String())
		return
	}
	balance, err := s.funds.Balance(r.Context(), raw, holder)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Unit: strings.ToUpper(raw), Holder: holder.String(), Balance: Amount(balance)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	after, err := queryInt(r, "after", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit > 1000 {
		limit = 1000
	}
	out, err := s.events.Since(uint64(after), int(limit), strings.TrimSpace(r.URL.Query().Get("type")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	poolID, err := pathAddress(r, "pool", crypto.PoolPrefix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	advanced, err := s.engine.Settle(r.Context(), poolID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.loadPoolView(r, poolID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SettleResponse{Advanced: advanced, Pool: view})
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error(), 0, "")
		return
	}
	rate := uint64(req.RewardRate)
	if rate == 0 && req.AprPercent > 0 {
		rate = staking.RewardRateForApr(req.AprPercent, uint64(req.TargetStake))
	}
	pool, err := s.engine.CreatePool(r.Context(), staking.PoolParams{
		Authority:     caller(r),
		PrincipalUnit: req.PrincipalUnit,
		RewardUnit:    req.RewardUnit,
		RewardRate:    rate,
		LockDuration:  req.LockDuration,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, poolView(pool, nil))
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	poolID, err := pathAddress(r, "pool", crypto.PoolPrefix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req StatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error(), 0, "")
		return
	}
	if err := s.engine.SetPoolActive(r.Context(), caller(r), poolID, req.Active); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.loadPoolView(r, poolID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	poolID, err := pathAddress(r, "pool", crypto.PoolPrefix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req StakeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error(), 0, "")
		return
	}
	owner := caller(r)
	stakeID, err := s.engine.Stake(r.Context(), owner, poolID, uint64(req.Amount))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.engine.StakeSummary(r.Context(), poolID, owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StakeResponse{StakeID: stakeID, Stake: stakeView(summary)})
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	poolID, err := pathAddress(r, "pool", crypto.PoolPrefix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.Unstake(r.Context(), caller(r), poolID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UnstakeResponse{PrincipalPaid: Amount(res.PrincipalPaid), RewardPaid: Amount(res.RewardPaid)})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	poolID, err := pathAddress(r, "pool", crypto.PoolPrefix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	paid, err := s.engine.Claim(r.Context(), caller(r), poolID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ClaimResponse{Paid: Amount(paid)})
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	var req FundRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error(), 0, "")
		return
	}
	holder, err := crypto.DecodeAddress(strings.TrimSpace(req.Holder))
	if err != nil || strings.TrimSpace(req.Unit) == "" || req.Amount == 0 {
		writeProblem(w, http.StatusBadRequest, "unit, holder and a positive amount are required", staking.ErrInvalidParameter.Code, staking.ErrInvalidParameter.Category.String())
		return
	}
	if err := s.funds.Mint(r.Context(), req.Unit, holder, uint64(req.Amount)); err != nil {
		s.writeError(w, r, err)
		return
	}
	balance, err := s.funds.Balance(r.Context(), req.Unit, holder)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("funded holder",
		"unit", strings.ToUpper(strings.TrimSpace(req.Unit)),
		"holder", logging.MaskParticipant(holder.String()),
		"amount", strconv.FormatUint(uint64(req.Amount), 10))
	writeJSON(w, http.StatusOK, BalanceResponse{Unit: strings.ToUpper(strings.TrimSpace(req.Unit)), Holder: holder.String(), Balance: Amount(balance)})
}

func (s *Server) handleListPauses(w http.ResponseWriter, r *http.Request) {
	paused := []string{}
	if s.pauses != nil {
		paused = append(paused, s.pauses.Paused()...)
	}
	writeJSON(w, http.StatusOK, PausesResponse{Paused: paused})
}

func (s *Server) handleSetPause(w http.ResponseWriter, r *http.Request) {
	if s.pauses == nil {
		writeProblem(w, http.StatusServiceUnavailable, "pauses not configured", 0, "")
		return
	}
	module := normalizeModule(chiParam(r, "module"))
	if module == "" {
		writeProblem(w, http.StatusBadRequest, "module required", 0, "")
		return
	}
	var req PauseRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error(), 0, "")
		return
	}
	s.pauses.Set(module, req.Paused)
	s.logger.Warn("module pause changed", "module", module, "paused", req.Paused)
	s.handleListPauses(w, r)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	poolID, err := pathAddress(r, "pool", crypto.PoolPrefix)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.Audit(r.Context(), poolID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuditResponse{Pool: poolID.String(), Status: "consistent"})
}
