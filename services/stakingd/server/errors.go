package server

import (
	"encoding/json"
	"errors"
	"net/http"

	nativecommon "stakeledger/native/common"
	"stakeledger/native/staking"
)

type problem struct {
	Error    string `json:"error"`
	Code     uint16 `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, msg string, code uint16, category string) {
	writeJSON(w, status, problem{Error: msg, Code: code, Category: category})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps engine failures onto HTTP statuses. More specific errors
// are checked before their parents.
func statusFor(err error) int {
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, staking.ErrStateNotConfigured),
		errors.Is(err, staking.ErrCustodyNotConfigured),
		errors.Is(err, staking.ErrVaultUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, staking.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, staking.ErrCannotUnstakeZero),
		errors.Is(err, staking.ErrStakeLocked),
		errors.Is(err, staking.ErrPoolInactive),
		errors.Is(err, staking.ErrPoolAlreadyExists),
		errors.Is(err, staking.ErrInsufficientRewardTokens):
		return http.StatusConflict
	case errors.Is(err, staking.ErrPoolNotFound),
		errors.Is(err, staking.ErrNoActiveStake):
		return http.StatusNotFound
	case errors.Is(err, staking.ErrInvariantViolation):
		return http.StatusInternalServerError
	case errors.Is(err, staking.ErrInsufficientBalance),
		errors.Is(err, staking.ErrMathOverflow),
		errors.Is(err, staking.ErrDivisionByZero):
		return http.StatusUnprocessableEntity
	case errors.Is(err, staking.ErrInvalidParameter),
		errors.Is(err, staking.ErrAmountOutOfRange),
		errors.Is(err, staking.ErrInvalidTimestamp):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "route", r.URL.Path, "error", err)
		if staking.CodeOf(err) == 0 {
			msg = "internal error"
		}
	}
	category := ""
	if code := staking.CodeOf(err); code != 0 {
		category = staking.CategoryOf(err).String()
	}
	writeProblem(w, status, msg, staking.CodeOf(err), category)
}
