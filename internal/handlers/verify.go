package handlers

import (
	"errors"
	"net/http"

	"debtster_portal/internal/services/gatekeeper"
	"debtster_portal/internal/services/verification"
)

func (h *Handlers) VerifyStatus(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	verified, _, err := h.Verify.Status(r.Context(), id.UserID)
	if err != nil {
		h.logf("[VERIFY][ERR] status user=%s: %v", id.UserID, err)
	}
	if verified {
		http.Redirect(w, r, gatekeeper.HomePath, http.StatusSeeOther)
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{"verified": false, "email": id.Email})
}

func verifyStatus(err error) int {
	switch {
	case errors.Is(err, verification.ErrMissingFields), errors.Is(err, verification.ErrInvalidBirthday):
		return http.StatusBadRequest
	case errors.Is(err, verification.ErrDebtorNotFound):
		return http.StatusNotFound
	case errors.Is(err, verification.ErrEmailMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, verification.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) SubmitVerification(w http.ResponseWriter, r *http.Request) {
	var req verification.Request
	if err := decode(w, r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := identity(r)
	res, err := h.Verify.Verify(r.Context(), id.UserID, id.Email, req)
	if err != nil {
		code := verifyStatus(err)
		if code == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "60")
		}
		h.Error(w, code, verification.Message(err))
		return
	}
	h.JSON(w, http.StatusOK, res)
}
