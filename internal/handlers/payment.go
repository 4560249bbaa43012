package handlers

import (
	"errors"
	"net/http"
	"strings"

	"debtster_portal/internal/services/payments"
)

type orderReq struct {
	DebtID string `json:"debt_id"`
	Amount string `json:"amount"`
}

type captureReq struct {
	DebtID         string `json:"debt_id"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

func paymentStatus(err error) int {
	switch {
	case errors.Is(err, payments.ErrNoAccounts), errors.Is(err, payments.ErrDebtNotFound):
		return http.StatusNotFound
	case errors.Is(err, payments.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, payments.ErrAmountExceedsBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, payments.ErrCaptureFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) paymentError(w http.ResponseWriter, debtorID string, err error) {
	code := paymentStatus(err)
	if code == http.StatusInternalServerError {
		h.logf("[PAY][ERR] debtor=%s: %v", debtorID, err)
	}
	h.Error(w, code, payments.Message(err))
}

func (h *Handlers) Accounts(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	view, err := h.Payments.Accounts(r.Context(), id.DebtorID)
	if err != nil {
		h.paymentError(w, id.DebtorID, err)
		return
	}
	h.JSON(w, http.StatusOK, view)
}

func (h *Handlers) Account(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	d, err := h.Payments.Account(r.Context(), id.DebtorID, r.PathValue("id"))
	if err != nil {
		h.paymentError(w, id.DebtorID, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{
		"account":        d,
		"default_amount": d.AmountDue,
	})
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderReq
	if err := decode(w, r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := payments.ParseAmount(req.Amount)
	if err != nil {
		h.paymentError(w, "", err)
		return
	}

	id := identity(r)
	order, err := h.Payments.CreateOrder(r.Context(), id.DebtorID, req.DebtID, amount)
	if err != nil {
		h.paymentError(w, id.DebtorID, err)
		return
	}
	h.JSON(w, http.StatusCreated, order)
}

// CaptureOrder captures an approved order and records it. Without a client key
// the order id serves as the idempotency key, so a resubmitted capture is
// answered from the stored payment.
func (h *Handlers) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	var req captureReq
	if err := decode(w, r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := payments.ParseAmount(req.Amount)
	if err != nil {
		h.paymentError(w, "", err)
		return
	}

	orderID := r.PathValue("orderID")
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	if key == "" {
		key = "order:" + orderID
	}

	id := identity(r)
	res, err := h.Payments.Capture(r.Context(), payments.CaptureRequest{
		DebtorID:       id.DebtorID,
		UserEmail:      id.Email,
		DebtID:         req.DebtID,
		OrderID:        orderID,
		Amount:         amount,
		IdempotencyKey: key,
	})
	if err != nil {
		h.paymentError(w, id.DebtorID, err)
		return
	}
	h.JSON(w, http.StatusOK, res)
}
