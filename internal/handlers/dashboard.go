package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"debtster_portal/internal/models"
	"debtster_portal/internal/ports"
	"debtster_portal/internal/services/dashboard"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type layoutProfile struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type summaryResp struct {
	*dashboard.Summary
	Profile layoutProfile `json:"profile"`
}

// profileOf prefers the stored display profile and falls back to the session email.
func profileOf(email string, p *models.UserProfile) layoutProfile {
	lp := layoutProfile{Email: email}
	if p == nil {
		return lp
	}
	if p.FullName != nil {
		lp.Name = *p.FullName
	}
	if p.Email != nil && *p.Email != "" {
		lp.Email = *p.Email
	}
	return lp
}

func (h *Handlers) viewError(w http.ResponseWriter, debtorID string, err error) {
	if errors.Is(err, dashboard.ErrDebtorNotFound) || errors.Is(err, ports.ErrNotFound) {
		h.Error(w, http.StatusNotFound, "Account information not found")
		return
	}
	h.logf("[DASH][ERR] debtor=%s: %v", debtorID, err)
	h.Error(w, http.StatusInternalServerError, "An error occurred while loading your account.")
}

func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	s, err := h.Dashboard.Summary(r.Context(), id.DebtorID)
	if err != nil {
		h.viewError(w, id.DebtorID, err)
		return
	}
	h.JSON(w, http.StatusOK, summaryResp{Summary: s, Profile: profileOf(id.Email, id.Profile)})
}

func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	rows, err := h.Dashboard.History(r.Context(), id.DebtorID)
	if err != nil {
		h.viewError(w, id.DebtorID, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{
		"payments": rows,
		"profile":  profileOf(id.Email, id.Profile),
	})
}

func (h *Handlers) ExportHistory(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var buf bytes.Buffer
	n, err := h.Dashboard.ExportHistory(r.Context(), id.DebtorID, &buf)
	if err != nil {
		h.viewError(w, id.DebtorID, err)
		return
	}
	h.logf("[DASH][EXPORT] debtor=%s rows=%d", id.DebtorID, n)

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="payment-history.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handlers) Confirmation(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, dashboard.BuildConfirmation(r.URL.Query(), h.now()))
}

func (h *Handlers) Receipt(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	body, meta, err := h.Dashboard.Receipt(r.Context(), id.DebtorID, r.PathValue("transaction"))
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "Receipt not found")
			return
		}
		h.logf("[DASH][RECEIPT][ERR] debtor=%s: %v", id.DebtorID, err)
		h.Error(w, http.StatusInternalServerError, "could not load receipt")
		return
	}
	defer body.Close()

	ct := meta.ContentType
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	if meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logf("[DASH][RECEIPT][WARN] stream: %v", err)
	}
}
