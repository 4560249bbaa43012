package handlers

import (
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"debtster_portal/internal/services/auth"
	"debtster_portal/internal/services/gatekeeper"
	transport "debtster_portal/internal/transport/auth"
)

const oauthStateCookie = "portal_oauth_state"

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signedInResp struct {
	auth.SessionData
	Token string `json:"token"`
	Next  string `json:"next"`
}

// clientIP is the TCP peer unless that peer is a trusted proxy. Behind one,
// X-Forwarded-For is walked from the right and the first untrusted hop wins.
func (h *Handlers) clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if !h.trustedProxy(ip) {
		return ip
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		ip = hop
		if !h.trustedProxy(hop) {
			break
		}
	}
	return ip
}

func (h *Handlers) trustedProxy(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range h.TrustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.Cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) authError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrInvalidPassword):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUserExists):
		h.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.Error(w, http.StatusUnauthorized, err.Error())
	default:
		h.logf("[AUTH][ERR] %v", err)
		h.Error(w, http.StatusInternalServerError, "authentication failed")
	}
}

func (h *Handlers) signedIn(w http.ResponseWriter, code int, res *auth.Result) {
	h.setSessionCookie(w, res.Token)
	h.JSON(w, code, signedInResp{SessionData: res.SessionData, Token: res.Token, Next: gatekeeper.VerifyPath})
}

func (h *Handlers) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := decode(w, r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.Auth.SignUp(r.Context(), req.Email, req.Password, req.Name, h.clientIP(r), r.UserAgent())
	if err != nil {
		h.authError(w, err)
		return
	}
	h.signedIn(w, http.StatusCreated, res)
}

func (h *Handlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := decode(w, r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.Auth.SignIn(r.Context(), req.Email, req.Password, h.clientIP(r), r.UserAgent())
	if err != nil {
		h.authError(w, err)
		return
	}
	h.signedIn(w, http.StatusOK, res)
}

func (h *Handlers) GoogleStart(w http.ResponseWriter, r *http.Request) {
	if h.Google == nil {
		h.Error(w, http.StatusNotFound, "google sign-in is not enabled")
		return
	}
	target, state, err := h.Google.AuthCodeURL()
	if err != nil {
		h.logf("[AUTH][GOOGLE][ERR] state: %v", err)
		h.Error(w, http.StatusInternalServerError, "authentication failed")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handlers) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.Google == nil {
		h.Error(w, http.StatusNotFound, "google sign-in is not enabled")
		return
	}
	q := r.URL.Query()
	c, err := r.Cookie(oauthStateCookie)
	if err != nil || c.Value == "" || c.Value != q.Get("state") {
		h.Error(w, http.StatusBadRequest, "invalid oauth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/auth/google", MaxAge: -1})

	if e := q.Get("error"); e != "" {
		h.logf("[AUTH][GOOGLE] consent denied: %s", e)
		http.Redirect(w, r, gatekeeper.SignInPath, http.StatusSeeOther)
		return
	}

	profile, err := h.Google.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		h.logf("[AUTH][GOOGLE][ERR] exchange: %v", err)
		h.Error(w, http.StatusBadGateway, "google sign-in failed")
		return
	}
	res, err := h.Auth.SignInWithProvider(r.Context(), profile, h.clientIP(r), r.UserAgent())
	if err != nil {
		h.authError(w, err)
		return
	}
	h.setSessionCookie(w, res.Token)
	http.Redirect(w, r, gatekeeper.VerifyPath, http.StatusSeeOther)
}

func (h *Handlers) SignOut(w http.ResponseWriter, r *http.Request) {
	token := transport.Token(r, h.Cookie.Name)
	if err := h.Auth.SignOut(r.Context(), token); err != nil && !errors.Is(err, auth.ErrSessionNotFound) {
		h.logf("[AUTH][ERR] sign-out: %v", err)
	}
	h.clearCookie(w, h.Cookie.Name)
	h.JSON(w, http.StatusOK, map[string]string{"next": gatekeeper.SignedOutPath})
}

func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id.Session == nil {
		h.Error(w, http.StatusUnauthorized, "not signed in")
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{
		"user":     id.Session.User,
		"session":  id.Session.Session,
		"verified": id.State == gatekeeper.Verified,
	})
}

func (h *Handlers) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := decode(w, r, &patch); err != nil || len(patch) == 0 {
		h.Error(w, http.StatusBadRequest, "metadata must be a non-empty object")
		return
	}
	meta, err := h.Auth.UpdateMetadata(r.Context(), identity(r).UserID, patch)
	if err != nil {
		h.logf("[AUTH][ERR] metadata user=%s: %v", identity(r).UserID, err)
		h.Error(w, http.StatusInternalServerError, "could not update metadata")
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{"metadata": meta})
}
