package handlers

import (
	"context"
	"net/http"
	"time"
)

type healthResp struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var errs []string

	if h.Postgres == nil || h.Postgres.Pool == nil {
		errs = append(errs, "postgres not initialized")
	} else if err := h.Postgres.Pool.Ping(ctx); err != nil {
		errs = append(errs, "postgres ping failed: "+err.Error())
	}

	if h.Mongo == nil || h.Mongo.Client == nil {
		errs = append(errs, "mongo not initialized")
	} else if err := h.Mongo.Client.Ping(ctx, nil); err != nil {
		errs = append(errs, "mongo ping failed: "+err.Error())
	}

	if err := h.S3.Check(ctx); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		h.logf("[HEALTH][ERR] %v", errs)
		h.JSON(w, http.StatusServiceUnavailable, healthResp{OK: false, Errors: errs})
		return
	}
	h.JSON(w, http.StatusOK, healthResp{OK: true})
}
