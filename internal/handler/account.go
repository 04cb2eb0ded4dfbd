package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jmobrien1/document-markdown-converter/internal/config"
	"github.com/jmobrien1/document-markdown-converter/internal/httputil"
	"github.com/jmobrien1/document-markdown-converter/internal/service/conversion"
	"github.com/jmobrien1/document-markdown-converter/internal/service/usage"
)

// AccountHandler serves quota standing, stats and history.
type AccountHandler struct {
	limiter *usage.Limiter
	poller  *conversion.Poller
	logger  *slog.Logger
}

// NewAccountHandler creates the account endpoints handler.
func NewAccountHandler(limiter *usage.Limiter, poller *conversion.Poller, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{limiter: limiter, poller: poller, logger: logger}
}

// UserStatus handles GET /user-status: the caller's quota standing,
// for both anonymous sessions and accounts.
func (h *AccountHandler) UserStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.limiter.StatusFor(r.Context(), httputil.GetIdentity(r))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, st)
}

// Stats handles GET /stats: conversion counters for the dashboard.
// Anonymous callers get their quota standing instead of account stats.
func (h *AccountHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id := httputil.GetIdentity(r)

	if !id.Authenticated() {
		st, err := h.limiter.StatusFor(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"authenticated":     false,
			"daily_limit":       st.DailyLimit,
			"conversions_today": st.ConversionsToday,
			"remaining_today":   st.RemainingToday,
			"can_convert":       st.RemainingToday > 0,
		})
		return
	}

	stats, err := h.poller.Stats(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	successRate := 0.0
	if stats.Total > 0 {
		successRate = float64(stats.Completed) / float64(stats.Total) * 100
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated":          true,
		"total_conversions":      stats.Total,
		"daily_conversions":      stats.Today,
		"successful_conversions": stats.Completed,
		"success_rate":           successRate,
		"can_convert":            true,
	})
}

// History handles GET /history: the account's recent conversions,
// newest first. Accepts a ?limit= query, clamped to MaxHistoryPageSize.
func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > config.MaxHistoryPageSize {
		limit = config.MaxHistoryPageSize
	}

	jobs, err := h.poller.History(r.Context(), httputil.GetIdentity(r), limit)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"conversions": jobs,
		"count":       len(jobs),
	})
}
