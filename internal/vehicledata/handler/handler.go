package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"garagedata/internal/vehicledata/models"
	"garagedata/pkg/domain"
	dErrors "garagedata/pkg/domain-errors"
	"garagedata/pkg/platform/httputil"
	"garagedata/pkg/platform/middleware/admin"
	"garagedata/pkg/requestcontext"
)

// Resolver is the caller-facing side of the vehicle-data service.
type Resolver interface {
	ResolveVehicleImage(ctx context.Context, registration string) (models.ImageResult, error)
	ResolveVehicleData(ctx context.Context, registration string) (models.DataResult, error)
}

// Operator is the admin side of the vehicle-data service.
type Operator interface {
	ResetCooldown(ctx context.Context) models.Status
	ClearBlacklist(ctx context.Context, registration string) (int64, error)
	ListBlacklist(ctx context.Context) ([]models.FailureRecord, error)
	Status(ctx context.Context) (models.Status, error)
}

// Handler serves the public lookup routes and the operator routes.
type Handler struct {
	resolver Resolver
	operator Operator
	logger   *slog.Logger
}

// New creates a vehicle-data handler.
func New(resolver Resolver, operator Operator, logger *slog.Logger) *Handler {
	return &Handler{resolver: resolver, operator: operator, logger: logger}
}

// Register mounts the public lookup routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/vehicles/{registration}/image", h.HandleImage)
	r.Get("/vehicles/{registration}/data", h.HandleData)
}

// RegisterAdmin mounts the operator routes. The caller is expected to wrap r
// with admin.RequireAdminToken.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/vehicle-data/status", h.HandleStatus)
	r.Get("/admin/vehicle-data/blacklist", h.HandleListBlacklist)
	r.Post("/admin/vehicle-data/cooldown/reset", h.HandleResetCooldown)
	r.Post("/admin/vehicle-data/blacklist/clear", h.HandleClearBlacklistBatch)
	r.Delete("/admin/vehicle-data/blacklist", h.HandleClearBlacklist)
	r.Delete("/admin/vehicle-data/blacklist/{registration}", h.HandleClearBlacklist)
}

// HandleImage resolves a vehicle photo. Unavailable results are 404 and
// rate-limited results are 429 with Retry-After; both carry the result body.
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.resolver.ResolveVehicleImage(ctx, chi.URLParam(r, "registration"))
	if err != nil {
		h.writeFailure(ctx, w, err, "image")
		return
	}
	writeResult(w, result.Success, result.RetryAfterSeconds, result)
}

// HandleData resolves technical data.
func (h *Handler) HandleData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.resolver.ResolveVehicleData(ctx, chi.URLParam(r, "registration"))
	if err != nil {
		h.writeFailure(ctx, w, err, "data")
		return
	}
	writeResult(w, result.Success, result.RetryAfterSeconds, result)
}

func writeResult(w http.ResponseWriter, success bool, retryAfter int, body any) {
	switch {
	case success:
		httputil.WriteJSON(w, http.StatusOK, body)
	case retryAfter > 0:
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		httputil.WriteJSON(w, http.StatusTooManyRequests, body)
	default:
		httputil.WriteJSON(w, http.StatusNotFound, body)
	}
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, err error, kind string) {
	if !dErrors.HasCode(err, dErrors.CodeInvalidInput) {
		h.logger.ErrorContext(ctx, "vehicle lookup failed",
			"kind", kind,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}

// StatusResponse wraps the resolver status for operators.
type StatusResponse struct {
	Status models.Status `json:"status"`
}

// BlacklistResponse lists the live blacklist entries.
type BlacklistResponse struct {
	Entries []BlacklistEntry `json:"entries"`
	Count   int              `json:"count"`
}

// BlacklistEntry is one failure record as shown to operators.
type BlacklistEntry struct {
	Registration string  `json:"registration"`
	Kind         string  `json:"kind"`
	Reason       string  `json:"reason"`
	CreatedAt    string  `json:"createdAt"`
	ExpiresAt    *string `json:"expiresAt,omitempty"`
}

// MaxBatchClear bounds the registrations accepted by one batch clear.
const MaxBatchClear = 100

// ClearBlacklistRequest names registrations to clear in one call.
type ClearBlacklistRequest struct {
	Registrations []string `json:"registrations"`
}

// Normalize canonicalizes each registration and drops duplicates.
func (req *ClearBlacklistRequest) Normalize() {
	seen := make(map[string]struct{}, len(req.Registrations))
	out := req.Registrations[:0]
	for _, raw := range req.Registrations {
		reg := domain.NormalizeRegistration(raw)
		if _, dup := seen[reg]; dup {
			continue
		}
		seen[reg] = struct{}{}
		out = append(out, reg)
	}
	req.Registrations = out
}

func (req *ClearBlacklistRequest) Validate() error {
	if len(req.Registrations) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "registrations is required")
	}
	if len(req.Registrations) > MaxBatchClear {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("at most %d registrations per request", MaxBatchClear))
	}
	for _, raw := range req.Registrations {
		if _, err := domain.ParseRegistration(raw); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, fmt.Sprintf("%q: %s", raw, err.Error()))
		}
	}
	return nil
}

// ClearBlacklistResponse reports how many entries an operator removed.
type ClearBlacklistResponse struct {
	Removed int64 `json:"removed"`
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.operator.Status(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read resolver status",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read status"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: status})
}

func (h *Handler) HandleListBlacklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := h.operator.ListBlacklist(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list blacklist",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list blacklist"))
		return
	}

	resp := BlacklistResponse{Entries: make([]BlacklistEntry, 0, len(records)), Count: len(records)}
	for _, rec := range records {
		entry := BlacklistEntry{
			Registration: rec.Key.Registration.String(),
			Kind:         string(rec.Key.Kind),
			Reason:       rec.Reason,
			CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339),
		}
		if rec.ExpiresAt != nil {
			exp := rec.ExpiresAt.UTC().Format(time.RFC3339)
			entry.ExpiresAt = &exp
		}
		resp.Entries = append(resp.Entries, entry)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleResetCooldown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := h.operator.ResetCooldown(ctx)
	h.logger.InfoContext(ctx, "operator reset provider cooldown",
		"actor", admin.GetAdminActorID(ctx),
		"client", admin.GetAdminClient(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: status})
}

// HandleClearBlacklist clears one registration when the path names one and
// the whole blacklist otherwise.
func (h *Handler) HandleClearBlacklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registration := chi.URLParam(r, "registration")
	removed, err := h.operator.ClearBlacklist(ctx, registration)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			h.logger.ErrorContext(ctx, "failed to clear blacklist",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear blacklist")
		}
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "operator cleared blacklist",
		"actor", admin.GetAdminActorID(ctx),
		"client", admin.GetAdminClient(ctx),
		"all", registration == "",
		"removed", removed,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, ClearBlacklistResponse{Removed: removed})
}

// HandleClearBlacklistBatch clears every registration named in the body.
func (h *Handler) HandleClearBlacklistBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeRequest[ClearBlacklistRequest](w, r)
	if !ok {
		return
	}

	var removed int64
	for _, reg := range req.Registrations {
		n, err := h.operator.ClearBlacklist(ctx, reg)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to clear blacklist",
				"error", err,
				"cleared_before_failure", removed,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear blacklist"))
			return
		}
		removed += n
	}
	h.logger.InfoContext(ctx, "operator cleared blacklist batch",
		"actor", admin.GetAdminActorID(ctx),
		"client", admin.GetAdminClient(ctx),
		"registrations", len(req.Registrations),
		"removed", removed,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, ClearBlacklistResponse{Removed: removed})
}
