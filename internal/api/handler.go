package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/convoshare/convoshare/internal/metrics"
	"github.com/convoshare/convoshare/internal/middleware"
	"github.com/convoshare/convoshare/internal/mirror"
	"github.com/convoshare/convoshare/internal/replay"
	"github.com/convoshare/convoshare/internal/resource"
	"github.com/convoshare/convoshare/internal/share"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// APIResponse is the JSON envelope for all endpoints
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ShareCreateRequest is the body of POST /shares
type ShareCreateRequest struct {
	Refs            []resource.Ref `json:"refs"`
	IncludeSubtree  bool           `json:"includeSubtree"`
	DisplayRootName string         `json:"displayRootName,omitempty"`
}

// ShareCreateResponse is the result of POST /shares
type ShareCreateResponse struct {
	InvitationID   string `json:"invitationId"`
	InvitationLink string `json:"invitationLink"`
}

// DeriveRequest is the body of the replay/playback endpoints
type DeriveRequest struct {
	OwnerBucket string `json:"ownerBucket"`
	Path        string `json:"path"`
}

// Handler handles the share service REST API
type Handler struct {
	issuer   *share.Issuer
	resolver *share.Resolver
	mirror   *mirror.Manager
	replay   *replay.Manager
	metrics  *metrics.Metrics
}

// NewHandler creates a new API handler
func NewHandler(issuer *share.Issuer, resolver *share.Resolver, mirrorMgr *mirror.Manager, replayMgr *replay.Manager, m *metrics.Metrics) *Handler {
	return &Handler{
		issuer:   issuer,
		resolver: resolver,
		mirror:   mirrorMgr,
		replay:   replayMgr,
		metrics:  m,
	}
}

// RegisterRoutes registers all share API routes. The router is expected to
// already carry the principal middleware.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/shares", h.handleCreateShare).Methods("POST", "OPTIONS")
	router.HandleFunc("/shares", h.handleListShares).Methods("GET", "OPTIONS")
	router.HandleFunc("/shares/{invitationId}", h.handleRevokeShare).Methods("DELETE", "OPTIONS")
	router.HandleFunc("/shares/{token}/accept", h.handleAccept).Methods("POST", "OPTIONS")

	router.HandleFunc("/shared-with-me", h.handleListSharedWithMe).Methods("GET", "OPTIONS")
	router.HandleFunc("/shared-with-me/children", h.handleListFolderChildren).Methods("GET", "OPTIONS")
	router.HandleFunc("/shared-with-me/attachments", h.handleOpenAttachment).Methods("GET", "OPTIONS")
	router.HandleFunc("/shared-with-me/replay", h.handleReplay).Methods("POST", "OPTIONS")
	router.HandleFunc("/shared-with-me/playback", h.handlePlayback).Methods("POST", "OPTIONS")
	router.HandleFunc("/shared-with-me/{invitationId}", h.handleRemoveFromView).Methods("DELETE", "OPTIONS")
}

func (h *Handler) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req ShareCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	inv, err := h.issuer.Issue(r.Context(), principal, req.Refs, req.IncludeSubtree, req.DisplayRootName)
	if err != nil {
		h.writeError(w, messageFor(err), statusFor(err))
		return
	}

	h.metrics.SharesIssued.Inc()
	h.writeJSON(w, ShareCreateResponse{
		InvitationID:   inv.ID,
		InvitationLink: h.issuer.Link(inv),
	})
}

func (h *Handler) handleListShares(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	invitations, err := h.issuer.ListIssued(r.Context(), principal)
	if err != nil {
		h.writeError(w, messageFor(err), statusFor(err))
		return
	}

	h.writeJSON(w, invitations)
}

func (h *Handler) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	invitationID := mux.Vars(r)["invitationId"]
	if err := h.issuer.Revoke(r.Context(), principal, invitationID); err != nil {
		h.writeError(w, messageFor(err), statusFor(err))
		return
	}

	h.metrics.SharesRevoked.Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	token := mux.Vars(r)["token"]
	if _, err := h.resolver.Redeem(r.Context(), token, principal); err != nil {
		outcome := "error"
		if errors.Is(err, share.ErrInvitationNotFound) {
			outcome = "not_found"
		}
		h.metrics.Redemptions.WithLabelValues(outcome).Inc()
		h.writeError(w, messageFor(err), statusFor(err))
		return
	}

	h.metrics.Redemptions.WithLabelValues("accepted").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListSharedWithMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	start := time.Now()
	nodes, err := h.mirror.ListSharedWithMe(r.Context(), principal)
	if err != nil {
		h.writeError(w, messageFor(err), statusFor(err))
		return
	}

	h.metrics.MirrorReads.Inc()
	h.metrics.MirrorDuration.Observe(time.Since(start).Seconds())
	h.writeJSON(w, nodes)
}

func (h *Handler) handleListFolderChildren(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	ref := resource.Ref{
		OwnerBucket: r.URL.Query().Get("bucket"),
		Path:        r.URL.Query().Get("path"),
		Kind:        resource.KindFolder,
	}
	if ref.OwnerBucket == "" || ref.Path == "" {
		h.writeError(w, "bucket and path are required", http.StatusBadRequest)
		return
	}

	nodes, err := h.mirror.ListFolderChildren(r.Context(), principal, ref)
	if err != nil {
		h.writeError(w, messageFor(err), statusFor(err))
		return
	}

	h.writeJSON(w, nodes)
}

func (h *Handler) handleRemoveFromView(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	invitationID := mux.Vars(r)["invitationId"]
	if err := h.mirror.RemoveFromView(r.Context(), principal, invitationID); err != nil {
		h.writeError(w, messageFor(err), statusFor(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleOpenAttachment(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	contentPath := r.URL.Query().Get("path")
	if contentPath == "" {
		h.writeError(w, "path is required", http.StatusBadRequest)
		return
	}

	data, err := h.mirror.OpenAttachment(r.Context(), principal, contentPath)
	if err != nil {
		h.writeError(w, messageFor(err), statusFor(err))
		return
	}

	h.metrics.AttachmentFetches.Inc()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	h.handleDerive(w, r, "replay", h.replay.Replay)
}

func (h *Handler) handlePlayback(w http.ResponseWriter, r *http.Request) {
	h.handleDerive(w, r, "playback", h.replay.Playback)
}

func (h *Handler) handleDerive(w http.ResponseWriter, r *http.Request, action string, derive func(ctx context.Context, principal string, ref resource.Ref) (*resource.Resource, error)) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req DeriveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ref := resource.Ref{
		OwnerBucket: req.OwnerBucket,
		Path:        req.Path,
		Kind:        resource.KindConversation,
	}

	created, err := derive(r.Context(), principal, ref)
	if err != nil {
		h.writeError(w, messageFor(err), statusFor(err))
		return
	}

	h.metrics.DerivedCopies.WithLabelValues(action).Inc()
	h.writeJSON(w, created)
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (h *Handler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message})
	logrus.WithField("error", message).WithField("status", statusCode).Warn("API error")
}
