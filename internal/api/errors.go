package api

import (
	"errors"
	"net/http"

	"github.com/convoshare/convoshare/internal/mirror"
	"github.com/convoshare/convoshare/internal/replay"
	"github.com/convoshare/convoshare/internal/resource"
	"github.com/convoshare/convoshare/internal/share"
)

// statusFor maps domain errors to HTTP status codes. Unknown / revoked /
// orphaned invitations all map to the same 404 so owner actions do not leak
// through error shapes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, share.ErrEmptyShare):
		return http.StatusBadRequest
	case errors.Is(err, resource.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, share.ErrNotOwner), errors.Is(err, share.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, share.ErrInvitationNotFound),
		errors.Is(err, share.ErrAcceptanceNotFound),
		errors.Is(err, resource.ErrResourceNotFound),
		errors.Is(err, resource.ErrAttachmentNotFound),
		errors.Is(err, replay.ErrNotVisible):
		return http.StatusNotFound
	case errors.Is(err, mirror.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the user-facing error message. Invitation lookups get a
// deliberately generic message regardless of why the token stopped working.
func messageFor(err error) string {
	if errors.Is(err, share.ErrInvitationNotFound) {
		return "this shared link no longer exists"
	}
	return err.Error()
}
