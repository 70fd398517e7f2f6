package httpx

import (
	"net/http"

	"github.com/packhouse-erp/packhouse/internal/shared"
)

// RespondError maps taxonomy codes onto HTTP statuses using RFC7807 bodies.
// The domain message travels verbatim in the detail field; only unclassified
// errors are masked.
func RespondError(w http.ResponseWriter, err error) {
	switch shared.CodeOf(err) {
	case shared.CodeUnauthenticated:
		Problem(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
	case shared.CodePermissionDenied:
		Problem(w, http.StatusForbidden, "Permission Denied", err.Error())
	case shared.CodeInvalidArgument:
		Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
	case shared.CodeNotFound:
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case shared.CodeFailedPrecondition:
		Problem(w, http.StatusConflict, "Failed Precondition", err.Error())
	case shared.CodeUnavailable:
		Problem(w, http.StatusServiceUnavailable, "Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
