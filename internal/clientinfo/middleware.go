package clientinfo

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Error codes used in the middleware's error envelope.
const (
	CodeClientRequired     = "order_client_required"
	CodeVersionUnsupported = "client_version_unsupported"
)

// Middleware enforces the Order-Client declaration on every request
// except infrastructure paths. Requests without the header get 400;
// versions below min get 426 so the app can prompt for an update.
func Middleware(minVersion string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get(Header)
			if header == "" {
				writeClientError(w, http.StatusBadRequest, CodeClientRequired,
					"Order-Client header is required")
				return
			}

			info, err := ParseHeader(header)
			if err != nil {
				logger.Warn("invalid Order-Client header",
					slog.String("header", header),
					slog.String("error", err.Error()))
				writeClientError(w, http.StatusBadRequest, CodeClientRequired,
					"Invalid Order-Client header: "+err.Error())
				return
			}

			if err := CheckMinVersion(info.Version, minVersion); err != nil {
				var verErr *VersionError
				if errors.As(err, &verErr) {
					writeClientError(w, http.StatusUpgradeRequired, CodeVersionUnsupported,
						verErr.Error())
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), info)))
		})
	}
}

// isExemptPath returns true for infrastructure paths that can't carry
// the header (health probes, discovery).
func isExemptPath(path string) bool {
	switch path {
	case "/health", "/healthz", "/.well-known/orderflow":
		return true
	default:
		return false
	}
}

// writeClientError writes the standard error envelope.
func writeClientError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = code
	resp.Error.Message = message

	json.NewEncoder(w).Encode(resp)
}
