package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// fail logs server-side failures with the request logger before rendering the error.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := errors.AsStandard(err)
	if errors.HTTPStatus(stdErr.Code) >= http.StatusInternalServerError {
		logger.FromContext(r.Context(), h.log).Error("request failed", map[string]interface{}{
			"code":  stdErr.Code,
			"error": stdErr.Error(),
		})
	}
	errors.WriteError(w, stdErr)
}

// decode validates the body against the named schema before unmarshalling it into dst.
func (h *handler) decode(r *http.Request, schema string, dst interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return errors.NewInvalidRequestError("request body too large or unreadable")
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := h.validator.Validate(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.NewInvalidRequestError(err.Error())
	}
	return nil
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func pagination(r *http.Request) (int, int) {
	return queryInt(r, "page", 1), queryInt(r, "pageSize", 0)
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.NewInvalidRequestError(name + " must be true or false")
	}
	return &b, nil
}

func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, errors.NewInvalidRequestError(name + " must be an RFC 3339 timestamp")
	}
	return &t, nil
}
