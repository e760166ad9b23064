package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-inventory/internal/errors"
)

// errorBody is the JSON shape of every error response
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders an application error with its mapped status. Anything
// that is not an AppError is logged and reported as an internal error without
// its text.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	appErr, ok := errors.As(err)
	if !ok || appErr.Code == errors.ErrCodeInternal {
		log.Error().Err(err).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Code:    string(errors.ErrCodeInternal),
			Message: "internal server error",
		})
		return
	}
	writeJSON(w, appErr.HTTPStatus(), errorBody{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Code:    string(errors.ErrCodeInvalidInput),
		Message: message,
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// pageParams reads page (1-based) and page_size, returning limit and offset
func pageParams(r *http.Request) (page, pageSize, offset int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return page, pageSize, (page - 1) * pageSize
}
