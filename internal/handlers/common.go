// Package handlers serves the HTML pages and their JSON counterparts.
package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"strconv"

	"github.com/diewo77/go-approvisionnements/httpx"
	"github.com/diewo77/go-approvisionnements/i18n"
	"github.com/diewo77/go-approvisionnements/internal/services"
	"github.com/diewo77/go-approvisionnements/view"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"
)

const dateLayout = "2006-01-02"

// pathID parses the {id} path segment. ok is false for a missing or non-numeric id.
func pathID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func lang(r *http.Request) string {
	return i18n.LangFromContext(r.Context())
}

func flash(r *http.Request, key string) string {
	return i18n.T(lang(r), key)
}

// listingKeys are the query parameters understood by the order listing.
var listingKeys = listingTags()

func listingTags() []string {
	t := reflect.TypeOf(services.ListingRequest{})
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("mapstructure"); tag != "" {
			keys = append(keys, tag)
		}
	}
	return keys
}

// decodeListing maps query parameters onto a ListingRequest. Each key is
// decoded on its own so a malformed value only drops that filter.
func decodeListing(q url.Values) services.ListingRequest {
	var req services.ListingRequest
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &req,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(dateLayout),
	})
	if err != nil {
		return req
	}
	for _, key := range listingKeys {
		v := q.Get(key)
		if v == "" {
			continue
		}
		if err := dec.Decode(map[string]any{key: v}); err != nil {
			log.Debug().Err(err).Str("param", key).Msg("ignoring listing parameter")
		}
	}
	return req
}

// writeError maps service errors onto JSON responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := services.AsValidation(err); ok {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "validation_failed", ve.Violations)
		return
	}
	switch {
	case errors.Is(err, services.ErrNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	case errors.Is(err, services.ErrConstraint):
		httpx.JSONError(w, http.StatusConflict, "constraint_violation", nil)
	default:
		serverError(w, r, err)
	}
}

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	if httpx.WantsJSON(r) || httpx.IsJSONBody(r) {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// render writes an HTML page and logs template failures.
func render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) {
	if err := view.Render(w, r, name, data); err != nil {
		serverError(w, r, err)
	}
}

// renderWithStatus renders a page after setting the response status, e.g. 422 for a rejected form.
func renderWithStatus(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	rec := &statusWriter{ResponseWriter: w, status: status}
	render(rec, r, name, data)
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (s *statusWriter) WriteHeader(code int) {
	if !s.written {
		s.written = true
		s.ResponseWriter.WriteHeader(code)
	}
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if !s.written {
		s.WriteHeader(s.status)
	}
	return s.ResponseWriter.Write(b)
}
