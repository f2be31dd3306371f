package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/copier"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/session"
)

var validate = validator.New()

var errNoSession = apierr.New(apierr.KindAuthRequired, "auth_required", "authorization required")

// decode reads a JSON body into v and runs its validate tags.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierr.Validation("invalid JSON body")
	}
	if err := validate.Struct(v); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			details := make([]string, 0, len(ve))
			for _, fe := range ve {
				details = append(details, fe.Namespace()+": failed "+fe.Tag())
			}
			return apierr.Validation("invalid request", details...)
		}
		return apierr.Validation(err.Error())
	}
	return nil
}

func sessionOf(r *http.Request) (session.Session, error) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		return s, errNoSession
	}
	return s, nil
}

// mapTo copies matching fields of src into a new T.
func mapTo[T any](src any) (T, error) {
	var out T
	err := copier.Copy(&out, src)
	return out, err
}

func writeJSON(w http.ResponseWriter, v any) { apierr.WriteJSON(w, http.StatusOK, v) }

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
