package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
)

const maxBodyBytes = 64 << 10

var validate = validator.New()

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody reads a JSON body into out and validates its struct tags.
func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid field %s: failed on %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}
	return nil
}

// hostFilter reads the table parameters of a host listing.
func hostFilter(r *http.Request) (domain.HostFilter, error) {
	q := r.URL.Query()
	f := domain.HostFilter{
		Search: q.Get("search"),
		Sort:   q.Get("sort"),
	}
	var err error
	if f.Offset, err = queryInt(q.Get("offset")); err != nil {
		return f, fmt.Errorf("invalid offset: %w", err)
	}
	if f.Limit, err = queryInt(q.Get("limit")); err != nil {
		return f, fmt.Errorf("invalid limit: %w", err)
	}
	return f, nil
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("must not be negative")
	}
	return n, nil
}
