package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "garagedata/pkg/domain-errors"
)

// Preparable request bodies are normalized, then validated, once decoded.
type Preparable interface {
	Normalize()
	Validate() error
}

// DecodeRequest reads one JSON object from the body into T. Unknown fields
// and trailing data are rejected. When *T is Preparable it is normalized and
// validated; validation errors keep their domain code and anything else
// becomes invalid_input.
//
// On failure the error response is already written and ok is false.
func DecodeRequest[T any](w http.ResponseWriter, r *http.Request) (req *T, ok bool) {
	req = new(T)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	if dec.More() {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unexpected data after request body"))
		return nil, false
	}

	p, isPreparable := any(req).(Preparable)
	if !isPreparable {
		return req, true
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		var domainErr *dErrors.Error
		if !errors.As(err, &domainErr) {
			err = dErrors.New(dErrors.CodeInvalidInput, err.Error())
		}
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
