package httpx

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxBody bounds request bodies read by DecodeJSON.
const maxBody = 1 << 20

// ProblemDetail represents RFC7807 problem details. Errors carries per-field
// messages for validation problems.
type ProblemDetail struct {
	Type   string            `json:"type,omitempty"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
	Extra  any               `json:"extra,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	WriteProblem(w, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// WriteProblem sends a fully populated problem.
func WriteProblem(w http.ResponseWriter, p ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// ValidationProblem sends a 422 carrying the failing fields. Extra is attached
// as-is, for example the current state of the edited resource.
func ValidationProblem(w http.ResponseWriter, fields map[string]string, extra any) {
	WriteProblem(w, ProblemDetail{
		Title:  "Validation Failed",
		Status: http.StatusUnprocessableEntity,
		Errors: fields,
		Extra:  extra,
	})
}

// DecodeJSON decodes the JSON request body into target. An empty body leaves
// target untouched.
func DecodeJSON(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("%w: invalid json: %v", ErrValidation, err)
	}
	return nil
}
