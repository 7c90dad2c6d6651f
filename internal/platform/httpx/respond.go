// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// maxProblemBytes bounds how much of an error body is read when decoding a problem.
const maxProblemBytes = 64 << 10

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeProblem reads an error response body. Problem documents and the common
// {"error": "..."} shape are understood; anything else becomes the trimmed body text.
func DecodeProblem(status int, body io.Reader) ProblemDetail {
	problem := ProblemDetail{Status: status, Title: http.StatusText(status)}
	raw, err := io.ReadAll(io.LimitReader(body, maxProblemBytes))
	if err != nil || len(raw) == 0 {
		return problem
	}
	var doc struct {
		ProblemDetail
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		problem.Detail = strings.TrimSpace(string(raw))
		return problem
	}
	if doc.Title != "" {
		problem.Title = doc.Title
	}
	problem.Type = doc.Type
	switch {
	case doc.Detail != "":
		problem.Detail = doc.Detail
	case doc.Error != "":
		problem.Detail = doc.Error
	case doc.Message != "":
		problem.Detail = doc.Message
	}
	return problem
}
