// Package handlers agrupa os handlers HTTP do orquestrador.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
)

const maxRequestBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type GenerateRequest struct {
	UserID             string           `json:"userId" validate:"required"`
	Profile            map[string]any   `json:"profile" validate:"required"`
	AvailableExercises []map[string]any `json:"available_exercises" validate:"required"`
	History            []map[string]any `json:"history"`
}

type AdaptRequest struct {
	UserID             string           `json:"userId" validate:"required"`
	Profile            map[string]any   `json:"profile" validate:"required"`
	CurrentRoutine     map[string]any   `json:"currentRoutine" validate:"required"`
	AvailableExercises []map[string]any `json:"available_exercises" validate:"required"`
	RecentLogs         []map[string]any `json:"recentLogs"`
	Feedback           *string          `json:"feedback" validate:"omitempty,max=500"`
}

type ExplainRequest struct {
	Routine map[string]any `json:"routine" validate:"required"`
	UserID  string         `json:"userId"`
	Profile map[string]any `json:"profile"`
}

type RoutineResponse struct {
	UserID  string         `json:"userId"`
	Routine map[string]any `json:"routine"`
}

type ExplainResponse struct {
	Explanation string `json:"explanation"`
}

// GenerateRoutine responde com uma rotina de exemplo.
// Routine generation itself lives behind the LLM integration, not in this service.
func GenerateRoutine(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, RoutineResponse{
		UserID:  req.UserID,
		Routine: placeholderRoutine(1, 3, 10),
	})
}

func AdaptRoutine(w http.ResponseWriter, r *http.Request) {
	var req AdaptRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, RoutineResponse{
		UserID:  req.UserID,
		Routine: placeholderRoutine(2, 4, 8),
	})
}

func ExplainRoutine(w http.ResponseWriter, r *http.Request) {
	var req ExplainRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ExplainResponse{
		Explanation: "This routine focuses on compound lifts to build overall strength.",
	})
}

func placeholderRoutine(version, sets, reps int) map[string]any {
	day := func(name, exercise string) map[string]any {
		return map[string]any{
			"day":     name,
			"workout": []map[string]any{{"name": exercise, "sets": sets, "reps": reps}},
		}
	}
	return map[string]any{
		"version": version,
		"days": []map[string]any{
			day("Mon", "Squat"),
			day("Wed", "Bench"),
			day("Fri", "Deadlift"),
		},
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return errors.New("body must be a valid JSON object")
	}
	if decoder.More() {
		return errors.New("body must contain a single JSON object")
	}

	return validate.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
