package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/matgreaves/brokerd/broker"
)

// controlAction adapts one of the broker's internal $node.* actions into a
// GET endpoint that returns its result as JSON.
func controlAction(b *broker.Broker, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		result, err := b.Call(ctx, action, nil)
		writeJSON(w, result, err)
	}
}

type callRequest struct {
	Params any `json:"params"`
}

// controlCall exposes a generic POST /v1/call/<action> passthrough, body is
// a JSON object with a "params" field forwarded to broker.Call.
func controlCall(b *broker.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		action := strings.TrimPrefix(r.URL.Path, "/v1/call/")
		if action == "" {
			http.Error(w, "missing action", http.StatusBadRequest)
			return
		}
		var req callRequest
		if r.ContentLength != 0 {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
				return
			}
			if len(body) > 0 {
				if err := json.Unmarshal(body, &req); err != nil {
					http.Error(w, "decode body: "+err.Error(), http.StatusBadRequest)
					return
				}
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		result, err := b.Call(ctx, action, req.Params)
		writeJSON(w, result, err)
	}
}

type controlResponse struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, result any, callErr error) {
	w.Header().Set("Content-Type", "application/json")
	resp := controlResponse{Result: result}
	status := http.StatusOK
	if callErr != nil {
		resp.Error = callErr.Error()
		resp.Result = nil
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
