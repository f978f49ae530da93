// internal/api/handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	stderrors "errors"

	"semtree/internal/errors"
	"semtree/internal/pass"
)

// Handler serves the inspection API over a single tracked root.
type Handler struct {
	runner *pass.Runner
	logger *zap.Logger
	mu     sync.Mutex // serializes verify passes
}

func NewHandler(runner *pass.Runner, logger *zap.Logger) *Handler {
	return &Handler{runner: runner, logger: logger}
}

type snapshotSummary struct {
	PassID    string `json:"pass_id"`
	RootID    string `json:"root_id"`
	RootHash  string `json:"root_hash"`
	Nodes     int    `json:"nodes"`
	CreatedAt string `json:"created_at"`
}

// GetSnapshot returns the latest persisted snapshot summary.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap, err := h.runner.Latest()
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no snapshot found, run build first")
		return
	}

	writeJSON(w, http.StatusOK, snapshotSummary{
		PassID:    snap.ID,
		RootID:    snap.RootID,
		RootHash:  snap.RootHash,
		Nodes:     len(snap.Nodes),
		CreatedAt: snap.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// GetReport returns the full report of the most recent pass run by this
// process.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	report := h.runner.LastReport()
	if report == nil {
		writeError(w, http.StatusNotFound, "no pass has run yet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// PostVerify runs a verify pass and returns its report.
func (h *Handler) PostVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	h.mu.Lock()
	report, err := h.runner.Verify(r.Context())
	h.mu.Unlock()
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// History lists retained passes, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	infos, err := h.runner.Store.History()
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	h.logger.Error("request failed", zap.Error(err))

	var terr *errors.Error
	if stderrors.As(err, &terr) && terr.Type == errors.ErrorTypeSnapshotCorrupt {
		writeError(w, http.StatusConflict, terr.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
