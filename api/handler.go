package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/eth-withdrawals/withdrawals-publisher/entities"
)

type StatusProvider interface {
	GetLastProcessedSlot(pipeline string) (uint64, error)
	GetSkippedSlots(pipeline string) ([]entities.SkippedSlot, error)
}

type HealthResponse struct {
	Status string `json:"status"`
}

type StatusResponse struct {
	Pipelines []entities.PipelineStatus `json:"pipelines"`
}

type SkippedSlotsResponse struct {
	Pipeline     string                 `json:"pipeline"`
	SkippedSlots []entities.SkippedSlot `json:"skippedSlots"`
}

type Handler struct {
	sp        StatusProvider
	pipelines []string
	logger    *zap.SugaredLogger
}

// NewHandler serves status for the given pipelines. Pipelines that did not process anything yet are left out.
func NewHandler(sp StatusProvider, pipelines []string, logger *zap.SugaredLogger) *Handler {
	return &Handler{sp: sp, pipelines: pipelines, logger: logger}
}

func (h *Handler) GetHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJson(w, HealthResponse{
		Status: "UP",
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	response := StatusResponse{Pipelines: []entities.PipelineStatus{}}
	for _, pipeline := range h.pipelines {
		slot, err := h.sp.GetLastProcessedSlot(pipeline)
		if errors.Is(err, entities.ErrStoreEntityNotFound) {
			continue
		}
		if err != nil {
			h.logger.Errorw("Error getting last processed slot", "pipeline", pipeline, "error", err)
			http.Error(w, "Error getting last processed slot", http.StatusInternalServerError)
			return
		}
		response.Pipelines = append(response.Pipelines, entities.PipelineStatus{Pipeline: pipeline, LastProcessedSlot: slot})
	}

	h.writeJson(w, response)
}

func (h *Handler) GetSkippedSlots(w http.ResponseWriter, r *http.Request) {
	pipeline := r.URL.Query().Get("pipeline")
	if !slices.Contains(h.pipelines, pipeline) {
		http.Error(w, "Unknown pipeline", http.StatusBadRequest)
		return
	}

	slots, err := h.sp.GetSkippedSlots(pipeline)
	if err != nil {
		h.logger.Errorw("Error getting skipped slots", "pipeline", pipeline, "error", err)
		http.Error(w, "Error getting skipped slots", http.StatusInternalServerError)
		return
	}
	if slots == nil {
		slots = []entities.SkippedSlot{}
	}

	h.writeJson(w, SkippedSlotsResponse{
		Pipeline:     pipeline,
		SkippedSlots: slots,
	})
}

func (h *Handler) writeJson(w http.ResponseWriter, response any) {
	w.Header().Add("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(response)
	if err != nil {
		h.logger.Errorw("Error encoding response", "error", err)
		http.Error(w, "Error encoding response", http.StatusInternalServerError)
		return
	}
}
