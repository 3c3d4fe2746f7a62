package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"laundry-status-exporter/internal/model"
	"laundry-status-exporter/internal/status"
)

// machineResponse is the flattened machine plus its latest status.
type machineResponse struct {
	ID               int64      `json:"id"`
	Location         string     `json:"location"`
	Name             string     `json:"name"`
	Kind             string     `json:"kind"`
	Seq              int        `json:"seq"`
	State            string     `json:"state,omitempty"`
	Error            string     `json:"error,omitempty"`
	IsAvailable      bool       `json:"isAvailable"`
	RemainingSeconds int64      `json:"remainingSeconds"`
	FinishTime       *time.Time `json:"finishTime"`
	ObservedAt       *time.Time `json:"observedAt"`
}

// GetMachines handles GET /api/machines.
func (h *Handler) GetMachines(c *gin.Context) {
	machines, err := h.store.Machines(c.Request.Context())
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to retrieve machines", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve machines"})
		return
	}

	location := c.Query("location")
	response := make([]machineResponse, 0, len(machines))
	for _, m := range machines {
		if location != "" && m.Location != location {
			continue
		}
		response = append(response, newMachineResponse(m))
	}
	c.JSON(http.StatusOK, response)
}

func newMachineResponse(m model.Machine) machineResponse {
	resp := machineResponse{
		ID:       m.ID,
		Location: m.Location,
		Name:     m.Name,
		Kind:     m.Kind,
		Seq:      m.Seq,
	}

	st := m.Status
	if st == nil {
		return resp
	}

	observedAt := st.ObservedAt
	resp.ObservedAt = &observedAt
	resp.State = st.State
	resp.Error = st.Error
	resp.IsAvailable = st.State == string(status.StateKindIdle)
	if st.State == string(status.StateKindRunning) && st.RemainingSeconds > 0 {
		resp.RemainingSeconds = st.RemainingSeconds
		finish := st.ObservedAt.Add(time.Duration(st.RemainingSeconds) * time.Second)
		resp.FinishTime = &finish
	}
	return resp
}
