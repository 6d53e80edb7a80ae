// README: Itinerary handlers (generate, current, reset, history).
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"travelflow/internal/ai"
	"travelflow/internal/modules/itinerary"
)

type ItineraryHandler struct {
	itinerary *itinerary.Service
}

func NewItineraryHandler(svc *itinerary.Service) *ItineraryHandler {
	return &ItineraryHandler{itinerary: svc}
}

type generateReq struct {
	PlannerID   string `json:"planner_id"`
	Destination string `json:"destination"`
	Days        *int   `json:"days"`
	Vibe        string `json:"vibe"`
	Interests   string `json:"interests"`
}

// Generate handles POST /api/itineraries. Generation runs within the
// request; the service applies its own timeout.
func (h *ItineraryHandler) Generate(c *gin.Context) {
	var req generateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	days := ai.DefaultTripDays
	if req.Days != nil {
		days = *req.Days
	}
	vibe := ai.VibeRelaxed
	if strings.TrimSpace(req.Vibe) != "" {
		vibe = ai.Vibe(req.Vibe)
	}

	plan, err := h.itinerary.Generate(c.Request.Context(), req.PlannerID, ai.TripRequest{
		Destination: req.Destination,
		Days:        days,
		Vibe:        vibe,
		Interests:   req.Interests,
	})
	if err != nil {
		writeItineraryError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, plan)
}

// Current handles GET /api/itineraries/current?planner_id=.
func (h *ItineraryHandler) Current(c *gin.Context) {
	plannerID := strings.TrimSpace(c.Query("planner_id"))
	if plannerID == "" {
		writeError(c, http.StatusBadRequest, "missing planner_id")
		return
	}
	plan, err := h.itinerary.Current(c.Request.Context(), plannerID)
	if err != nil {
		writeItineraryError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, plan)
}

// Reset handles DELETE /api/itineraries/current?planner_id=.
func (h *ItineraryHandler) Reset(c *gin.Context) {
	plannerID := strings.TrimSpace(c.Query("planner_id"))
	if plannerID == "" {
		writeError(c, http.StatusBadRequest, "missing planner_id")
		return
	}
	h.itinerary.Reset(plannerID)
	c.Status(http.StatusNoContent)
}

// History handles GET /api/itineraries/history?planner_id=&limit=.
func (h *ItineraryHandler) History(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	plans, err := h.itinerary.History(c.Request.Context(), strings.TrimSpace(c.Query("planner_id")), limit)
	if err != nil {
		writeItineraryError(c, err)
		return
	}
	if plans == nil {
		plans = []itinerary.Plan{}
	}
	writeJSON(c, http.StatusOK, gin.H{"itineraries": plans})
}

// Allowance handles GET /api/itineraries/allowance?planner_id=.
func (h *ItineraryHandler) Allowance(c *gin.Context) {
	plannerID := strings.TrimSpace(c.Query("planner_id"))
	left, err := h.itinerary.Allowance(c.Request.Context(), plannerID)
	if err != nil {
		writeItineraryError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"planner_id": plannerID, "remaining": left})
}
