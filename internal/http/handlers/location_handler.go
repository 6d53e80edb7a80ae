// README: Location permission handlers for chat conversations.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"travelflow/internal/modules/chat"
	"travelflow/internal/modules/location"
	"travelflow/internal/types"
)

type LocationHandler struct {
	chat     *chat.Service
	location *location.Service
}

func NewLocationHandler(chatSvc *chat.Service, locSvc *location.Service) *LocationHandler {
	return &LocationHandler{chat: chatSvc, location: locSvc}
}

type locationReq struct {
	Granted   bool     `json:"granted"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Reason    string   `json:"reason"`
}

// Report handles POST /api/chat/conversations/:id/location.
func (h *LocationHandler) Report(c *gin.Context) {
	id := c.Param("id")
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if _, err := h.chat.Get(c.Request.Context(), id); err != nil {
		writeChatError(c, err)
		return
	}

	report := location.Report{Granted: req.Granted, Reason: req.Reason}
	if req.Latitude != nil && req.Longitude != nil {
		report.Point = &types.Point{Lat: *req.Latitude, Lng: *req.Longitude}
	}
	perm, err := h.location.Apply(c.Request.Context(), id, report)
	if err != nil {
		writeLocationError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, perm)
}

// Status handles GET /api/chat/conversations/:id/location.
func (h *LocationHandler) Status(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.chat.Get(c.Request.Context(), id); err != nil {
		writeChatError(c, err)
		return
	}
	perm, err := h.location.Status(c.Request.Context(), id)
	if err != nil {
		writeLocationError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, perm)
}
