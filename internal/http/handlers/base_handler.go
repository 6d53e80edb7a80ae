// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"travelflow/internal/ai"
	"travelflow/internal/modules/chat"
	"travelflow/internal/modules/itinerary"
	"travelflow/internal/modules/location"
)

// generationFailedMessage is the only detail a client sees for a failed generation.
const generationFailedMessage = "Failed to generate itinerary. Please try again."

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeItineraryError(c *gin.Context, err error) {
	var genErr *ai.GenerationError
	switch {
	case errors.Is(err, itinerary.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, itinerary.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, itinerary.ErrGenerationInFlight):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, itinerary.ErrQuotaExceeded):
		writeError(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, itinerary.ErrArchiveDisabled), errors.Is(err, itinerary.ErrQuotaDisabled):
		writeError(c, http.StatusNotImplemented, err.Error())
	case errors.As(err, &genErr):
		writeError(c, http.StatusBadGateway, generationFailedMessage)
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrTurnInFlight):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeLocationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, location.ErrInvalidCoordinates):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		writeChatError(c, err)
	}
}
