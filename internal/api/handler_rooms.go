package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetUsers handles GET /api/users.
func (h *Handler) GetUsers(c *gin.Context) {
	users, err := h.store.Users(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

// GetRooms handles GET /api/users/:user_id/rooms.
func (h *Handler) GetRooms(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	rooms, err := h.store.RoomsForUser(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve rooms"})
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// GetRoomHistory handles GET /api/rooms/:room_id/history.
func (h *Handler) GetRoomHistory(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}

	obs, err := h.store.History(c.Request.Context(), roomID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve history"})
		return
	}
	c.JSON(http.StatusOK, obs)
}
