package main

import (
	"errors"
	"net/http"
	"time"

	"showtime-booking/shared"

	"github.com/gin-gonic/gin"
)

func handleGetAvailability(c *gin.Context) {
	sessionID := c.Param("id")

	avail, err := GetAvailability(sessionID)
	if errors.Is(err, errSessionNotFound) {
		c.JSON(http.StatusNotFound, shared.ErrorResponse{Error: "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, shared.ErrorResponse{Error: "failed to get availability"})
		return
	}

	c.JSON(http.StatusOK, avail)
}

func handleLockSeats(c *gin.Context) {
	sessionID := c.Param("id")

	var req shared.LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, shared.ErrorResponse{Error: "invalid request"})
		return
	}
	if req.HolderID == "" || len(req.SeatIDs) == 0 {
		c.JSON(http.StatusBadRequest, shared.ErrorResponse{Error: "holder_id and seat_ids are required"})
		return
	}

	expiresAt, err := LockSeats(sessionID, req.HolderID, req.SeatIDs, time.Duration(req.TTLSeconds)*time.Second)
	switch {
	case errors.Is(err, errSessionNotFound) || errors.Is(err, errSeatNotFound):
		c.JSON(http.StatusNotFound, shared.ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, errSeatConflict) || errors.Is(err, errSeatBooked):
		c.JSON(http.StatusConflict, shared.LockResponse{Success: false})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, shared.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, shared.LockResponse{Success: true, ExpiresAt: expiresAt.Unix()})
}

func handleUnlockSeats(c *gin.Context) {
	sessionID := c.Param("id")

	var req shared.UnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, shared.ErrorResponse{Error: "invalid request"})
		return
	}
	if req.HolderID == "" || len(req.SeatIDs) == 0 {
		c.JSON(http.StatusBadRequest, shared.ErrorResponse{Error: "holder_id and seat_ids are required"})
		return
	}

	UnlockSeats(sessionID, req.HolderID, req.SeatIDs)
	c.JSON(http.StatusOK, shared.UnlockResponse{Success: true})
}

func handleBookSeats(c *gin.Context) {
	sessionID := c.Param("id")

	var req shared.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, shared.ErrorResponse{Error: "invalid request"})
		return
	}
	if req.HolderID == "" || len(req.SeatIDs) == 0 {
		c.JSON(http.StatusBadRequest, shared.ErrorResponse{Error: "holder_id and seat_ids are required"})
		return
	}

	if err := BookSeats(sessionID, req.HolderID, req.SeatIDs); err != nil {
		c.JSON(http.StatusConflict, shared.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "seats booked successfully"})
}
