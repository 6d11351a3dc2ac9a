package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"socialclient/services"

	"github.com/gin-gonic/gin"
)

var (
	client *services.Client
	hub    *services.WSConnManager
	unbind func()
)

// Bind sets the client and push hub every handler works with. Open threads
// and profile views are dropped whenever the session changes hands.
func Bind(c *services.Client, h *services.WSConnManager) {
	if unbind != nil {
		unbind()
	}
	client = c
	hub = h
	resetViews()
	unbind = c.Session.Subscribe(func(ev services.ClientEvent) {
		switch ev.Kind {
		case services.EventLogin, services.EventLogout, services.EventExpired:
			resetViews()
		}
	})
}

func resetViews() {
	resetThreads()
	resetProfiles()
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.Query(name)); err == nil && v >= 0 {
		return v
	}
	return def
}

// respondError maps client errors onto bridge status codes.
func respondError(c *gin.Context, err error) {
	var vErr *services.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "fields": vErr.Fields})
		return
	}
	switch {
	case errors.Is(err, services.ErrNotAuthenticated), errors.Is(err, services.ErrSessionExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	case errors.Is(err, services.ErrEmptyPost), errors.Is(err, services.ErrEmptyComment), errors.Is(err, services.ErrUnknownFeed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, services.ErrThreadClosed), errors.Is(err, services.ErrCommentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, services.ErrFollowInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, services.ErrNoUserID):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	var apiErr *services.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.Status
		switch apiErr.Kind {
		case services.KindTransport, services.KindServer:
			status = http.StatusBadGateway
		case services.KindSessionExpired:
			status = http.StatusUnauthorized
		}
		if status == 0 {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": apiErr.Message, "kind": apiErr.Kind})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}
