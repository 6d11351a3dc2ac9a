package handlers

import (
	"net/http"
	"sync"

	"socialclient/models"
	"socialclient/services"

	"github.com/gin-gonic/gin"
)

var (
	profilesMu sync.Mutex
	profiles   = map[int64]*services.ProfileView{}
)

func resetProfiles() {
	profilesMu.Lock()
	defer profilesMu.Unlock()
	profiles = map[int64]*services.ProfileView{}
}

func lookupProfile(userID int64) (*services.ProfileView, bool) {
	profilesMu.Lock()
	defer profilesMu.Unlock()
	view, ok := profiles[userID]
	return view, ok
}

// GetProfile fetches a profile and keeps its follow view for later toggles.
func GetProfile(c *gin.Context) {
	userID, ok := paramID(c, "userId")
	if !ok {
		return
	}
	view, err := client.Graph.OpenProfile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	profilesMu.Lock()
	profiles[userID] = view
	profilesMu.Unlock()
	c.JSON(http.StatusOK, gin.H{"profile": view.Profile(), "follow": view.State()})
}

func ToggleFollow(c *gin.Context) {
	userID, ok := paramID(c, "userId")
	if !ok {
		return
	}
	view, found := lookupProfile(userID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile is not open"})
		return
	}
	if err := view.ToggleFollow(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view.State())
}

func listHandler(fetch func(c *gin.Context, userID int64, page, size int) ([]models.UserSummary, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := paramID(c, "userId")
		if !ok {
			return
		}
		users, err := fetch(c, userID, queryInt(c, "page", 0), queryInt(c, "size", 0))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": users})
	}
}

var GetFollowers = listHandler(func(c *gin.Context, userID int64, page, size int) ([]models.UserSummary, error) {
	return client.Feeds.FetchFollowers(c.Request.Context(), userID, page, size)
})

var GetFollowing = listHandler(func(c *gin.Context, userID int64, page, size int) ([]models.UserSummary, error) {
	return client.Feeds.FetchFollowing(c.Request.Context(), userID, page, size)
})
