package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func GetDarkMode(c *gin.Context) {
	enabled, err := client.Store.DarkMode(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read preference"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dark_mode": enabled})
}

func SetDarkMode(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"dark_mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := client.Store.SetDarkMode(c.Request.Context(), *req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save preference"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dark_mode": *req.Enabled})
}
