package handlers

import (
	"io"
	"net/http"

	"socialclient/models"

	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 32 << 20

// GetFeed returns one feed view, loading it on first use.
func GetFeed(c *gin.Context) {
	kind := models.FeedKind(c.Param("kind"))
	if c.Query("refresh") == "true" {
		client.Feeds.Invalidate(kind)
	}
	posts, err := client.Feeds.LoadFeed(c.Request.Context(), kind, queryInt(c, "page", 0), queryInt(c, "size", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func ToggleLike(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := client.Feeds.ToggleLike(c.Request.Context(), postID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post_id": postID, "liked": client.Feeds.IsLiked(postID)})
}

// CreatePost accepts multipart form data with content and mediaFiles.
func CreatePost(c *gin.Context) {
	content := c.PostForm("content")
	var files []models.MediaFile
	if form, err := c.MultipartForm(); err == nil {
		for _, fh := range form.File["mediaFiles"] {
			if fh.Size > maxUploadBytes {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
				return
			}
			f, err := fh.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid upload"})
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid upload"})
				return
			}
			files = append(files, models.MediaFile{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}
	post, err := client.Feeds.CreatePost(c.Request.Context(), content, files)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func GetLikers(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	users, err := client.Feeds.FetchLikers(c.Request.Context(), postID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
