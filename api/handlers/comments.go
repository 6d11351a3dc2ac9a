package handlers

import (
	"net/http"
	"sync"

	"socialclient/models"
	"socialclient/services"

	"github.com/gin-gonic/gin"
)

var (
	threadsMu sync.Mutex
	threads   = map[int64]*services.CommentThread{}
)

func resetThreads() {
	threadsMu.Lock()
	defer threadsMu.Unlock()
	for _, t := range threads {
		t.Close()
	}
	threads = map[int64]*services.CommentThread{}
}

func lookupThread(c *gin.Context) (*services.CommentThread, bool) {
	postID, ok := paramID(c, "postId")
	if !ok {
		return nil, false
	}
	threadsMu.Lock()
	t, found := threads[postID]
	threadsMu.Unlock()
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Thread is not open"})
		return nil, false
	}
	return t, true
}

func threadBody(t *services.CommentThread) gin.H {
	comments := t.Comments()
	liked := map[int64]bool{}
	for _, id := range commentIDs(comments) {
		if t.IsLiked(id) {
			liked[id] = true
		}
	}
	return gin.H{"post_id": t.PostID(), "comments": comments, "liked": liked}
}

// OpenThread opens (or reopens) the comment thread of a post.
func OpenThread(c *gin.Context) {
	postID, ok := paramID(c, "postId")
	if !ok {
		return
	}
	t, err := client.Comments.OpenThread(c.Request.Context(), postID)
	if err != nil {
		respondError(c, err)
		return
	}
	threadsMu.Lock()
	if old, found := threads[postID]; found {
		old.Close()
	}
	threads[postID] = t
	threadsMu.Unlock()
	c.JSON(http.StatusOK, threadBody(t))
}

func GetThread(c *gin.Context) {
	t, ok := lookupThread(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, threadBody(t))
}

func CloseThread(c *gin.Context) {
	postID, ok := paramID(c, "postId")
	if !ok {
		return
	}
	threadsMu.Lock()
	if t, found := threads[postID]; found {
		t.Close()
		delete(threads, postID)
	}
	threadsMu.Unlock()
	c.Status(http.StatusNoContent)
}

type commentRequest struct {
	Text string `json:"text" binding:"required"`
}

func PostComment(c *gin.Context) {
	t, ok := lookupThread(c)
	if !ok {
		return
	}
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	comment, err := t.PostComment(c.Request.Context(), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func PostReply(c *gin.Context) {
	t, ok := lookupThread(c)
	if !ok {
		return
	}
	commentID, ok := paramID(c, "commentId")
	if !ok {
		return
	}
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	reply, err := t.PostReply(c.Request.Context(), commentID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reply)
}

func ToggleCommentLike(c *gin.Context) {
	t, ok := lookupThread(c)
	if !ok {
		return
	}
	commentID, ok := paramID(c, "commentId")
	if !ok {
		return
	}
	if err := t.ToggleCommentLike(c.Request.Context(), commentID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comment_id": commentID, "liked": t.IsLiked(commentID)})
}

func ExpandReplies(c *gin.Context) {
	t, ok := lookupThread(c)
	if !ok {
		return
	}
	commentID, ok := paramID(c, "commentId")
	if !ok {
		return
	}
	replies, err := t.ExpandReplies(c.Request.Context(), commentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"replies": replies})
}

func commentIDs(list []*models.Comment) []int64 {
	var ids []int64
	models.WalkComments(list, func(c *models.Comment) bool {
		ids = append(ids, c.ID)
		return true
	})
	return ids
}
