package models

// Comment is a node of a post's comment tree. Replies is meaningful only
// when RepliesLoaded is set; it then holds the full list fetched from the server.
type Comment struct {
	ID            int64      `json:"id"`
	PostID        int64      `json:"postId"`
	Author        AuthorRef  `json:"author"`
	Text          string     `json:"text"`
	LikeCount     int        `json:"likeCount"`
	ReplyCount    int        `json:"replyCount"`
	CreatedAt     string     `json:"createdAt"`
	Replies       []*Comment `json:"replies,omitempty"`
	RepliesLoaded bool       `json:"repliesLoaded"`
}

// CommentResponse is the server record of a comment.
type CommentResponse struct {
	ID          int64             `json:"id"`
	PostID      int64             `json:"postId"`
	User        AuthorResponse    `json:"user"`
	CommentText string            `json:"commentText"`
	LikeCount   int               `json:"likeCount"`
	ReplyCount  int               `json:"replyCount"`
	CreatedAt   string            `json:"createdAt"`
	UpdatedAt   string            `json:"updatedAt"`
	Replies     []CommentResponse `json:"replies"`
}

type CreateCommentRequest struct {
	UserID          int64  `json:"userId"`
	PostID          int64  `json:"postId"`
	ParentCommentID *int64 `json:"parentCommentId"`
	CommentText     string `json:"commentText"`
}

// WalkComments visits every node depth-first, replies after their parent.
// Returning false from fn stops the walk.
func WalkComments(list []*Comment, fn func(*Comment) bool) bool {
	for _, c := range list {
		if !fn(c) {
			return false
		}
		if !WalkComments(c.Replies, fn) {
			return false
		}
	}
	return true
}

// UpdateComment applies fn to the node with the given id at any depth and
// reports whether it was found.
func UpdateComment(list []*Comment, id int64, fn func(*Comment)) bool {
	found := false
	WalkComments(list, func(c *Comment) bool {
		if c.ID == id {
			fn(c)
			found = true
			return false
		}
		return true
	})
	return found
}

// FindComment returns the node with the given id, or nil.
func FindComment(list []*Comment, id int64) *Comment {
	var hit *Comment
	UpdateComment(list, id, func(c *Comment) { hit = c })
	return hit
}

// CloneComments deep-copies a comment tree.
func CloneComments(list []*Comment) []*Comment {
	if list == nil {
		return nil
	}
	out := make([]*Comment, 0, len(list))
	for _, c := range list {
		cp := *c
		cp.Replies = CloneComments(c.Replies)
		out = append(out, &cp)
	}
	return out
}
