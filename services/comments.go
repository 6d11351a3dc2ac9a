package services

import (
	"context"
	"strings"
	"sync"

	"socialclient/logger"
	"socialclient/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultLikeCheckWorkers = 4

type commentAPI interface {
	Comments(ctx context.Context, postID int64) ([]models.CommentResponse, error)
	CreateComment(ctx context.Context, postID, userID int64, text string, parentID *int64) (*models.CommentResponse, error)
	Replies(ctx context.Context, postID, commentID int64) ([]models.CommentResponse, error)
	LikeComment(ctx context.Context, commentID int64) error
	UnlikeComment(ctx context.Context, commentID int64) error
	CheckCommentLike(ctx context.Context, commentID int64) (bool, error)
}

type userResolver interface {
	RequireAuth() error
	UserID(ctx context.Context) (int64, bool)
}

// commentCounter receives comment count changes for feed posts.
type commentCounter interface {
	BumpCommentCount(postID int64, delta int)
}

type CommentOptions struct {
	RollbackOnFailure bool
	AvatarURLTemplate string
	LikeCheckWorkers  int
}

type CommentEngine struct {
	api      commentAPI
	users    userResolver
	counts   commentCounter
	notifier Notifier
	opts     CommentOptions
}

func NewCommentEngine(api commentAPI, users userResolver, counts commentCounter, notifier Notifier, opts CommentOptions) *CommentEngine {
	if opts.LikeCheckWorkers <= 0 {
		opts.LikeCheckWorkers = defaultLikeCheckWorkers
	}
	return &CommentEngine{api: api, users: users, counts: counts, notifier: notifier, opts: opts}
}

type replyLoad struct {
	done chan struct{}
	err  error
}

// CommentThread is the open comment view of one post.
type CommentThread struct {
	engine *CommentEngine
	postID int64

	mu        sync.Mutex
	comments  []*models.Comment
	liked     map[int64]bool
	expanded  map[int64]bool
	expanding map[int64]*replyLoad
	closed    bool
}

// OpenThread fetches the top-level comments of a post and resolves which of
// them (and of any inline replies) the current user has liked.
func (e *CommentEngine) OpenThread(ctx context.Context, postID int64) (*CommentThread, error) {
	list, err := e.api.Comments(ctx, postID)
	if err != nil {
		logger.Log.Error("failed to load comments", zap.Int64("post_id", postID), zap.Error(err))
		notify(e.notifier, NoticeError, ErrorMessage(err, "Failed to load comments"))
		return nil, err
	}
	comments := mapComments(e.opts.AvatarURLTemplate, list)
	t := &CommentThread{
		engine:    e,
		postID:    postID,
		comments:  comments,
		liked:     e.checkLikes(ctx, comments),
		expanded:  map[int64]bool{},
		expanding: map[int64]*replyLoad{},
	}
	models.WalkComments(comments, func(c *models.Comment) bool {
		if c.RepliesLoaded {
			t.expanded[c.ID] = true
		}
		return true
	})
	return t, nil
}

// checkLikes asks the server about every node of list. Failed checks count as not liked.
func (e *CommentEngine) checkLikes(ctx context.Context, list []*models.Comment) map[int64]bool {
	var ids []int64
	models.WalkComments(list, func(c *models.Comment) bool {
		ids = append(ids, c.ID)
		return true
	})

	var mu sync.Mutex
	liked := make(map[int64]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.LikeCheckWorkers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			ok, err := e.api.CheckCommentLike(gctx, id)
			if err != nil {
				logger.Log.Warn("comment like check failed", zap.Int64("comment_id", id), zap.Error(err))
				return nil
			}
			if ok {
				mu.Lock()
				liked[id] = true
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return liked
}

func (t *CommentThread) PostID() int64 { return t.postID }

// Comments returns a deep copy of the loaded tree.
func (t *CommentThread) Comments() []*models.Comment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return models.CloneComments(t.comments)
}

func (t *CommentThread) IsLiked(commentID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.liked[commentID]
}

func (t *CommentThread) IsExpanded(commentID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expanded[commentID]
}

func (t *CommentThread) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *CommentThread) author(ctx context.Context, text string) (int64, string, error) {
	if t.isClosed() {
		return 0, "", ErrThreadClosed
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, "", ErrEmptyComment
	}
	if err := t.engine.users.RequireAuth(); err != nil {
		return 0, "", err
	}
	uid, ok := t.engine.users.UserID(ctx)
	if !ok {
		notify(t.engine.notifier, NoticeError, "Could not determine the current user")
		return 0, "", ErrNoUserID
	}
	return uid, text, nil
}

// PostComment adds a top-level comment and bumps the post's comment count.
func (t *CommentThread) PostComment(ctx context.Context, text string) (*models.Comment, error) {
	uid, text, err := t.author(ctx, text)
	if err != nil {
		return nil, err
	}
	resp, err := t.engine.api.CreateComment(ctx, t.postID, uid, text, nil)
	if err != nil {
		logger.Log.Error("failed to post comment", zap.Int64("post_id", t.postID), zap.Error(err))
		notify(t.engine.notifier, NoticeError, ErrorMessage(err, "Failed to post comment"))
		return nil, err
	}
	t.engine.counts.BumpCommentCount(t.postID, 1)
	c := mapComment(t.engine.opts.AvatarURLTemplate, *resp)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrThreadClosed
	}
	t.comments = append(t.comments, c)
	return models.CloneComments([]*models.Comment{c})[0], nil
}

// PostReply adds a reply under parentID and reloads that parent's replies.
func (t *CommentThread) PostReply(ctx context.Context, parentID int64, text string) (*models.Comment, error) {
	uid, text, err := t.author(ctx, text)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	exists := models.FindComment(t.comments, parentID) != nil
	t.mu.Unlock()
	if !exists {
		return nil, ErrCommentNotFound
	}

	pid := parentID
	resp, err := t.engine.api.CreateComment(ctx, t.postID, uid, text, &pid)
	if err != nil {
		logger.Log.Error("failed to post reply", zap.Int64("comment_id", parentID), zap.Error(err))
		notify(t.engine.notifier, NoticeError, ErrorMessage(err, "Failed to post reply"))
		return nil, err
	}
	t.engine.counts.BumpCommentCount(t.postID, 1)
	reply := mapComment(t.engine.opts.AvatarURLTemplate, *resp)

	replies, fetchErr := t.engine.api.Replies(ctx, t.postID, parentID)
	var liked map[int64]bool
	var mapped []*models.Comment
	if fetchErr == nil {
		mapped = mapComments(t.engine.opts.AvatarURLTemplate, replies)
		liked = t.engine.checkLikes(ctx, mapped)
	} else {
		logger.Log.Warn("failed to reload replies", zap.Int64("comment_id", parentID), zap.Error(fetchErr))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrThreadClosed
	}
	models.UpdateComment(t.comments, parentID, func(c *models.Comment) {
		if fetchErr != nil {
			c.ReplyCount++
			// a partial list would pass for a complete one
			c.Replies = nil
			c.RepliesLoaded = false
			delete(t.expanded, parentID)
			return
		}
		c.Replies = mapped
		c.RepliesLoaded = true
		c.ReplyCount = len(mapped)
		t.expanded[parentID] = true
	})
	for id, v := range liked {
		t.liked[id] = v
	}
	return reply, nil
}

// ToggleCommentLike flips a comment like with the same rollback rules as post likes.
func (t *CommentThread) ToggleCommentLike(ctx context.Context, commentID int64) error {
	if err := t.engine.users.RequireAuth(); err != nil {
		return err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrThreadClosed
	}
	if models.FindComment(t.comments, commentID) == nil {
		t.mu.Unlock()
		return ErrCommentNotFound
	}
	was := t.liked[commentID]
	target := !was
	t.applyLikeLocked(commentID, target)
	t.mu.Unlock()

	var err error
	if target {
		err = t.engine.api.LikeComment(ctx, commentID)
	} else {
		err = t.engine.api.UnlikeComment(ctx, commentID)
	}
	if err == nil {
		return nil
	}
	logger.Log.Error("failed to toggle comment like", zap.Int64("comment_id", commentID), zap.Error(err))
	notify(t.engine.notifier, NoticeError, ErrorMessage(err, "Failed to update comment like"))

	if t.engine.opts.RollbackOnFailure {
		t.mu.Lock()
		if !t.closed && t.liked[commentID] == target {
			t.applyLikeLocked(commentID, was)
			optimisticRollbacks.WithLabelValues("comment_like").Inc()
		}
		t.mu.Unlock()
	}
	return err
}

func (t *CommentThread) applyLikeLocked(commentID int64, liked bool) {
	if t.liked[commentID] == liked {
		return
	}
	t.liked[commentID] = liked
	delta := -1
	if liked {
		delta = 1
	}
	models.WalkComments(t.comments, func(c *models.Comment) bool {
		if c.ID == commentID {
			c.LikeCount += delta
		}
		return true
	})
}

// ExpandReplies loads the replies of a comment once. Later calls return the
// cached list; concurrent calls share one fetch.
func (t *CommentThread) ExpandReplies(ctx context.Context, commentID int64) ([]*models.Comment, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrThreadClosed
	}
	node := models.FindComment(t.comments, commentID)
	if node == nil {
		t.mu.Unlock()
		return nil, ErrCommentNotFound
	}
	if t.expanded[commentID] {
		out := models.CloneComments(node.Replies)
		t.mu.Unlock()
		return out, nil
	}
	if l, ok := t.expanding[commentID]; ok {
		t.mu.Unlock()
		select {
		case <-l.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if l.err != nil {
			return nil, l.err
		}
		return t.replies(commentID)
	}
	load := &replyLoad{done: make(chan struct{})}
	t.expanding[commentID] = load
	t.mu.Unlock()

	load.err = t.fetchReplies(ctx, commentID)
	t.mu.Lock()
	if t.expanding != nil {
		delete(t.expanding, commentID)
	}
	t.mu.Unlock()
	close(load.done)

	if load.err != nil {
		return nil, load.err
	}
	return t.replies(commentID)
}

func (t *CommentThread) fetchReplies(ctx context.Context, commentID int64) error {
	list, err := t.engine.api.Replies(ctx, t.postID, commentID)
	if err != nil {
		logger.Log.Error("failed to load replies", zap.Int64("comment_id", commentID), zap.Error(err))
		notify(t.engine.notifier, NoticeError, ErrorMessage(err, "Failed to load replies"))
		return err
	}
	mapped := mapComments(t.engine.opts.AvatarURLTemplate, list)
	liked := t.engine.checkLikes(ctx, mapped)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrThreadClosed
	}
	models.UpdateComment(t.comments, commentID, func(c *models.Comment) {
		c.Replies = mapped
		c.RepliesLoaded = true
		c.ReplyCount = len(mapped)
	})
	t.expanded[commentID] = true
	for id, v := range liked {
		t.liked[id] = v
	}
	return nil
}

func (t *CommentThread) replies(commentID int64) ([]*models.Comment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrThreadClosed
	}
	node := models.FindComment(t.comments, commentID)
	if node == nil {
		return nil, ErrCommentNotFound
	}
	return models.CloneComments(node.Replies), nil
}

// Close discards the thread. Results of calls still in flight are dropped.
func (t *CommentThread) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.comments = nil
	t.liked = map[int64]bool{}
	t.expanded = map[int64]bool{}
	t.expanding = nil
}
