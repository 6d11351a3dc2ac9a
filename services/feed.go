package services

import (
	"context"
	"strings"
	"sync"

	"socialclient/logger"
	"socialclient/models"

	"go.uber.org/zap"
)

type feedAPI interface {
	Feed(ctx context.Context, kind models.FeedKind, page, size int) (*models.Page[models.PostResponse], error)
	LikePost(ctx context.Context, postID int64) error
	UnlikePost(ctx context.Context, postID int64) error
	CreatePost(ctx context.Context, content string, files []models.MediaFile) (*models.PostResponse, error)
	PostLikers(ctx context.Context, postID int64) ([]models.UserSummary, error)
	Followers(ctx context.Context, userID int64, page, size int) ([]models.UserSummary, error)
	Following(ctx context.Context, userID int64, page, size int) ([]models.UserSummary, error)
}

type authGuard interface {
	RequireAuth() error
}

type FeedOptions struct {
	PageSize          int
	RollbackOnFailure bool
	AvatarURLTemplate string
}

type feedLoad struct {
	page  int
	done  chan struct{}
	posts []models.Post
	err   error
}

type feedView struct {
	posts      []*models.Post
	loaded     bool
	page       int
	totalPages int
	inflight   *feedLoad
}

// FeedEngine holds the trending and following views and keeps like state
// consistent across them.
type FeedEngine struct {
	api      feedAPI
	guard    authGuard
	notifier Notifier
	opts     FeedOptions

	mu         sync.Mutex
	views      map[models.FeedKind]*feedView
	liked      map[int64]bool
	generation uint64
	// mutations counts local like changes; touched holds the count at the
	// last change of each post.
	mutations uint64
	touched   map[int64]uint64
}

func NewFeedEngine(api feedAPI, guard authGuard, notifier Notifier, opts FeedOptions) *FeedEngine {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	e := &FeedEngine{api: api, guard: guard, notifier: notifier, opts: opts}
	e.resetLocked()
	return e
}

func (e *FeedEngine) resetLocked() {
	e.views = make(map[models.FeedKind]*feedView, len(models.FeedKinds))
	for _, k := range models.FeedKinds {
		e.views[k] = &feedView{}
	}
	e.liked = map[int64]bool{}
	e.touched = map[int64]uint64{}
	e.generation++
}

// LoadFeed returns the posts of a view, fetching them when the view is not
// loaded or holds another page. Concurrent callers of the same page share one
// fetch; size <= 0 uses the configured page size.
//
// Posts liked or unliked after the fetch started keep their local like state.
func (e *FeedEngine) LoadFeed(ctx context.Context, kind models.FeedKind, page, size int) ([]models.Post, error) {
	if size <= 0 {
		size = e.opts.PageSize
	}
	e.mu.Lock()
	view, ok := e.views[kind]
	if !ok {
		e.mu.Unlock()
		return nil, ErrUnknownFeed
	}
	if view.loaded && view.page == page {
		posts := snapshot(view.posts)
		e.mu.Unlock()
		return posts, nil
	}
	if l := view.inflight; l != nil && l.page == page {
		e.mu.Unlock()
		select {
		case <-l.done:
			return clonePosts(l.posts), l.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	load := &feedLoad{page: page, done: make(chan struct{})}
	view.inflight = load
	gen, seq := e.generation, e.mutations
	e.mu.Unlock()

	resp, err := e.api.Feed(ctx, kind, page, size)

	e.mu.Lock()
	if view.inflight == load {
		view.inflight = nil
	}
	if err != nil {
		load.err = err
		e.mu.Unlock()
		close(load.done)
		logger.Log.Error("failed to load feed", zap.String("feed", string(kind)), zap.Error(err))
		notify(e.notifier, NoticeError, ErrorMessage(err, "Failed to load feed"))
		return nil, err
	}

	posts := mapPosts(e.opts.AvatarURLTemplate, resp.Content)
	if gen == e.generation {
		fresh := make([]*models.Post, 0, len(posts))
		for i := range posts {
			p := posts[i].Clone()
			if e.touched[p.ID] > seq {
				e.keepLocalLikeLocked(&p)
			} else {
				e.liked[p.ID] = p.IsLiked
				e.syncOthersLocked(kind, &p)
			}
			fresh = append(fresh, &p)
		}
		view.posts = fresh
		view.loaded = true
		view.page = page
		view.totalPages = resp.TotalPages
		posts = snapshot(fresh)
	}
	load.posts = posts
	e.mu.Unlock()
	close(load.done)
	logger.Log.Debug("feed loaded", zap.String("feed", string(kind)), zap.Int("posts", len(posts)))
	return clonePosts(posts), nil
}

// syncOthersLocked copies fresh server like state into other views holding the same post.
func (e *FeedEngine) syncOthersLocked(kind models.FeedKind, fresh *models.Post) {
	for k, v := range e.views {
		if k == kind {
			continue
		}
		for _, p := range v.posts {
			if p.ID == fresh.ID {
				p.IsLiked = fresh.IsLiked
				p.LikeCount = fresh.LikeCount
				p.CommentCount = fresh.CommentCount
			}
		}
	}
}

// keepLocalLikeLocked overlays the local like state on a post fetched before
// its last toggle.
func (e *FeedEngine) keepLocalLikeLocked(fetched *models.Post) {
	liked := e.liked[fetched.ID]
	for _, v := range e.views {
		for _, p := range v.posts {
			if p.ID == fetched.ID {
				fetched.IsLiked = p.IsLiked
				fetched.LikeCount = p.LikeCount
				return
			}
		}
	}
	if fetched.IsLiked != liked {
		fetched.IsLiked = liked
		if liked {
			fetched.LikeCount++
		} else if fetched.LikeCount > 0 {
			fetched.LikeCount--
		}
	}
}

// Posts returns the current contents of a loaded view.
func (e *FeedEngine) Posts(kind models.FeedKind) []models.Post {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.views[kind]; ok {
		return snapshot(v.posts)
	}
	return nil
}

func (e *FeedEngine) IsLiked(postID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.liked[postID]
}

// ToggleLike flips the like state of a post optimistically and confirms it
// with the server. A failed call is rolled back unless a newer toggle has
// already replaced the optimistic value.
func (e *FeedEngine) ToggleLike(ctx context.Context, postID int64) error {
	if err := e.guard.RequireAuth(); err != nil {
		return err
	}

	e.mu.Lock()
	was := e.liked[postID]
	target := !was
	e.applyLikeLocked(postID, target)
	e.mu.Unlock()

	var err error
	if target {
		err = e.api.LikePost(ctx, postID)
	} else {
		err = e.api.UnlikePost(ctx, postID)
	}
	if err == nil {
		return nil
	}

	msg := "Failed to like post"
	if !target {
		msg = "Failed to unlike post"
	}
	logger.Log.Error(strings.ToLower(msg), zap.Int64("post_id", postID), zap.Error(err))
	notify(e.notifier, NoticeError, ErrorMessage(err, msg))

	if e.opts.RollbackOnFailure {
		e.mu.Lock()
		if e.liked[postID] == target {
			e.applyLikeLocked(postID, was)
			optimisticRollbacks.WithLabelValues("post_like").Inc()
		}
		e.mu.Unlock()
	}
	return err
}

func (e *FeedEngine) applyLikeLocked(postID int64, liked bool) {
	e.mutations++
	e.touched[postID] = e.mutations
	e.liked[postID] = liked
	for _, v := range e.views {
		for _, p := range v.posts {
			if p.ID != postID || p.IsLiked == liked {
				continue
			}
			p.IsLiked = liked
			if liked {
				p.LikeCount++
			} else {
				p.LikeCount--
			}
		}
	}
}

// CreatePost uploads a post and prepends it to a loaded trending view once
// the server has confirmed it.
func (e *FeedEngine) CreatePost(ctx context.Context, content string, files []models.MediaFile) (*models.Post, error) {
	if err := e.guard.RequireAuth(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" && len(files) == 0 {
		return nil, ErrEmptyPost
	}
	resp, err := e.api.CreatePost(ctx, content, files)
	if err != nil {
		logger.Log.Error("failed to create post", zap.Error(err))
		notify(e.notifier, NoticeError, ErrorMessage(err, "Failed to create post"))
		return nil, err
	}
	post := mapPost(e.opts.AvatarURLTemplate, *resp)

	e.mu.Lock()
	if v := e.views[models.FeedTrending]; v.loaded {
		p := post.Clone()
		v.posts = append([]*models.Post{&p}, v.posts...)
	}
	e.liked[post.ID] = post.IsLiked
	e.mu.Unlock()

	notify(e.notifier, NoticeSuccess, "Post created")
	return &post, nil
}

// BumpCommentCount adjusts the comment count of a post in every loaded view.
func (e *FeedEngine) BumpCommentCount(postID int64, delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range e.views {
		for _, p := range v.posts {
			if p.ID == postID {
				p.CommentCount += delta
			}
		}
	}
}

func (e *FeedEngine) FetchLikers(ctx context.Context, postID int64) ([]models.UserSummary, error) {
	users, err := e.api.PostLikers(ctx, postID)
	if err != nil {
		logger.Log.Error("failed to fetch likers", zap.Int64("post_id", postID), zap.Error(err))
		notify(e.notifier, NoticeError, ErrorMessage(err, "Failed to load likes"))
		return nil, err
	}
	return users, nil
}

func (e *FeedEngine) FetchFollowers(ctx context.Context, userID int64, page, size int) ([]models.UserSummary, error) {
	if size <= 0 {
		size = e.opts.PageSize
	}
	users, err := e.api.Followers(ctx, userID, page, size)
	if err != nil {
		logger.Log.Error("failed to fetch followers", zap.Int64("user_id", userID), zap.Error(err))
		notify(e.notifier, NoticeError, ErrorMessage(err, "Failed to load followers"))
		return nil, err
	}
	return users, nil
}

func (e *FeedEngine) FetchFollowing(ctx context.Context, userID int64, page, size int) ([]models.UserSummary, error) {
	if size <= 0 {
		size = e.opts.PageSize
	}
	users, err := e.api.Following(ctx, userID, page, size)
	if err != nil {
		logger.Log.Error("failed to fetch following", zap.Int64("user_id", userID), zap.Error(err))
		notify(e.notifier, NoticeError, ErrorMessage(err, "Failed to load following"))
		return nil, err
	}
	return users, nil
}

// Invalidate forces the next LoadFeed of kind to fetch again.
func (e *FeedEngine) Invalidate(kind models.FeedKind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.views[kind]; ok {
		v.loaded = false
		v.posts = nil
	}
}

// Reset drops every view and the liked set. Loads still in flight are discarded.
func (e *FeedEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func snapshot(list []*models.Post) []models.Post {
	out := make([]models.Post, 0, len(list))
	for _, p := range list {
		out = append(out, p.Clone())
	}
	return out
}

func clonePosts(list []models.Post) []models.Post {
	if list == nil {
		return nil
	}
	out := make([]models.Post, 0, len(list))
	for _, p := range list {
		out = append(out, p.Clone())
	}
	return out
}
