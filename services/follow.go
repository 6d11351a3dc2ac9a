package services

import (
	"context"
	"errors"
	"sync"

	"socialclient/logger"
	"socialclient/models"

	"go.uber.org/zap"
)

type followAPI interface {
	Follow(ctx context.Context, userID int64) error
	Unfollow(ctx context.Context, userID int64) error
	CheckFollow(ctx context.Context, userID int64) (bool, error)
	Profile(ctx context.Context, userID int64) (*models.ProfileResponse, error)
}

type profileSession interface {
	userResolver
	IsAuthenticated() bool
	UpdateUser(ctx context.Context, user *models.UserProfile) error
}

type GraphOptions struct {
	RollbackOnFailure bool
	AvatarURLTemplate string
}

// SocialGraph opens profile views and owns the follow toggle rules.
type SocialGraph struct {
	api      followAPI
	session  profileSession
	notifier Notifier
	opts     GraphOptions
}

func NewSocialGraph(api followAPI, session profileSession, notifier Notifier, opts GraphOptions) *SocialGraph {
	return &SocialGraph{api: api, session: session, notifier: notifier, opts: opts}
}

// ProfileView is the follow state of the viewer towards one user.
type ProfileView struct {
	graph *SocialGraph

	mu      sync.Mutex
	profile *models.Profile
	state   models.FollowState
}

// OpenProfile fetches a profile and, for someone else's profile, whether the
// current user follows it.
func (g *SocialGraph) OpenProfile(ctx context.Context, userID int64) (*ProfileView, error) {
	resp, err := g.api.Profile(ctx, userID)
	if err != nil {
		logger.Log.Error("failed to load profile", zap.Int64("user_id", userID), zap.Error(err))
		notify(g.notifier, NoticeError, ErrorMessage(err, "Failed to load profile"))
		return nil, err
	}
	profile := mapProfile(g.opts.AvatarURLTemplate, resp)
	view := &ProfileView{
		graph:   g,
		profile: profile,
		state: models.FollowState{
			TargetID:      userID,
			FollowerCount: profile.User.FollowerCount,
		},
	}

	self, ok := g.session.UserID(ctx)
	switch {
	case ok && self == userID:
		if err := g.session.UpdateUser(ctx, &resp.UserProfile); err != nil {
			logger.Log.Warn("failed to cache own profile", zap.Error(err))
		}
	case g.session.IsAuthenticated():
		following, err := g.api.CheckFollow(ctx, userID)
		if err != nil {
			logger.Log.Warn("follow check failed", zap.Int64("user_id", userID), zap.Error(err))
		} else {
			view.state.IsFollowing = following
		}
	}
	return view, nil
}

// NewProfileView builds a view from state the caller already holds.
func (g *SocialGraph) NewProfileView(targetID int64, following bool, followerCount int) *ProfileView {
	return &ProfileView{
		graph: g,
		state: models.FollowState{TargetID: targetID, IsFollowing: following, FollowerCount: followerCount},
	}
}

func (v *ProfileView) State() models.FollowState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Profile returns the fetched profile with the live follower count, or nil.
func (v *ProfileView) Profile() *models.Profile {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.profile == nil {
		return nil
	}
	p := *v.profile
	p.User.FollowerCount = v.state.FollowerCount
	p.Posts = clonePosts(v.profile.Posts)
	return &p
}

// ToggleFollow follows or unfollows the target. Only one call may be in
// flight per view. A server answer of "already following" or "not following"
// is taken as the truth instead of an error.
func (v *ProfileView) ToggleFollow(ctx context.Context) error {
	g := v.graph
	if err := g.session.RequireAuth(); err != nil {
		return err
	}

	v.mu.Lock()
	if v.state.InFlight {
		v.mu.Unlock()
		return ErrFollowInFlight
	}
	was := v.state.IsFollowing
	target := !was
	delta := 1
	if !target {
		delta = -1
	}
	v.state.IsFollowing = target
	v.state.FollowerCount += delta
	v.state.InFlight = true
	targetID := v.state.TargetID
	v.mu.Unlock()

	var err error
	if target {
		err = g.api.Follow(ctx, targetID)
	} else {
		err = g.api.Unfollow(ctx, targetID)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.InFlight = false
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Kind == KindAlreadyFollowing || apiErr.Kind == KindNotFollowing) {
		// the server left the relationship and its count unchanged
		asserted := apiErr.Kind == KindAlreadyFollowing
		v.state.FollowerCount -= delta
		v.state.IsFollowing = asserted
		msg := "You are already following this user"
		if !asserted {
			msg = "You are not following this user"
		}
		logger.Log.Debug("follow state corrected by server", zap.Int64("user_id", targetID), zap.Bool("following", asserted))
		notify(g.notifier, NoticeInfo, msg)
		return nil
	}

	msg := "Failed to follow user"
	if !target {
		msg = "Failed to unfollow user"
	}
	logger.Log.Error("failed to toggle follow", zap.Int64("user_id", targetID), zap.Error(err))
	notify(g.notifier, NoticeError, ErrorMessage(err, msg))
	if g.opts.RollbackOnFailure {
		v.state.IsFollowing = was
		v.state.FollowerCount -= delta
		optimisticRollbacks.WithLabelValues("follow").Inc()
	}
	return err
}
