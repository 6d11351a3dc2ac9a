package models

type FollowCheckResponse struct {
	IsFollowing bool `json:"isFollowing"`
}

// FollowState is the viewer's relation to one target user.
type FollowState struct {
	TargetID      int64 `json:"targetId"`
	IsFollowing   bool  `json:"isFollowing"`
	FollowerCount int   `json:"followerCount"`
	InFlight      bool  `json:"inFlight"`
}
