package models

// UserProfile is the snapshot of a user returned by login and profile fetches.
type UserProfile struct {
	ID             int64   `json:"id"`
	Username       string  `json:"username"`
	FullName       string  `json:"fullName"`
	Bio            string  `json:"bio"`
	Role           string  `json:"role,omitempty"`
	ProfilePicture *string `json:"profilePicture"`
	FollowerCount  int     `json:"followerCount"`
	FollowingCount int     `json:"followingCount"`
	JoinDate       string  `json:"joinDate"`
	LastLogin      string  `json:"lastLogin"`
	Email          *string `json:"email"`
}

// UserSummary is the light user record used by likers and follow lists.
type UserSummary struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	FullName       string `json:"fullName,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	Bio            string `json:"bio,omitempty"`
	IsFollowing    bool   `json:"isFollowing,omitempty"`
	FollowedAt     string `json:"followedAt,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *UserProfile `json:"user,omitempty"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=5,max=12"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,strongpassword"`
	FullName string `json:"fullName" validate:"required"`
	Bio      string `json:"bio"`
}

type RegisterResponse struct {
	Message string `json:"message"`
}

type VerifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
