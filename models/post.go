package models

type FeedKind string

const (
	FeedTrending  FeedKind = "trending"
	FeedFollowing FeedKind = "following"
)

// FeedKinds lists every feed view in display order.
var FeedKinds = []FeedKind{FeedTrending, FeedFollowing}

type AuthorRef struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl"`
}

type Media struct {
	URL  string `json:"url"`
	Type string `json:"type"` // image or video
}

// Post is the client-side shape of a post inside a feed view.
type Post struct {
	ID           int64     `json:"id"`
	Author       AuthorRef `json:"author"`
	Content      string    `json:"content"`
	Media        []Media   `json:"media"`
	LikeCount    int       `json:"likeCount"`
	CommentCount int       `json:"commentCount"`
	IsLiked      bool      `json:"isLiked"`
	CreatedAt    string    `json:"createdAt"`
	ShareCount   int       `json:"shareCount"`
}

func (p Post) Clone() Post {
	c := p
	c.Media = append([]Media(nil), p.Media...)
	return c
}

// MediaFile is an upload attached to a new post.
type MediaFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// PostResponse is the server record of a post.
type PostResponse struct {
	ID           int64              `json:"id"`
	Content      string             `json:"content"`
	User         AuthorResponse     `json:"user"`
	LikeCount    int                `json:"likeCount"`
	CommentCount int                `json:"commentCount"`
	CreatedAt    string             `json:"createdAt"`
	Media        []PostMediaPayload `json:"media"`
	IsLiked      bool               `json:"isLiked"`
}

type AuthorResponse struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	FullName       string `json:"fullName"`
	ProfilePicture string `json:"profilePicture"`
}

type PostMediaPayload struct {
	ID        int64  `json:"id,omitempty"`
	MediaURL  string `json:"mediaUrl"`
	MediaType string `json:"mediaType"`
}

// Page is the paginated envelope used by feed and follow listings.
type Page[T any] struct {
	Content          []T  `json:"content"`
	TotalPages       int  `json:"totalPages"`
	TotalElements    int  `json:"totalElements"`
	Number           int  `json:"number"`
	Size             int  `json:"size"`
	NumberOfElements int  `json:"numberOfElements"`
	First            bool `json:"first"`
	Last             bool `json:"last"`
	Empty            bool `json:"empty"`
}

type ProfileResponse struct {
	UserProfile
	Posts []PostResponse `json:"posts"`
}

// Profile is a fetched user profile with its mapped posts.
type Profile struct {
	User  UserProfile
	Posts []Post
}
