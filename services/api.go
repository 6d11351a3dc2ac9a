package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"socialclient/models"
)

const maxResponseBytes = 10 << 20

const (
	routeLogin          = "/api/auth/login"
	routeRegister       = "/api/auth/register"
	routeVerify         = "/api/auth/verify"
	routeTrending       = "/api/posts/feed/trending"
	routeNewsfeed       = "/api/v1/newsfeed"
	routeCreatePost     = "/api/posts/create"
	routeUserPosts      = "/api/posts/lists/{userId}"
	routePostLikes      = "/api/v1/posts/{id}/likes"
	routePostLikeCheck  = "/api/v1/posts/{id}/likes/check"
	routeComments       = "/api/v1/posts/{id}/comments"
	routeReplies        = "/api/v1/posts/{id}/comments/{commentId}/replies"
	routeCommentLikes   = "/api/v1/comments/{id}/likes"
	routeCommentLikeChk = "/api/v1/comments/{id}/likes/check"
	routeFollow         = "/api/v1/follows/{userId}"
	routeFollowCheck    = "/api/v1/follows/check/{userId}"
	routeFollowers      = "/api/v1/follows/{userId}/followers"
	routeFollowing      = "/api/v1/follows/{userId}/following"
	routeProfile        = "/api/profile/{userId}"
)

// API is the typed backend client. Authentication is handled by the
// transport of the supplied http.Client.
type API struct {
	baseURL string
	client  *http.Client
}

func NewAPI(baseURL string, client *http.Client) *API {
	if client == nil {
		client = http.DefaultClient
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// expand fills {placeholders} of a route in order.
func expand(route string, ids ...int64) string {
	out := route
	for _, id := range ids {
		start := strings.IndexByte(out, '{')
		end := strings.IndexByte(out, '}')
		if start < 0 || end < start {
			break
		}
		out = out[:start] + strconv.FormatInt(id, 10) + out[end+1:]
	}
	return out
}

func pageQuery(page, size int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	return q
}

func (a *API) doJSON(ctx context.Context, method, route, path string, query url.Values, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := a.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.do(req, route, out)
}

func (a *API) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	target := a.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (a *API) do(req *http.Request, route string, out interface{}) error {
	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		recordAPICall(req.Method, route, 0, time.Since(start))
		return transportError(err)
	}
	defer resp.Body.Close()
	recordAPICall(req.Method, route, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Status: resp.StatusCode, Kind: KindUnknown, Message: "malformed response", Err: err}
	}
	return nil
}

func (a *API) Login(ctx context.Context, in models.LoginRequest) (*models.LoginResponse, error) {
	var out models.LoginResponse
	if err := a.doJSON(ctx, http.MethodPost, routeLogin, routeLogin, nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Register(ctx context.Context, in models.RegisterRequest) (*models.RegisterResponse, error) {
	var out models.RegisterResponse
	if err := a.doJSON(ctx, http.MethodPost, routeRegister, routeRegister, nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Verify(ctx context.Context, code string) (*models.VerifyResponse, error) {
	q := url.Values{}
	q.Set("code", code)
	var out models.VerifyResponse
	if err := a.doJSON(ctx, http.MethodGet, routeVerify, routeVerify, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Feed(ctx context.Context, kind models.FeedKind, page, size int) (*models.Page[models.PostResponse], error) {
	var route string
	switch kind {
	case models.FeedTrending:
		route = routeTrending
	case models.FeedFollowing:
		route = routeNewsfeed
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeed, kind)
	}
	var out models.Page[models.PostResponse]
	if err := a.doJSON(ctx, http.MethodGet, route, route, pageQuery(page, size), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePost uploads a post as multipart form data with fields content and mediaFiles.
func (a *API) CreatePost(ctx context.Context, content string, files []models.MediaFile) (*models.PostResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("content", content); err != nil {
		return nil, err
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="mediaFiles"; filename="%s"`, escapeQuotes(f.Name)))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := a.newRequest(ctx, http.MethodPost, routeCreatePost, nil, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	var out models.PostResponse
	if err := a.do(req, routeCreatePost, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}

func (a *API) PostsByUser(ctx context.Context, userID int64) ([]models.PostResponse, error) {
	var out []models.PostResponse
	err := a.doJSON(ctx, http.MethodGet, routeUserPosts, expand(routeUserPosts, userID), nil, nil, &out)
	return out, err
}

func (a *API) LikePost(ctx context.Context, postID int64) error {
	return a.doJSON(ctx, http.MethodPost, routePostLikes, expand(routePostLikes, postID), nil, nil, nil)
}

func (a *API) UnlikePost(ctx context.Context, postID int64) error {
	return a.doJSON(ctx, http.MethodDelete, routePostLikes, expand(routePostLikes, postID), nil, nil, nil)
}

func (a *API) CheckPostLike(ctx context.Context, postID int64) (bool, error) {
	var liked bool
	err := a.doJSON(ctx, http.MethodGet, routePostLikeCheck, expand(routePostLikeCheck, postID), nil, nil, &liked)
	return liked, err
}

func (a *API) PostLikers(ctx context.Context, postID int64) ([]models.UserSummary, error) {
	var out []models.UserSummary
	err := a.doJSON(ctx, http.MethodGet, routePostLikes, expand(routePostLikes, postID), nil, nil, &out)
	return out, err
}

func (a *API) Comments(ctx context.Context, postID int64) ([]models.CommentResponse, error) {
	var out []models.CommentResponse
	err := a.doJSON(ctx, http.MethodGet, routeComments, expand(routeComments, postID), nil, nil, &out)
	return out, err
}

// CreateComment posts a top-level comment, or a reply when parentID is set.
func (a *API) CreateComment(ctx context.Context, postID, userID int64, text string, parentID *int64) (*models.CommentResponse, error) {
	in := models.CreateCommentRequest{
		UserID:          userID,
		PostID:          postID,
		ParentCommentID: parentID,
		CommentText:     text,
	}
	var out models.CommentResponse
	if err := a.doJSON(ctx, http.MethodPost, routeComments, expand(routeComments, postID), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Replies(ctx context.Context, postID, commentID int64) ([]models.CommentResponse, error) {
	var out []models.CommentResponse
	err := a.doJSON(ctx, http.MethodGet, routeReplies, expand(routeReplies, postID, commentID), nil, nil, &out)
	return out, err
}

func (a *API) LikeComment(ctx context.Context, commentID int64) error {
	return a.doJSON(ctx, http.MethodPost, routeCommentLikes, expand(routeCommentLikes, commentID), nil, nil, nil)
}

func (a *API) UnlikeComment(ctx context.Context, commentID int64) error {
	return a.doJSON(ctx, http.MethodDelete, routeCommentLikes, expand(routeCommentLikes, commentID), nil, nil, nil)
}

func (a *API) CheckCommentLike(ctx context.Context, commentID int64) (bool, error) {
	var liked bool
	err := a.doJSON(ctx, http.MethodGet, routeCommentLikeChk, expand(routeCommentLikeChk, commentID), nil, nil, &liked)
	return liked, err
}

func (a *API) CommentLikers(ctx context.Context, commentID int64) ([]models.UserSummary, error) {
	var out []models.UserSummary
	err := a.doJSON(ctx, http.MethodGet, routeCommentLikes, expand(routeCommentLikes, commentID), nil, nil, &out)
	return out, err
}

func (a *API) Follow(ctx context.Context, userID int64) error {
	return a.doJSON(ctx, http.MethodPost, routeFollow, expand(routeFollow, userID), nil, nil, nil)
}

func (a *API) Unfollow(ctx context.Context, userID int64) error {
	return a.doJSON(ctx, http.MethodDelete, routeFollow, expand(routeFollow, userID), nil, nil, nil)
}

func (a *API) CheckFollow(ctx context.Context, userID int64) (bool, error) {
	var out models.FollowCheckResponse
	err := a.doJSON(ctx, http.MethodGet, routeFollowCheck, expand(routeFollowCheck, userID), nil, nil, &out)
	return out.IsFollowing, err
}

func (a *API) Followers(ctx context.Context, userID int64, page, size int) ([]models.UserSummary, error) {
	var out models.Page[models.UserSummary]
	err := a.doJSON(ctx, http.MethodGet, routeFollowers, expand(routeFollowers, userID), pageQuery(page, size), nil, &out)
	return out.Content, err
}

func (a *API) Following(ctx context.Context, userID int64, page, size int) ([]models.UserSummary, error) {
	var out models.Page[models.UserSummary]
	err := a.doJSON(ctx, http.MethodGet, routeFollowing, expand(routeFollowing, userID), pageQuery(page, size), nil, &out)
	return out.Content, err
}

func (a *API) Profile(ctx context.Context, userID int64) (*models.ProfileResponse, error) {
	var out models.ProfileResponse
	if err := a.doJSON(ctx, http.MethodPost, routeProfile, expand(routeProfile, userID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
