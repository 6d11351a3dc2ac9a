package services

import (
	"fmt"
	"net/url"
	"strings"

	"socialclient/models"
)

const defaultAvatarTemplate = "https://ui-avatars.com/api/?name=%s&background=random"

// avatarURL returns picture, or a generated avatar for the display name.
func avatarURL(template, picture, fullName, username string) string {
	if strings.TrimSpace(picture) != "" {
		return picture
	}
	if template == "" {
		template = defaultAvatarTemplate
	}
	name := fullName
	if strings.TrimSpace(name) == "" {
		name = username
	}
	return fmt.Sprintf(template, url.QueryEscape(name))
}

func mapAuthor(template string, u models.AuthorResponse) models.AuthorRef {
	return models.AuthorRef{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		AvatarURL: avatarURL(template, u.ProfilePicture, u.FullName, u.Username),
	}
}

func mapPost(template string, r models.PostResponse) models.Post {
	media := make([]models.Media, 0, len(r.Media))
	for _, m := range r.Media {
		media = append(media, models.Media{URL: m.MediaURL, Type: strings.ToLower(m.MediaType)})
	}
	return models.Post{
		ID:           r.ID,
		Author:       mapAuthor(template, r.User),
		Content:      r.Content,
		Media:        media,
		LikeCount:    r.LikeCount,
		CommentCount: r.CommentCount,
		IsLiked:      r.IsLiked,
		CreatedAt:    r.CreatedAt,
	}
}

func mapPosts(template string, list []models.PostResponse) []models.Post {
	out := make([]models.Post, 0, len(list))
	for _, r := range list {
		out = append(out, mapPost(template, r))
	}
	return out
}

// mapComment converts a server comment. Inline replies count as loaded only
// when they cover the whole reply count.
func mapComment(template string, r models.CommentResponse) *models.Comment {
	c := &models.Comment{
		ID:         r.ID,
		PostID:     r.PostID,
		Author:     mapAuthor(template, r.User),
		Text:       r.CommentText,
		LikeCount:  r.LikeCount,
		ReplyCount: r.ReplyCount,
		CreatedAt:  r.CreatedAt,
	}
	if r.Replies != nil && len(r.Replies) == r.ReplyCount {
		c.Replies = mapComments(template, r.Replies)
		c.RepliesLoaded = true
	}
	return c
}

func mapComments(template string, list []models.CommentResponse) []*models.Comment {
	out := make([]*models.Comment, 0, len(list))
	for _, r := range list {
		out = append(out, mapComment(template, r))
	}
	return out
}

func mapProfile(template string, r *models.ProfileResponse) *models.Profile {
	if r == nil {
		return nil
	}
	user := r.UserProfile
	if user.ProfilePicture == nil || strings.TrimSpace(*user.ProfilePicture) == "" {
		generated := avatarURL(template, "", user.FullName, user.Username)
		user.ProfilePicture = &generated
	}
	return &models.Profile{User: user, Posts: mapPosts(template, r.Posts)}
}
