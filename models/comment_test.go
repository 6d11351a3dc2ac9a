package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() []*Comment {
	return []*Comment{
		{ID: 1, LikeCount: 1, Replies: []*Comment{
			{ID: 11, LikeCount: 0, Replies: []*Comment{{ID: 111, LikeCount: 5}}},
			{ID: 12},
		}, RepliesLoaded: true},
		{ID: 2, LikeCount: 3},
	}
}

func TestWalkCommentsOrder(t *testing.T) {
	var ids []int64
	WalkComments(sampleTree(), func(c *Comment) bool {
		ids = append(ids, c.ID)
		return true
	})
	assert.Equal(t, []int64{1, 11, 111, 12, 2}, ids)
}

func TestWalkCommentsStops(t *testing.T) {
	var ids []int64
	completed := WalkComments(sampleTree(), func(c *Comment) bool {
		ids = append(ids, c.ID)
		return c.ID != 11
	})
	assert.False(t, completed)
	assert.Equal(t, []int64{1, 11}, ids)
}

func TestUpdateCommentReachesNestedReplies(t *testing.T) {
	tree := sampleTree()
	found := UpdateComment(tree, 111, func(c *Comment) { c.LikeCount++ })
	require.True(t, found)
	assert.Equal(t, 6, tree[0].Replies[0].Replies[0].LikeCount)

	assert.False(t, UpdateComment(tree, 999, func(c *Comment) { c.LikeCount++ }))
}

func TestCloneCommentsIsDeep(t *testing.T) {
	tree := sampleTree()
	cp := CloneComments(tree)
	cp[0].Replies[0].LikeCount = 42
	cp[1].Text = "changed"

	assert.Equal(t, 0, tree[0].Replies[0].LikeCount)
	assert.Empty(t, tree[1].Text)
	assert.Nil(t, CloneComments(nil))
	assert.Same(t, tree[0].Replies[1], FindComment(tree, 12))
}
