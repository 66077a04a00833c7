package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"clearance/internal/featureflags"
)

func TestCollectionComments_FlagAndPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	comments := NewCommentService(f.db, featureflags.NewManager("collection_comments=on"))

	outsider := f.newOutsider(t)

	_, err := comments.AddCollectionComment(ctx, f.collection.ID, &outsider, "hi")
	require.Error(t, err)

	comment, err := comments.AddCollectionComment(ctx, f.collection.ID, &f.author, "please prioritise")
	require.NoError(t, err)
	require.NotZero(t, comment.ID)

	// Reviewers can read and write too.
	_, err = comments.AddCollectionComment(ctx, f.collection.ID, &f.reviewer1, "on it")
	require.NoError(t, err)

	listed, err := comments.ListCollectionComments(ctx, f.collection.ID, &f.reviewer2)
	require.NoError(t, err)
	require.Len(t, listed, 2)

	// With the flag off the surface disappears entirely.
	disabled := NewCommentService(f.db, featureflags.NewManager("collection_comments=off"))
	_, err = disabled.AddCollectionComment(ctx, f.collection.ID, &f.author, "hello?")
	require.Error(t, err)
	require.Contains(t, err.Error(), "disabled")
}

func TestRequestComments_PinnedToAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	comments := NewCommentService(f.db, featureflags.NewManager("request_comments=on"))

	v := f.newVersion(t, f.author.ID, nil)
	requestID := f.addAndSubmit(t, v)[0]
	request := f.reloadRequest(t, requestID)
	action := request.FirstAction()
	require.NotNil(t, action)

	comment, err := comments.AddRequestComment(ctx, action.ID, &f.reviewer1, "checked the header")
	require.NoError(t, err)
	require.Equal(t, action.ID, comment.ActionID)

	listed, err := comments.ListRequestComments(ctx, requestID, &f.author)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	outsider := f.newOutsider(t)
	_, err = comments.ListRequestComments(ctx, requestID, &outsider)
	require.Error(t, err)
}
