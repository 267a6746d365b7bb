package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard-ai/chat-gateway/internal/model"
	"github.com/taskboard-ai/chat-gateway/pkg/logger"
)

func newConversationService() *ConversationService {
	return NewConversationService(logger.NewNop())
}

func TestConversationCreateAndGet(t *testing.T) {
	svc := newConversationService()
	ctx := context.Background()

	conv, err := svc.Create(ctx, "user-1", &model.CreateConversationRequest{
		ProjectID:   "p1",
		Title:       "Sprint planning",
		ContextType: model.ContextTypeProject,
		ContextID:   "p1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "user-1", conv.CreatedBy)

	got, err := svc.Get(ctx, "user-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sprint planning", got.Title)
}

func TestConversationGetScopedToOwner(t *testing.T) {
	svc := newConversationService()
	ctx := context.Background()

	conv, err := svc.Create(ctx, "user-1", &model.CreateConversationRequest{ProjectID: "p1"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "user-2", conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestConversationListFiltersAndSorts(t *testing.T) {
	svc := newConversationService()
	ctx := context.Background()

	older, err := svc.Create(ctx, "user-1", &model.CreateConversationRequest{ProjectID: "p1", Title: "older"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "user-1", &model.CreateConversationRequest{ProjectID: "p2", Title: "other project"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "user-2", &model.CreateConversationRequest{ProjectID: "p1", Title: "foreign"})
	require.NoError(t, err)

	// Bump the older conversation so sort order is observable.
	time.Sleep(time.Millisecond)
	_, err = svc.Update(ctx, "user-1", older.ID, &model.UpdateConversationRequest{Title: "bumped"})
	require.NoError(t, err)

	resp, err := svc.List(ctx, "user-1", "")
	require.NoError(t, err)
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "bumped", resp.Conversations[0].Title)

	scoped, err := svc.List(ctx, "user-1", "p2")
	require.NoError(t, err)
	require.Equal(t, 1, scoped.Total)
	assert.Equal(t, "other project", scoped.Conversations[0].Title)
}

func TestConversationUpdate(t *testing.T) {
	svc := newConversationService()
	ctx := context.Background()

	conv, err := svc.Create(ctx, "user-1", &model.CreateConversationRequest{ProjectID: "p1", Title: "before"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "user-1", conv.ID, &model.UpdateConversationRequest{Title: "after"})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Title)

	_, err = svc.Update(ctx, "user-2", conv.ID, &model.UpdateConversationRequest{Title: "stolen"})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestConversationDeleteHidesFromReads(t *testing.T) {
	svc := newConversationService()
	ctx := context.Background()

	conv, err := svc.Create(ctx, "user-1", &model.CreateConversationRequest{ProjectID: "p1"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "user-1", conv.ID))

	_, err = svc.Get(ctx, "user-1", conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	resp, err := svc.List(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Zero(t, resp.Total)

	// Double delete reports not-found, same as a missing conversation.
	assert.ErrorIs(t, svc.Delete(ctx, "user-1", conv.ID), ErrConversationNotFound)
}

func TestConversationTouchDerivesTitleOnce(t *testing.T) {
	svc := newConversationService()
	ctx := context.Background()

	conv, err := svc.Create(ctx, "user-1", &model.CreateConversationRequest{ProjectID: "p1"})
	require.NoError(t, err)

	require.NoError(t, svc.Touch(ctx, "user-1", conv.ID, "  How do I split this epic?  \nsecond line"))

	got, err := svc.Get(ctx, "user-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "How do I split this epic?", got.Title)

	// A later exchange must not overwrite the title.
	require.NoError(t, svc.Touch(ctx, "user-1", conv.ID, "different message"))
	got, err = svc.Get(ctx, "user-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "How do I split this epic?", got.Title)
}
