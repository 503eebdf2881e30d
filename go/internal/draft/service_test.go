package draft

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjftp/fpl-auction-sub001/go/internal/auth"
)

func TestService_DraftLifecycle(t *testing.T) {
	s, _, _ := setup(t, 1, 2)
	verifier, err := auth.NewVerifier(auth.Config{Secret: "test-secret"})
	require.NoError(t, err)

	path, handler := NewHandler(NewService(s), connect.WithInterceptors(auth.NewInterceptor(verifier)))
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := func(id auth.Identity) *Client {
		token, err := verifier.Issue(id)
		require.NoError(t, err)
		return NewClient(srv.Client(), srv.URL, connect.WithInterceptors(auth.NewBearerInterceptor(token)))
	}
	admin := client(auth.Identity{TeamID: 1, IsAdmin: true})
	team2 := client(auth.Identity{TeamID: 2})
	ctx := context.Background()

	_, err = team2.InitializeDraft(ctx)
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	_, err = admin.InitializeDraft(ctx, 1, 7)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	state, err := admin.InitializeDraft(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, state.Order)
	assert.False(t, state.IsActive)

	_, err = team2.AdvanceTurn(ctx)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	state, err = admin.StartDraft(ctx)
	require.NoError(t, err)
	assert.True(t, state.IsActive)

	_, err = team2.AdvanceTurn(ctx)
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	state, err = admin.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, state.CurrentPosition)

	got, err := team2.GetDraftState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), *got.CurrentTeamID)

	require.NoError(t, admin.ResetDraft(ctx, true))
	got, err = team2.GetDraftState(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Order)
}
