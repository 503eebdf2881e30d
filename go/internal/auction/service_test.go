package auction

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjftp/fpl-auction-sub001/go/internal/auth"
	"github.com/skjftp/fpl-auction-sub001/go/internal/connectjson"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
)

func newTestServer(t *testing.T, f *fixture) (*httptest.Server, *auth.Verifier) {
	t.Helper()
	verifier, err := auth.NewVerifier(auth.Config{Secret: "test-secret"})
	require.NoError(t, err)

	path, handler := NewHandler(NewService(f.app), connect.WithInterceptors(auth.NewInterceptor(verifier)))
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, verifier
}

func clientFor(t *testing.T, srv *httptest.Server, v *auth.Verifier, id auth.Identity) *Client {
	t.Helper()
	token, err := v.Issue(id)
	require.NoError(t, err)
	return NewClient(srv.Client(), srv.URL, connect.WithInterceptors(auth.NewBearerInterceptor(token)))
}

func TestService_BidFlow(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	srv, v := newTestServer(t, f)
	ctx := context.Background()

	nominator := clientFor(t, srv, v, auth.Identity{TeamID: 1, TeamName: "one"})
	bidder := clientFor(t, srv, v, auth.Identity{TeamID: 2, TeamName: "two"})

	empty, err := nominator.GetCurrentAuction(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty.Auction)

	started, err := nominator.StartAuction(ctx, &StartAuctionRequest{ItemID: playerMid, ItemType: "player"})
	require.NoError(t, err)
	require.NotNil(t, started.Auction)
	assert.Equal(t, models.AuctionStatusActive, started.Auction.Status)
	assert.Positive(t, started.TimeRemaining)

	res, err := bidder.PlaceBid(ctx, &PlaceBidRequest{AuctionID: started.Auction.ID.String(), Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, &PlaceBidResponse{Accepted: true, CurrentBid: 10}, res)

	_, err = bidder.PlaceBid(ctx, &PlaceBidRequest{AuctionID: started.Auction.ID.String(), Amount: 12})
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	detail, ok := connectjson.Detail(err)
	require.True(t, ok)
	assert.Equal(t, "BID_TOO_LOW", detail["reason"])
	assert.EqualValues(t, 10, detail["current_bid"])

	current, err := bidder.GetCurrentAuction(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, current.Auction.CurrentBid)
}

func TestService_ErrorCodes(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	srv, v := newTestServer(t, f)
	ctx := context.Background()

	anonymous := NewClient(srv.Client(), srv.URL)
	_, err := anonymous.StartAuction(ctx, &StartAuctionRequest{ItemID: playerMid, ItemType: "player"})
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	outOfTurn := clientFor(t, srv, v, auth.Identity{TeamID: 2})
	_, err = outOfTurn.StartAuction(ctx, &StartAuctionRequest{ItemID: playerMid, ItemType: "player"})
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	_, err = outOfTurn.StartAuction(ctx, &StartAuctionRequest{ItemID: playerMid, ItemType: "coach"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	nominator := clientFor(t, srv, v, auth.Identity{TeamID: 1})
	started, err := nominator.StartAuction(ctx, &StartAuctionRequest{ItemID: playerMid, ItemType: "player"})
	require.NoError(t, err)

	_, err = nominator.StartAuction(ctx, &StartAuctionRequest{ItemID: playerKeeper, ItemType: "player"})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = nominator.CancelAuction(ctx, &CancelAuctionRequest{AuctionID: started.Auction.ID.String()})
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err), "cancel is admin only")

	admin := clientFor(t, srv, v, auth.Identity{TeamID: 3, IsAdmin: true})
	cancelled, err := admin.CancelAuction(ctx, &CancelAuctionRequest{AuctionID: started.Auction.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusCancelled, cancelled.Auction.Status)

	_, err = outOfTurn.PlaceBid(ctx, &PlaceBidRequest{AuctionID: started.Auction.ID.String(), Amount: 50})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = outOfTurn.PlaceBid(ctx, &PlaceBidRequest{AuctionID: "not-a-uuid", Amount: 50})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestService_ResolveWaitRequiresNominator(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	srv, v := newTestServer(t, f)
	ctx := context.Background()

	nominator := clientFor(t, srv, v, auth.Identity{TeamID: 1})
	other := clientFor(t, srv, v, auth.Identity{TeamID: 2})

	started, err := nominator.StartAuction(ctx, &StartAuctionRequest{ItemID: playerMid, ItemType: "player"})
	require.NoError(t, err)
	id := started.Auction.ID
	f.expire(t, id)

	waiting, err := other.RequestWait(ctx, &RequestWaitRequest{AuctionID: id.String()})
	require.NoError(t, err)
	require.NotNil(t, waiting.Auction.WaitRequestedBy)

	_, err = other.ResolveWait(ctx, &ResolveWaitRequest{AuctionID: id.String(), Accept: true})
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	resolved, err := nominator.ResolveWait(ctx, &ResolveWaitRequest{AuctionID: id.String(), Accept: true})
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusActive, resolved.Auction.Status)
}
