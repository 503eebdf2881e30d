package auction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/skjftp/fpl-auction-sub001/go/internal/auth"
	"github.com/skjftp/fpl-auction-sub001/go/internal/connectjson"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
)

const ServiceName = "fplauction.v1.AuctionService"

const (
	StartAuctionProcedure      = "/" + ServiceName + "/StartAuction"
	PlaceBidProcedure          = "/" + ServiceName + "/PlaceBid"
	CancelAuctionProcedure     = "/" + ServiceName + "/CancelAuction"
	CompleteAuctionProcedure   = "/" + ServiceName + "/CompleteAuction"
	RequestWaitProcedure       = "/" + ServiceName + "/RequestWait"
	ResolveWaitProcedure       = "/" + ServiceName + "/ResolveWait"
	GetCurrentAuctionProcedure = "/" + ServiceName + "/GetCurrentAuction"
)

type StartAuctionRequest struct {
	ItemID   int64  `json:"itemId"`
	ItemType string `json:"itemType"`
}

type PlaceBidRequest struct {
	AuctionID string `json:"auctionId"`
	Amount    int    `json:"bidAmount"`
}

type PlaceBidResponse struct {
	Accepted   bool `json:"accepted"`
	CurrentBid int  `json:"currentBid"`
}

type CancelAuctionRequest struct {
	AuctionID string `json:"auctionId"`
	SkipTurn  bool   `json:"skipTurn"`
}

type CompleteAuctionRequest struct {
	AuctionID string `json:"auctionId"`
}

type RequestWaitRequest struct {
	AuctionID string `json:"auctionId"`
}

type ResolveWaitRequest struct {
	AuctionID string `json:"auctionId"`
	Accept    bool   `json:"accept"`
}

type GetCurrentAuctionRequest struct{}

// AuctionResponse carries an auction snapshot and its countdown
type AuctionResponse struct {
	Auction       *models.Auction `json:"auction,omitempty"`
	TimeRemaining int64           `json:"timeRemainingMs"`
}

// AuctionApp defines what the service layer needs from the auction application
type AuctionApp interface {
	StartAuction(ctx context.Context, requesterTeamID, itemID int64, itemType models.ItemType) (*models.Auction, error)
	PlaceBid(ctx context.Context, auctionID uuid.UUID, teamID int64, amount int, isAutoBid bool) (BidResult, error)
	Cancel(ctx context.Context, auctionID uuid.UUID, skipTurn bool) (*models.Auction, error)
	Complete(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error)
	RequestWait(ctx context.Context, auctionID uuid.UUID, teamID int64) (*models.Auction, error)
	ResolveWait(ctx context.Context, auctionID uuid.UUID, accept bool) (*models.Auction, error)
	Current(ctx context.Context) (*models.Auction, error)
	Get(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error)
	TimeRemaining(auctionID uuid.UUID) time.Duration
}

// Service implements the AuctionService connect procedures
type Service struct {
	app AuctionApp
}

// NewService creates a new auction connect service
func NewService(app AuctionApp) *Service {
	return &Service{app: app}
}

// NewHandler mounts every AuctionService procedure under one path prefix
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = connectjson.HandlerOptions(opts...)
	mux := http.NewServeMux()
	mux.Handle(StartAuctionProcedure, connect.NewUnaryHandler(StartAuctionProcedure, svc.StartAuction, opts...))
	mux.Handle(PlaceBidProcedure, connect.NewUnaryHandler(PlaceBidProcedure, svc.PlaceBid, opts...))
	mux.Handle(CancelAuctionProcedure, connect.NewUnaryHandler(CancelAuctionProcedure, svc.CancelAuction, opts...))
	mux.Handle(CompleteAuctionProcedure, connect.NewUnaryHandler(CompleteAuctionProcedure, svc.CompleteAuction, opts...))
	mux.Handle(RequestWaitProcedure, connect.NewUnaryHandler(RequestWaitProcedure, svc.RequestWait, opts...))
	mux.Handle(ResolveWaitProcedure, connect.NewUnaryHandler(ResolveWaitProcedure, svc.ResolveWait, opts...))
	mux.Handle(GetCurrentAuctionProcedure, connect.NewUnaryHandler(GetCurrentAuctionProcedure, svc.GetCurrentAuction, opts...))
	return "/" + ServiceName + "/", mux
}

// StartAuction nominates an item for the calling team
func (s *Service) StartAuction(ctx context.Context, req *connect.Request[StartAuctionRequest]) (*connect.Response[AuctionResponse], error) {
	id, err := auth.RequireTeam(ctx)
	if err != nil {
		return nil, err
	}
	itemType := models.ItemType(req.Msg.ItemType)
	if !itemType.Valid() || req.Msg.ItemID <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("itemId and itemType (player or club) are required"))
	}

	a, err := s.app.StartAuction(ctx, id.TeamID, req.Msg.ItemID, itemType)
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.auctionResponse(a), nil
}

// PlaceBid bids for the calling team
func (s *Service) PlaceBid(ctx context.Context, req *connect.Request[PlaceBidRequest]) (*connect.Response[PlaceBidResponse], error) {
	id, err := auth.RequireTeam(ctx)
	if err != nil {
		return nil, err
	}
	auctionID, err := uuid.Parse(req.Msg.AuctionID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	res, err := s.app.PlaceBid(ctx, auctionID, id.TeamID, req.Msg.Amount, false)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&PlaceBidResponse{Accepted: res.Accepted, CurrentBid: res.CurrentBid}), nil
}

// CancelAuction aborts the live auction (admin only)
func (s *Service) CancelAuction(ctx context.Context, req *connect.Request[CancelAuctionRequest]) (*connect.Response[AuctionResponse], error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	auctionID, err := uuid.Parse(req.Msg.AuctionID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	a, err := s.app.Cancel(ctx, auctionID, req.Msg.SkipTurn)
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.auctionResponse(a), nil
}

// CompleteAuction sells the live auction to its current bidder now (admin only)
func (s *Service) CompleteAuction(ctx context.Context, req *connect.Request[CompleteAuctionRequest]) (*connect.Response[AuctionResponse], error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	auctionID, err := uuid.Parse(req.Msg.AuctionID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	a, err := s.app.Complete(ctx, auctionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.auctionResponse(a), nil
}

// RequestWait asks to pause the selling countdown
func (s *Service) RequestWait(ctx context.Context, req *connect.Request[RequestWaitRequest]) (*connect.Response[AuctionResponse], error) {
	id, err := auth.RequireTeam(ctx)
	if err != nil {
		return nil, err
	}
	auctionID, err := uuid.Parse(req.Msg.AuctionID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	a, err := s.app.RequestWait(ctx, auctionID, id.TeamID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.auctionResponse(a), nil
}

// ResolveWait settles a pending wait. Only the nominating team or an admin
// may resolve it.
func (s *Service) ResolveWait(ctx context.Context, req *connect.Request[ResolveWaitRequest]) (*connect.Response[AuctionResponse], error) {
	id, err := auth.RequireTeam(ctx)
	if err != nil {
		return nil, err
	}
	auctionID, err := uuid.Parse(req.Msg.AuctionID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	if !id.IsAdmin {
		cur, err := s.app.Get(ctx, auctionID)
		if err != nil {
			return nil, toConnectError(err)
		}
		if cur.NominatedBy != id.TeamID {
			return nil, connect.NewError(connect.CodePermissionDenied, fmt.Errorf("only the nominating team can resolve a wait"))
		}
	}

	a, err := s.app.ResolveWait(ctx, auctionID, req.Msg.Accept)
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.auctionResponse(a), nil
}

// GetCurrentAuction returns the live auction, or an empty response when none is live
func (s *Service) GetCurrentAuction(ctx context.Context, _ *connect.Request[GetCurrentAuctionRequest]) (*connect.Response[AuctionResponse], error) {
	a, err := s.app.Current(ctx)
	if errors.Is(err, ErrAuctionNotFound) {
		return connect.NewResponse(&AuctionResponse{}), nil
	}
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.auctionResponse(a), nil
}

func (s *Service) auctionResponse(a *models.Auction) *connect.Response[AuctionResponse] {
	res := &AuctionResponse{Auction: a}
	if a.Status.IsLive() {
		res.TimeRemaining = s.app.TimeRemaining(a.ID).Milliseconds()
	}
	return connect.NewResponse(res)
}

// toConnectError maps the auction error taxonomy onto connect codes. Bid
// rejections carry the reason code and the authoritative current bid.
func toConnectError(err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, ErrNotYourTurn):
		code = connect.CodePermissionDenied
	case errors.Is(err, ErrBidTooLow),
		errors.Is(err, ErrInsufficientBudget),
		errors.Is(err, ErrSquadConstraintViolated),
		errors.Is(err, ErrItemUnavailable),
		errors.Is(err, ErrWaitNotAllowed):
		code = connect.CodeInvalidArgument
	case errors.Is(err, ErrAuctionAlreadyActive),
		errors.Is(err, ErrAuctionNotActive),
		errors.Is(err, ErrDraftNotInitialized),
		errors.Is(err, ErrDraftNotActive),
		errors.Is(err, ErrDraftAlreadyComplete),
		errors.Is(err, ErrNoWaitPending),
		errors.Is(err, ErrNoBidder):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, ErrConcurrentBidConflict):
		code = connect.CodeAborted
	case errors.Is(err, ErrPersistenceUnavailable):
		code = connect.CodeUnavailable
	case errors.Is(err, ErrAuctionNotFound), errors.Is(err, ErrTeamNotFound):
		code = connect.CodeNotFound
	default:
		return connect.NewError(connect.CodeInternal, err)
	}

	detail := map[string]any{"reason": ReasonCode(err)}
	var rej *RejectionError
	if errors.As(err, &rej) {
		detail["current_bid"] = rej.CurrentBid
	}
	return connectjson.NewError(code, err, detail)
}

// Client calls AuctionService over connect
type Client struct {
	startAuction      *connect.Client[StartAuctionRequest, AuctionResponse]
	placeBid          *connect.Client[PlaceBidRequest, PlaceBidResponse]
	cancelAuction     *connect.Client[CancelAuctionRequest, AuctionResponse]
	completeAuction   *connect.Client[CompleteAuctionRequest, AuctionResponse]
	requestWait       *connect.Client[RequestWaitRequest, AuctionResponse]
	resolveWait       *connect.Client[ResolveWaitRequest, AuctionResponse]
	getCurrentAuction *connect.Client[GetCurrentAuctionRequest, AuctionResponse]
}

// NewClient creates an AuctionService client for baseURL
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = connectjson.ClientOptions(opts...)
	return &Client{
		startAuction:      connect.NewClient[StartAuctionRequest, AuctionResponse](httpClient, baseURL+StartAuctionProcedure, opts...),
		placeBid:          connect.NewClient[PlaceBidRequest, PlaceBidResponse](httpClient, baseURL+PlaceBidProcedure, opts...),
		cancelAuction:     connect.NewClient[CancelAuctionRequest, AuctionResponse](httpClient, baseURL+CancelAuctionProcedure, opts...),
		completeAuction:   connect.NewClient[CompleteAuctionRequest, AuctionResponse](httpClient, baseURL+CompleteAuctionProcedure, opts...),
		requestWait:       connect.NewClient[RequestWaitRequest, AuctionResponse](httpClient, baseURL+RequestWaitProcedure, opts...),
		resolveWait:       connect.NewClient[ResolveWaitRequest, AuctionResponse](httpClient, baseURL+ResolveWaitProcedure, opts...),
		getCurrentAuction: connect.NewClient[GetCurrentAuctionRequest, AuctionResponse](httpClient, baseURL+GetCurrentAuctionProcedure, opts...),
	}
}

func (c *Client) StartAuction(ctx context.Context, req *StartAuctionRequest) (*AuctionResponse, error) {
	res, err := c.startAuction.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) PlaceBid(ctx context.Context, req *PlaceBidRequest) (*PlaceBidResponse, error) {
	res, err := c.placeBid.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) CancelAuction(ctx context.Context, req *CancelAuctionRequest) (*AuctionResponse, error) {
	res, err := c.cancelAuction.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) CompleteAuction(ctx context.Context, req *CompleteAuctionRequest) (*AuctionResponse, error) {
	res, err := c.completeAuction.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) RequestWait(ctx context.Context, req *RequestWaitRequest) (*AuctionResponse, error) {
	res, err := c.requestWait.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) ResolveWait(ctx context.Context, req *ResolveWaitRequest) (*AuctionResponse, error) {
	res, err := c.resolveWait.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) GetCurrentAuction(ctx context.Context) (*AuctionResponse, error) {
	res, err := c.getCurrentAuction.CallUnary(ctx, connect.NewRequest(&GetCurrentAuctionRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
