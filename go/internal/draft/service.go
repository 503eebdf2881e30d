package draft

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/skjftp/fpl-auction-sub001/go/internal/auth"
	"github.com/skjftp/fpl-auction-sub001/go/internal/connectjson"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store"
)

const ServiceName = "fplauction.v1.DraftService"

const (
	InitializeDraftProcedure = "/" + ServiceName + "/InitializeDraft"
	StartDraftProcedure      = "/" + ServiceName + "/StartDraft"
	AdvanceTurnProcedure     = "/" + ServiceName + "/AdvanceTurn"
	GetDraftStateProcedure   = "/" + ServiceName + "/GetDraftState"
	ResetDraftProcedure      = "/" + ServiceName + "/ResetDraft"
)

type InitializeDraftRequest struct {
	// TeamIDs limits the draft to these teams; empty means every team.
	TeamIDs []int64 `json:"teamIds,omitempty"`
}

type StartDraftRequest struct{}

type AdvanceTurnRequest struct{}

type GetDraftStateRequest struct{}

type ResetDraftRequest struct {
	ResetBudgets bool `json:"resetBudgets"`
}

type ResetDraftResponse struct {
	Success bool `json:"success"`
}

// DraftStateResponse wraps the draft state snapshot
type DraftStateResponse struct {
	State *models.DraftState `json:"state"`
}

// DraftApp defines what the service layer needs from the scheduler
type DraftApp interface {
	State(ctx context.Context) (*models.DraftState, error)
	Initialize(ctx context.Context, teamIDs []int64) (*models.DraftState, error)
	Start(ctx context.Context) (*models.DraftState, error)
	AdvanceTurn(ctx context.Context, requesterTeamID int64) (*models.DraftState, error)
	Reset(ctx context.Context, resetBudgets bool) error
}

// Service implements the DraftService connect procedures
type Service struct {
	app DraftApp
}

// NewService creates a new draft connect service
func NewService(app DraftApp) *Service {
	return &Service{app: app}
}

// NewHandler mounts every DraftService procedure under one path prefix
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = connectjson.HandlerOptions(opts...)
	mux := http.NewServeMux()
	mux.Handle(InitializeDraftProcedure, connect.NewUnaryHandler(InitializeDraftProcedure, svc.InitializeDraft, opts...))
	mux.Handle(StartDraftProcedure, connect.NewUnaryHandler(StartDraftProcedure, svc.StartDraft, opts...))
	mux.Handle(AdvanceTurnProcedure, connect.NewUnaryHandler(AdvanceTurnProcedure, svc.AdvanceTurn, opts...))
	mux.Handle(GetDraftStateProcedure, connect.NewUnaryHandler(GetDraftStateProcedure, svc.GetDraftState, opts...))
	mux.Handle(ResetDraftProcedure, connect.NewUnaryHandler(ResetDraftProcedure, svc.ResetDraft, opts...))
	return "/" + ServiceName + "/", mux
}

// InitializeDraft fixes a random pick order (admin only)
func (s *Service) InitializeDraft(ctx context.Context, req *connect.Request[InitializeDraftRequest]) (*connect.Response[DraftStateResponse], error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	state, err := s.app.Initialize(ctx, req.Msg.TeamIDs)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DraftStateResponse{State: state}), nil
}

// StartDraft activates the draft (admin only)
func (s *Service) StartDraft(ctx context.Context, _ *connect.Request[StartDraftRequest]) (*connect.Response[DraftStateResponse], error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	state, err := s.app.Start(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DraftStateResponse{State: state}), nil
}

// AdvanceTurn passes the calling team's turn
func (s *Service) AdvanceTurn(ctx context.Context, _ *connect.Request[AdvanceTurnRequest]) (*connect.Response[DraftStateResponse], error) {
	id, err := auth.RequireTeam(ctx)
	if err != nil {
		return nil, err
	}
	state, err := s.app.AdvanceTurn(ctx, id.TeamID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DraftStateResponse{State: state}), nil
}

// GetDraftState returns the current draft state
func (s *Service) GetDraftState(ctx context.Context, _ *connect.Request[GetDraftStateRequest]) (*connect.Response[DraftStateResponse], error) {
	state, err := s.app.State(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DraftStateResponse{State: state}), nil
}

// ResetDraft wipes auctions and squads (admin only)
func (s *Service) ResetDraft(ctx context.Context, req *connect.Request[ResetDraftRequest]) (*connect.Response[ResetDraftResponse], error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := s.app.Reset(ctx, req.Msg.ResetBudgets); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ResetDraftResponse{Success: true}), nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, ErrNotYourTurn):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, ErrInvalidOrder):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrDraftNotInitialized),
		errors.Is(err, ErrDraftNotActive),
		errors.Is(err, ErrDraftAlreadyComplete),
		errors.Is(err, ErrDraftInProgress),
		errors.Is(err, ErrAuctionInProgress),
		errors.Is(err, ErrNoTeams):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, store.ErrVersionConflict):
		return connect.NewError(connect.CodeAborted, err)
	case errors.Is(err, store.ErrUnavailable):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// Client calls DraftService over connect
type Client struct {
	initializeDraft *connect.Client[InitializeDraftRequest, DraftStateResponse]
	startDraft      *connect.Client[StartDraftRequest, DraftStateResponse]
	advanceTurn     *connect.Client[AdvanceTurnRequest, DraftStateResponse]
	getDraftState   *connect.Client[GetDraftStateRequest, DraftStateResponse]
	resetDraft      *connect.Client[ResetDraftRequest, ResetDraftResponse]
}

// NewClient creates a DraftService client for baseURL
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = connectjson.ClientOptions(opts...)
	return &Client{
		initializeDraft: connect.NewClient[InitializeDraftRequest, DraftStateResponse](httpClient, baseURL+InitializeDraftProcedure, opts...),
		startDraft:      connect.NewClient[StartDraftRequest, DraftStateResponse](httpClient, baseURL+StartDraftProcedure, opts...),
		advanceTurn:     connect.NewClient[AdvanceTurnRequest, DraftStateResponse](httpClient, baseURL+AdvanceTurnProcedure, opts...),
		getDraftState:   connect.NewClient[GetDraftStateRequest, DraftStateResponse](httpClient, baseURL+GetDraftStateProcedure, opts...),
		resetDraft:      connect.NewClient[ResetDraftRequest, ResetDraftResponse](httpClient, baseURL+ResetDraftProcedure, opts...),
	}
}

func (c *Client) InitializeDraft(ctx context.Context, teamIDs ...int64) (*models.DraftState, error) {
	res, err := c.initializeDraft.CallUnary(ctx, connect.NewRequest(&InitializeDraftRequest{TeamIDs: teamIDs}))
	if err != nil {
		return nil, err
	}
	return res.Msg.State, nil
}

func (c *Client) StartDraft(ctx context.Context) (*models.DraftState, error) {
	res, err := c.startDraft.CallUnary(ctx, connect.NewRequest(&StartDraftRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg.State, nil
}

func (c *Client) AdvanceTurn(ctx context.Context) (*models.DraftState, error) {
	res, err := c.advanceTurn.CallUnary(ctx, connect.NewRequest(&AdvanceTurnRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg.State, nil
}

func (c *Client) GetDraftState(ctx context.Context) (*models.DraftState, error) {
	res, err := c.getDraftState.CallUnary(ctx, connect.NewRequest(&GetDraftStateRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg.State, nil
}

func (c *Client) ResetDraft(ctx context.Context, resetBudgets bool) error {
	_, err := c.resetDraft.CallUnary(ctx, connect.NewRequest(&ResetDraftRequest{ResetBudgets: resetBudgets}))
	return err
}
