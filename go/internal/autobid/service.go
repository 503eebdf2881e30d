package autobid

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

const ServiceName = "fplauction.v1.AutoBidService"

const (
	GetConfigProcedure  = "/" + ServiceName + "/GetConfig"
	SaveConfigProcedure = "/" + ServiceName + "/SaveConfig"
)

type GetConfigRequest struct{}

type SaveConfigRequest struct {
	Config models.AutoBidConfig `json:"config"`
}

type ConfigResponse struct {
	Config *models.AutoBidConfig `json:"config"`
}

// ConfigApp defines what the service layer needs from the config app
type ConfigApp interface {
	GetConfig(ctx context.Context, teamID int64) (*models.AutoBidConfig, error)
	SaveConfig(ctx context.Context, teamID int64, cfg models.AutoBidConfig) (*models.AutoBidConfig, error)
}

// Service implements the AutoBidService connect procedures. A team can only
// see and change its own configuration.
type Service struct {
	app ConfigApp
}

// NewService creates a new auto-bid connect service
func NewService(app ConfigApp) *Service {
	return &Service{app: app}
}

// NewHandler mounts every AutoBidService procedure under one path prefix
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = connectjson.HandlerOptions(opts...)
	mux := http.NewServeMux()
	mux.Handle(GetConfigProcedure, connect.NewUnaryHandler(GetConfigProcedure, svc.GetConfig, opts...))
	mux.Handle(SaveConfigProcedure, connect.NewUnaryHandler(SaveConfigProcedure, svc.SaveConfig, opts...))
	return "/" + ServiceName + "/", mux
}

func (s *Service) GetConfig(ctx context.Context, _ *connect.Request[GetConfigRequest]) (*connect.Response[ConfigResponse], error) {
	id, err := auth.RequireTeam(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := s.app.GetConfig(ctx, id.TeamID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ConfigResponse{Config: cfg}), nil
}

func (s *Service) SaveConfig(ctx context.Context, req *connect.Request[SaveConfigRequest]) (*connect.Response[ConfigResponse], error) {
	id, err := auth.RequireTeam(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := s.app.SaveConfig(ctx, id.TeamID, req.Msg.Config)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ConfigResponse{Config: cfg}), nil
}

func toConnectError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		invalid := make([]any, 0, len(verr.Invalid))
		for _, t := range verr.Invalid {
			invalid = append(invalid, map[string]any{
				"type":          string(t.Type),
				"id":            float64(t.ID),
				"configuredMax": float64(t.ConfiguredMax),
			})
		}
		return connectjson.NewError(connect.CodeInvalidArgument, err, map[string]any{
			"maxAllowedBid":  float64(verr.MaxAllowedBid),
			"invalidTargets": invalid,
		})
	case errors.Is(err, store.ErrUnavailable):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, store.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// Client calls AutoBidService over connect
type Client struct {
	getConfig  *connect.Client[GetConfigRequest, ConfigResponse]
	saveConfig *connect.Client[SaveConfigRequest, ConfigResponse]
}

// NewClient creates an AutoBidService client for baseURL
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = connectjson.ClientOptions(opts...)
	return &Client{
		getConfig:  connect.NewClient[GetConfigRequest, ConfigResponse](httpClient, baseURL+GetConfigProcedure, opts...),
		saveConfig: connect.NewClient[SaveConfigRequest, ConfigResponse](httpClient, baseURL+SaveConfigProcedure, opts...),
	}
}

func (c *Client) GetConfig(ctx context.Context) (*models.AutoBidConfig, error) {
	res, err := c.getConfig.CallUnary(ctx, connect.NewRequest(&GetConfigRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg.Config, nil
}

func (c *Client) SaveConfig(ctx context.Context, cfg models.AutoBidConfig) (*models.AutoBidConfig, error) {
	res, err := c.saveConfig.CallUnary(ctx, connect.NewRequest(&SaveConfigRequest{Config: cfg}))
	if err != nil {
		return nil, err
	}
	return res.Msg.Config, nil
}
