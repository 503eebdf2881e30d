package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
)

// Triggers are the event types that finish an auction
var Triggers = []events.Type{events.TypeAuctionCompleted, events.TypeAuctionCancelled}

// Writer stores one object
type Writer interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Source is what the archiver reads
type Source interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	GetPlayer(ctx context.Context, id int64) (*models.Player, error)
	GetClub(ctx context.Context, id int64) (*models.Club, error)
}

// Document is the archived form of one auction
type Document struct {
	Auction    models.Auction `json:"auction"`
	ItemName   string         `json:"item_name"`
	WinnerID   *int64         `json:"winner_team_id,omitempty"`
	FinalPrice int            `json:"final_price,omitempty"`
	ArchivedAt time.Time      `json:"archived_at"`
}

// Archiver writes auctions once they reach a terminal status
type Archiver struct {
	writer Writer
	source Source
	clock  clockwork.Clock
}

func New(writer Writer, source Source, clock clockwork.Clock) *Archiver {
	return &Archiver{writer: writer, source: source, clock: clock}
}

// Key is auctions/<yyyy>/<mm>/<id>.json by end time
func Key(a *models.Auction) string {
	at := a.StartedAt
	if a.EndedAt != nil {
		at = *a.EndedAt
	}
	at = at.UTC()
	return fmt.Sprintf("auctions/%04d/%02d/%s.json", at.Year(), int(at.Month()), a.ID)
}

// Archive writes the auction document. Auctions still live are refused.
func (a *Archiver) Archive(ctx context.Context, auctionID uuid.UUID) (string, error) {
	auc, err := a.source.GetAuction(ctx, auctionID)
	if err != nil {
		return "", fmt.Errorf("failed to load auction %s: %w", auctionID, err)
	}
	if !auc.Status.IsTerminal() {
		return "", fmt.Errorf("auction %s is %s, not finished", auctionID, auc.Status)
	}

	doc := Document{Auction: *auc, ArchivedAt: a.clock.Now().UTC()}
	doc.ItemName, err = a.itemName(ctx, auc)
	if err != nil {
		return "", err
	}
	if auc.Status == models.AuctionStatusSold {
		doc.WinnerID = auc.CurrentBidderID
		doc.FinalPrice = auc.CurrentBid
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode auction %s: %w", auctionID, err)
	}
	key := Key(auc)
	if err := a.writer.Put(ctx, key, body, "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

func (a *Archiver) itemName(ctx context.Context, auc *models.Auction) (string, error) {
	switch auc.ItemType {
	case models.ItemTypePlayer:
		p, err := a.source.GetPlayer(ctx, auc.ItemID)
		if err != nil {
			return "", fmt.Errorf("failed to load player %d: %w", auc.ItemID, err)
		}
		return p.WebName, nil
	case models.ItemTypeClub:
		c, err := a.source.GetClub(ctx, auc.ItemID)
		if err != nil {
			return "", fmt.Errorf("failed to load club %d: %w", auc.ItemID, err)
		}
		return c.Name, nil
	}
	return "", fmt.Errorf("unknown item type %q", auc.ItemType)
}

// Run archives every finished auction seen on sub until ctx is done
func (a *Archiver) Run(ctx context.Context, sub *events.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub.C:
			if !ok {
				return nil
			}
			if evt.AuctionID == uuid.Nil {
				continue
			}
			key, err := a.Archive(ctx, evt.AuctionID)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				log.Error().Err(err).Str("auction_id", evt.AuctionID.String()).Msg("failed to archive auction")
				continue
			}
			log.Info().Str("auction_id", evt.AuctionID.String()).Str("key", key).Msg("archived auction")
		}
	}
}
