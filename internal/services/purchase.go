package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"lootbox-backend/internal/config"
	"lootbox-backend/internal/models"
)

type PurchaseConfig struct {
	Target        string
	TypeArguments []string
	GameConfigID  string
	Price         uint64
	SettleDelay   time.Duration
	TxLink        func(digest string) string
}

func NewPurchaseConfig(cfg *config.Config) PurchaseConfig {
	return PurchaseConfig{
		Target:        cfg.MoveTarget("purchase_loot_box"),
		TypeArguments: []string{cfg.CoinType},
		GameConfigID:  cfg.GameConfigID,
		Price:         cfg.LootBoxPrice,
		SettleDelay:   cfg.Opening.SettleDelay,
		TxLink:        cfg.TxLink,
	}
}

// Purchaser buys loot boxes with the owner's gas coin.
type Purchaser struct {
	cfg       PurchaseConfig
	submitter Submitter
	refresher Refresher
	notifier  Notifier
	clock     clockwork.Clock
	logger    zerolog.Logger
}

func NewPurchaser(cfg PurchaseConfig, submitter Submitter, refresher Refresher, notifier Notifier, clock clockwork.Clock, logger zerolog.Logger) *Purchaser {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Purchaser{
		cfg:       cfg,
		submitter: submitter,
		refresher: refresher,
		notifier:  notifier,
		clock:     clock,
		logger:    logger.With().Str("component", "purchaser").Logger(),
	}
}

func (p *Purchaser) Purchase(ctx context.Context, owner string) (models.SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "purchaser.Purchase")
	defer span.End()
	span.SetAttributes(attribute.String("purchase.owner", owner))

	logger := p.logger.With().Str("owner", owner).Logger()

	res, err := p.submitter.Submit(ctx, models.TransactionSpec{
		Sender:           owner,
		Target:           p.cfg.Target,
		TypeArguments:    p.cfg.TypeArguments,
		Arguments:        []any{p.cfg.GameConfigID},
		Payment:          p.cfg.Price,
		TransferResultTo: owner,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("purchase failed")
		p.notify(owner, models.NotificationError, "Purchase failed: "+err.Error(), "")
		return res, fmt.Errorf("purchase: %w", err)
	}

	logger.Info().Str("digest", res.Digest).Str("price", models.FormatSui(p.cfg.Price)).Msg("loot box purchased")
	link := ""
	if p.cfg.TxLink != nil {
		link = p.cfg.TxLink(res.Digest)
	}
	p.notify(owner, models.NotificationSuccess, "Loot box purchased!", link)

	work := context.WithoutCancel(ctx)
	if p.refresher != nil {
		if err := p.refresher.RefreshBalance(work, owner); err != nil {
			logger.Warn().Err(err).Msg("failed to refresh balance")
		}
		if err := wait(work, p.clock, p.cfg.SettleDelay); err == nil {
			if err := p.refresher.RefreshLootBoxes(work, owner); err != nil {
				logger.Warn().Err(err).Msg("failed to refresh loot boxes")
			}
		}
	}

	return res, nil
}

func (p *Purchaser) notify(owner string, kind models.NotificationKind, msg, link string) {
	if p.notifier == nil {
		return
	}
	p.notifier.Notify(models.Notification{Owner: owner, Kind: kind, Message: msg, Link: link})
}
