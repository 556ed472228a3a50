package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"

	"lootbox-backend/internal/models"
)

type LedgerClient interface {
	GetTransactionOutcome(ctx context.Context, digest string, opts models.OutcomeOptions) (*models.TransactionOutcome, error)
	GetObject(ctx context.Context, id string) (*models.LedgerObject, error)
	ListOwnedObjects(ctx context.Context, owner, structType string) ([]models.LedgerObject, error)
	GetBalance(ctx context.Context, owner, coinType string) (uint64, error)
}

type ResolutionSource string

const (
	SourceEvent     ResolutionSource = "event"
	SourceObject    ResolutionSource = "object"
	SourceInventory ResolutionSource = "inventory"
	SourceNone      ResolutionSource = "none"
)

type ResolveRequest struct {
	Digest string
	Owner  string
	// Limit caps the number of records; 0 keeps every match.
	Limit int
	// Known holds the reward IDs owned before submission. A nil set disables
	// the inventory fallback.
	Known map[string]struct{}
}

type Resolution struct {
	Records []models.RewardRecord
	Source  ResolutionSource
}

type ResolverConfig struct {
	RewardType string
	EventType  string
	Retry      RetryPolicy
	Logger     zerolog.Logger
}

// ConfirmationResolver turns a submitted transaction into reward records.
// Events are preferred, then created objects, then a diff of the owner's inventory.
type ConfirmationResolver struct {
	ledger     LedgerClient
	rewardType string
	eventType  string
	retry      RetryPolicy
	logger     zerolog.Logger
}

func NewConfirmationResolver(ledger LedgerClient, cfg ResolverConfig) *ConfirmationResolver {
	if cfg.EventType == "" {
		cfg.EventType = "LootBoxOpened"
	}
	return &ConfirmationResolver{
		ledger:     ledger,
		rewardType: cfg.RewardType,
		eventType:  cfg.EventType,
		retry:      cfg.Retry,
		logger:     cfg.Logger.With().Str("component", "resolver").Logger(),
	}
}

func (r *ConfirmationResolver) Resolve(ctx context.Context, req ResolveRequest) Resolution {
	ctx, span := tracer.Start(ctx, "resolver.Resolve")
	defer span.End()

	logger := r.logger.With().Str("digest", req.Digest).Logger()

	outcome, err := RetryValue(ctx, r.retry,
		func(ctx context.Context) (*models.TransactionOutcome, error) {
			return r.ledger.GetTransactionOutcome(ctx, req.Digest, models.OutcomeOptions{
				ShowEffects:       true,
				ShowEvents:        true,
				ShowObjectChanges: true,
			})
		},
		func(err error, attempt int) {
			logger.Debug().Err(err).Int("attempt", attempt).Msg("transaction outcome not available yet")
		},
	)
	if err != nil {
		logger.Warn().Err(err).Int("attempts", r.retry.Attempts()).Msg("giving up on transaction outcome")
	}

	res := Resolution{Source: SourceNone}
	if outcome != nil {
		if records := r.fromEvents(logger, outcome, req.Limit); len(records) > 0 {
			res = Resolution{Records: records, Source: SourceEvent}
		} else if records := r.fromCreatedObjects(ctx, logger, outcome, req.Limit); len(records) > 0 {
			res = Resolution{Records: records, Source: SourceObject}
		}
	}
	if len(res.Records) == 0 && req.Known != nil {
		if records := r.fromInventory(ctx, logger, req.Owner, req.Known); len(records) > 0 {
			res = Resolution{Records: records, Source: SourceInventory}
		}
	}

	span.SetAttributes(
		attribute.String("resolver.source", string(res.Source)),
		attribute.Int("resolver.records", len(res.Records)),
	)
	logger.Debug().Str("source", string(res.Source)).Int("records", len(res.Records)).Msg("resolved rewards")

	return res
}

func (r *ConfirmationResolver) fromEvents(logger zerolog.Logger, outcome *models.TransactionOutcome, limit int) []models.RewardRecord {
	var records []models.RewardRecord
	for _, ev := range outcome.Events {
		if !strings.Contains(ev.Type, r.eventType) {
			continue
		}
		rec, err := decodeEventReward(ev.ParsedJSON)
		if err != nil {
			logger.Warn().Err(err).Str("event_type", ev.Type).Msg("skipping undecodable event")
			continue
		}
		records = append(records, rec)
		if limit > 0 && len(records) == limit {
			break
		}
	}
	return records
}

func (r *ConfirmationResolver) fromCreatedObjects(ctx context.Context, logger zerolog.Logger, outcome *models.TransactionOutcome, limit int) []models.RewardRecord {
	var records []models.RewardRecord
	for _, ch := range outcome.ObjectChanges {
		if ch.Type != "created" || !strings.Contains(ch.ObjectType, r.rewardType) {
			continue
		}

		obj, err := r.ledger.GetObject(ctx, ch.ObjectID)
		if err != nil {
			logger.Warn().Err(err).Str("object_id", ch.ObjectID).Msg("failed to fetch created object")
			continue
		}
		rec, err := decodeObjectReward(*obj)
		if err != nil {
			logger.Warn().Err(err).Str("object_id", ch.ObjectID).Msg("skipping undecodable object")
			continue
		}
		rec.ID = ch.ObjectID
		records = append(records, rec)
		if limit > 0 && len(records) == limit {
			break
		}
	}
	return records
}

func (r *ConfirmationResolver) fromInventory(ctx context.Context, logger zerolog.Logger, owner string, known map[string]struct{}) []models.RewardRecord {
	objects, err := r.ledger.ListOwnedObjects(ctx, owner, r.rewardType)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to list inventory")
		return nil
	}

	for _, obj := range objects {
		if _, ok := known[obj.ID]; ok {
			continue
		}
		rec, err := decodeObjectReward(obj)
		if err != nil {
			logger.Warn().Err(err).Str("object_id", obj.ID).Msg("skipping undecodable inventory item")
			continue
		}
		return []models.RewardRecord{rec}
	}
	return nil
}

func decodeEventReward(raw json.RawMessage) (models.RewardRecord, error) {
	if !gjson.ValidBytes(raw) {
		return models.RewardRecord{}, fmt.Errorf("event payload is not valid json")
	}
	payload := gjson.ParseBytes(raw)

	id := payload.Get("item_id").String()
	if id == "" {
		return models.RewardRecord{}, fmt.Errorf("event has no item_id")
	}

	rec, err := decodeRewardFields(payload)
	if err != nil {
		return models.RewardRecord{}, err
	}
	rec.ID = id
	return rec, nil
}

func decodeObjectReward(obj models.LedgerObject) (models.RewardRecord, error) {
	if !gjson.ValidBytes(obj.Fields) {
		return models.RewardRecord{}, fmt.Errorf("object %s has no readable fields", obj.ID)
	}
	fields := gjson.ParseBytes(obj.Fields)
	if !fields.IsObject() {
		return models.RewardRecord{}, fmt.Errorf("object %s has no fields", obj.ID)
	}

	rec, err := decodeRewardFields(fields)
	if err != nil {
		return models.RewardRecord{}, fmt.Errorf("object %s: %w", obj.ID, err)
	}
	rec.ID = obj.ID
	return rec, nil
}

func decodeRewardFields(fields gjson.Result) (models.RewardRecord, error) {
	rarityValue, err := intField(fields, "rarity")
	if err != nil {
		return models.RewardRecord{}, err
	}
	rarity, err := models.RarityFromLedger(rarityValue)
	if err != nil {
		return models.RewardRecord{}, err
	}

	power, err := intField(fields, "power")
	if err != nil {
		return models.RewardRecord{}, err
	}

	name := fields.Get("name").String()
	if name == "" {
		name = rarity.ItemName()
	}

	return models.RewardRecord{Name: name, Rarity: rarity, Power: power}, nil
}

// intField reads an integer that the ledger may encode as a number or a string.
func intField(fields gjson.Result, key string) (int64, error) {
	v := fields.Get(key)
	switch v.Type {
	case gjson.Number:
		return v.Int(), nil
	case gjson.String:
		n, err := strconv.ParseInt(v.Str, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("field %s missing", key)
	}
}
