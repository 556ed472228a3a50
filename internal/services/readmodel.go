package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"lootbox-backend/internal/models"
)

const loadTimeout = 15 * time.Second

// ReadModelStore caches per-owner views. Getters return ErrCacheMiss when
// nothing is stored.
type ReadModelStore interface {
	GetBalance(ctx context.Context, owner string) (*models.Balance, error)
	SaveBalance(ctx context.Context, b *models.Balance) error
	GetInventory(ctx context.Context, owner string) (*models.Inventory, error)
	SaveInventory(ctx context.Context, inv *models.Inventory) error
	GetLootBoxes(ctx context.Context, owner string) (*models.LootBoxList, error)
	SaveLootBoxes(ctx context.Context, list *models.LootBoxList) error
}

type ReadModelConfig struct {
	CoinType    string
	RewardType  string
	LootBoxType string
}

// ReadModels rebuilds balance, inventory and loot box views from the ledger.
type ReadModels struct {
	ledger LedgerClient
	store  ReadModelStore
	cfg    ReadModelConfig
	clock  clockwork.Clock
	logger zerolog.Logger
	group  singleflight.Group

	mu    sync.Mutex
	loads map[string]*loadState
}

// loadState tracks the keys with a load in flight. gen counts the refreshes
// seen while any load of the key was running.
type loadState struct {
	gen      uint64
	inflight int
}

func NewReadModels(ledger LedgerClient, store ReadModelStore, cfg ReadModelConfig, clock clockwork.Clock, logger zerolog.Logger) *ReadModels {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ReadModels{
		ledger: ledger,
		store:  store,
		cfg:    cfg,
		clock:  clock,
		logger: logger.With().Str("component", "readmodels").Logger(),
		loads:  make(map[string]*loadState),
	}
}

func (r *ReadModels) Balance(ctx context.Context, owner string) (*models.Balance, error) {
	cached, err := r.store.GetBalance(ctx, owner)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn().Err(err).Str("owner", owner).Msg("balance cache read failed")
	}
	return r.loadBalance(ctx, owner, false)
}

func (r *ReadModels) Inventory(ctx context.Context, owner string) (*models.Inventory, error) {
	cached, err := r.store.GetInventory(ctx, owner)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn().Err(err).Str("owner", owner).Msg("inventory cache read failed")
	}
	return r.loadInventory(ctx, owner, false)
}

func (r *ReadModels) LootBoxes(ctx context.Context, owner string) (*models.LootBoxList, error) {
	cached, err := r.store.GetLootBoxes(ctx, owner)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn().Err(err).Str("owner", owner).Msg("loot box cache read failed")
	}
	return r.loadLootBoxes(ctx, owner, false)
}

func (r *ReadModels) RefreshBalance(ctx context.Context, owner string) error {
	_, err := r.loadBalance(ctx, owner, true)
	return err
}

func (r *ReadModels) RefreshInventory(ctx context.Context, owner string) error {
	_, err := r.loadInventory(ctx, owner, true)
	return err
}

func (r *ReadModels) RefreshLootBoxes(ctx context.Context, owner string) error {
	_, err := r.loadLootBoxes(ctx, owner, true)
	return err
}

func (r *ReadModels) loadBalance(ctx context.Context, owner string, refresh bool) (*models.Balance, error) {
	return load(r, ctx, "balance:"+owner, refresh,
		func(ctx context.Context) (*models.Balance, error) {
			mist, err := r.ledger.GetBalance(ctx, owner, r.cfg.CoinType)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch balance: %w", err)
			}
			return models.NewBalance(owner, r.cfg.CoinType, mist, r.clock.Now()), nil
		},
		r.store.SaveBalance,
	)
}

func (r *ReadModels) loadInventory(ctx context.Context, owner string, refresh bool) (*models.Inventory, error) {
	return load(r, ctx, "inventory:"+owner, refresh,
		func(ctx context.Context) (*models.Inventory, error) {
			objects, err := r.ledger.ListOwnedObjects(ctx, owner, r.cfg.RewardType)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch inventory: %w", err)
			}

			items := make([]models.InventoryItem, 0, len(objects))
			for _, obj := range objects {
				rec, err := decodeObjectReward(obj)
				if err != nil {
					r.logger.Warn().Err(err).Str("object_id", obj.ID).Msg("skipping undecodable inventory item")
					continue
				}
				items = append(items, models.InventoryItem{RewardRecord: rec, Version: obj.Version})
			}
			sort.SliceStable(items, func(i, j int) bool {
				return items[i].Version > items[j].Version
			})

			return &models.Inventory{Owner: owner, Items: items, UpdatedAt: r.clock.Now()}, nil
		},
		r.store.SaveInventory,
	)
}

func (r *ReadModels) loadLootBoxes(ctx context.Context, owner string, refresh bool) (*models.LootBoxList, error) {
	return load(r, ctx, "lootboxes:"+owner, refresh,
		func(ctx context.Context) (*models.LootBoxList, error) {
			objects, err := r.ledger.ListOwnedObjects(ctx, owner, r.cfg.LootBoxType)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch loot boxes: %w", err)
			}

			boxes := make([]models.LootBox, 0, len(objects))
			for _, obj := range objects {
				boxes = append(boxes, models.LootBox{ID: obj.ID})
			}
			return &models.LootBoxList{Owner: owner, Boxes: boxes, UpdatedAt: r.clock.Now()}, nil
		},
		r.store.SaveLootBoxes,
	)
}

// load fetches one view and caches it, collapsing concurrent loads of key.
// A refresh never joins a load that started before it, and a load overtaken
// by a newer refresh returns its value without caching it. The fetch is
// detached from the caller so one dropped request cannot fail the others
// sharing it.
func load[T any](r *ReadModels, ctx context.Context, key string, refresh bool, fetch func(context.Context) (T, error), save func(context.Context, T) error) (T, error) {
	if refresh {
		r.mu.Lock()
		r.stateLocked(key).gen++
		r.group.Forget(key)
		r.mu.Unlock()
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		gen := r.beginLoad(key)
		defer r.endLoad(key)

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		view, err := fetch(loadCtx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.stateLocked(key).gen != gen {
			r.logger.Debug().Str("key", key).Msg("skipping cache write of superseded load")
			return view, nil
		}
		if err := save(loadCtx, view); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("failed to cache read model")
		}
		return view, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (r *ReadModels) stateLocked(key string) *loadState {
	st, ok := r.loads[key]
	if !ok {
		st = &loadState{}
		r.loads[key] = st
	}
	return st
}

func (r *ReadModels) beginLoad(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stateLocked(key)
	st.inflight++
	return st.gen
}

func (r *ReadModels) endLoad(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st := r.loads[key]; st != nil {
		st.inflight--
		if st.inflight <= 0 {
			delete(r.loads, key)
		}
	}
}
