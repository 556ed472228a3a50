package models

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// MistPerSui is the number of MIST in one SUI.
const MistPerSui = 1_000_000_000

type Balance struct {
	Owner     string          `json:"owner"`
	CoinType  string          `json:"coin_type"`
	Mist      uint64          `json:"mist"`
	Sui       decimal.Decimal `json:"sui"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func NewBalance(owner, coinType string, mist uint64, at time.Time) *Balance {
	return &Balance{
		Owner:     owner,
		CoinType:  coinType,
		Mist:      mist,
		Sui:       MistToSui(mist),
		UpdatedAt: at,
	}
}

func MistToSui(mist uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(mist), -9)
}

type InventoryItem struct {
	RewardRecord
	Version uint64 `json:"version"`
}

type Inventory struct {
	Owner     string          `json:"owner"`
	Items     []InventoryItem `json:"items"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Filter returns the items matching rarity; "all" or "" keeps everything.
func (inv *Inventory) Filter(rarity string) ([]InventoryItem, error) {
	if rarity == "" || rarity == "all" {
		return inv.Items, nil
	}

	r, err := ParseRarity(rarity)
	if err != nil {
		return nil, err
	}

	filtered := make([]InventoryItem, 0, len(inv.Items))
	for _, item := range inv.Items {
		if item.Rarity == r {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

// IDs returns the set of reward IDs currently in the inventory.
func (inv *Inventory) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(inv.Items))
	for _, item := range inv.Items {
		ids[item.ID] = struct{}{}
	}
	return ids
}

type LootBoxList struct {
	Owner     string    `json:"owner"`
	Boxes     []LootBox `json:"boxes"`
	UpdatedAt time.Time `json:"updated_at"`
}
