package models

import (
	"fmt"
	"strings"
)

type LootBox struct {
	ID string `json:"id"`
}

type Rarity int

const (
	RarityCommon Rarity = iota
	RarityRare
	RarityEpic
	RarityLegendary
)

var rarityNames = [...]string{"Common", "Rare", "Epic", "Legendary"}

var rarityItemNames = [...]string{"Common Sword", "Rare Blade", "Epic Weapon", "Legendary Artifact"}

func (r Rarity) Valid() bool {
	return r >= RarityCommon && r <= RarityLegendary
}

func (r Rarity) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Rarity(%d)", int(r))
	}
	return rarityNames[r]
}

// ItemName is the display name the contract gives items of this rarity.
func (r Rarity) ItemName() string {
	if !r.Valid() {
		return "Unknown Item"
	}
	return rarityItemNames[r]
}

func (r Rarity) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid rarity: %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Rarity) UnmarshalText(text []byte) error {
	parsed, err := ParseRarity(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRarity accepts a rarity name in any case.
func ParseRarity(s string) (Rarity, error) {
	for i, name := range rarityNames {
		if strings.EqualFold(s, name) {
			return Rarity(i), nil
		}
	}
	return 0, fmt.Errorf("unknown rarity: %q", s)
}

// RarityFromLedger converts the on-chain u8 rarity.
func RarityFromLedger(v int64) (Rarity, error) {
	r := Rarity(v)
	if !r.Valid() {
		return 0, fmt.Errorf("rarity out of range: %d", v)
	}
	return r, nil
}

type RewardRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rarity Rarity `json:"rarity"`
	Power  int64  `json:"power"`
}
