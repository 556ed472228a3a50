package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"lootbox-backend/internal/models"
)

func TestRarity(t *testing.T) {
	r, err := models.RarityFromLedger(2)
	require.NoError(t, err)
	require.Equal(t, models.RarityEpic, r)
	require.Equal(t, "Epic", r.String())
	require.Equal(t, "Epic Weapon", r.ItemName())

	_, err = models.RarityFromLedger(4)
	require.Error(t, err)

	parsed, err := models.ParseRarity("legendary")
	require.NoError(t, err)
	require.Equal(t, models.RarityLegendary, parsed)

	data, err := json.Marshal(models.RewardRecord{ID: "0x1", Rarity: models.RarityRare, Power: 7})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"0x1","name":"","rarity":"Rare","power":7}`, string(data))

	var rec models.RewardRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	require.Equal(t, models.RarityRare, rec.Rarity)
}

func TestInventoryFilter(t *testing.T) {
	inv := &models.Inventory{Items: []models.InventoryItem{
		{RewardRecord: models.RewardRecord{ID: "0x1", Rarity: models.RarityCommon}},
		{RewardRecord: models.RewardRecord{ID: "0x2", Rarity: models.RarityEpic}},
		{RewardRecord: models.RewardRecord{ID: "0x3", Rarity: models.RarityEpic}},
	}}

	all, err := inv.Filter("all")
	require.NoError(t, err)
	require.Len(t, all, 3)

	epic, err := inv.Filter("epic")
	require.NoError(t, err)
	require.Len(t, epic, 2)

	_, err = inv.Filter("mythic")
	require.Error(t, err)

	require.Contains(t, inv.IDs(), "0x2")
}

func TestNormalizeAddress(t *testing.T) {
	addr, err := models.NormalizeAddress(" 0xABCdef ")
	require.NoError(t, err)
	require.Equal(t, "0xabcdef", addr)

	_, err = models.NormalizeAddress("abcdef")
	require.Error(t, err)
}

func TestBalanceConversion(t *testing.T) {
	require.Equal(t, "1.5", models.MistToSui(1_500_000_000).String())
	require.Equal(t, "0.0000 SUI", models.FormatSui(100))
	require.Equal(t, "2.0000 SUI", models.FormatSui(2*models.MistPerSui))
}
