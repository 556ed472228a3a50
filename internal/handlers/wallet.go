package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lootbox-backend/internal/models"
	"lootbox-backend/internal/services"
)

type WalletHandler struct {
	readModels    *services.ReadModels
	purchaser     *services.Purchaser
	notifications *services.Notifications
	objectLink    func(id string) string
}

func NewWalletHandler(readModels *services.ReadModels, purchaser *services.Purchaser, notifications *services.Notifications, objectLink func(id string) string) *WalletHandler {
	return &WalletHandler{
		readModels:    readModels,
		purchaser:     purchaser,
		notifications: notifications,
		objectLink:    objectLink,
	}
}

func (h *WalletHandler) GetBalance(c *gin.Context) {
	bal, err := h.readModels.Balance(c.Request.Context(), c.GetString("address"))
	if err != nil {
		writeError(c, "Failed to get balance", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": bal,
		"display": models.FormatSui(bal.Mist),
	})
}

func (h *WalletHandler) GetLootBoxes(c *gin.Context) {
	list, err := h.readModels.LootBoxes(c.Request.Context(), c.GetString("address"))
	if err != nil {
		writeError(c, "Failed to get loot boxes", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"boxes":   list.Boxes,
		"count":   len(list.Boxes),
	})
}

func (h *WalletHandler) GetInventory(c *gin.Context) {
	inv, err := h.readModels.Inventory(c.Request.Context(), c.GetString("address"))
	if err != nil {
		writeError(c, "Failed to get inventory", err)
		return
	}

	items, err := inv.Filter(c.DefaultQuery("rarity", "all"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid rarity filter",
			"details": err.Error(),
		})
		return
	}

	response := make([]gin.H, 0, len(items))
	for _, item := range items {
		response = append(response, gin.H{
			"id":      item.ID,
			"name":    item.Name,
			"rarity":  item.Rarity,
			"power":   item.Power,
			"version": item.Version,
			"link":    h.objectLink(item.ID),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"items":   response,
		"count":   len(response),
		"total":   len(inv.Items),
	})
}

func (h *WalletHandler) Purchase(c *gin.Context) {
	res, err := h.purchaser.Purchase(c.Request.Context(), c.GetString("address"))
	if err != nil {
		writeError(c, "Failed to purchase loot box", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"digest":  res.Digest,
	})
}

func (h *WalletHandler) GetNotifications(c *gin.Context) {
	notes := h.notifications.Recent(c.GetString("address"))

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"notifications": notes,
	})
}
