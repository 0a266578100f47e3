package app

import (
	"warehouse-ledger/internal/core"

	"github.com/shopspring/decimal"
)

type WarehouseListResult struct {
	Warehouses []core.Warehouse `json:"warehouses"`
}

type LocationListResult struct {
	WarehouseCode string          `json:"warehouse"`
	Locations     []core.Location `json:"locations"`
}

type ProductListResult struct {
	Products []core.Product `json:"products"`
}

// QuantityResult reads one stock lot. Missing lot reads as zero quantity.
type QuantityResult struct {
	WarehouseCode string            `json:"warehouse"`
	LocationCode  string            `json:"location"`
	ProductSKU    string            `json:"sku"`
	LotKey        string            `json:"lot_key"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Quantity      decimal.Decimal   `json:"quantity"`
}

type AuditSessionResult struct {
	Session core.AuditSession `json:"session"`
	Items   []core.AuditItem  `json:"items"`
}

type StockLevelsResult struct {
	WarehouseCode string            `json:"warehouse"`
	Levels        []core.StockLevel `json:"levels"`
}
