package app

import "github.com/shopspring/decimal"

// CreateLocationRequest describes a new node of a warehouse's location tree.
// Depth and parent consistency are validated by the directory service.
type CreateLocationRequest struct {
	Warehouse  string            `json:"warehouse"`
	Code       string            `json:"code"`
	Parent     string            `json:"parent,omitempty"`
	Depth      int               `json:"depth"`
	ZoneLabel  string            `json:"zone_label,omitempty"`
	AisleLabel string            `json:"aisle_label,omitempty"`
	BinCode    string            `json:"bin_code,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type CreateProductRequest struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit,omitempty"`
	Category     string          `json:"category,omitempty"`
	MinimumStock decimal.Decimal `json:"minimum_stock"`
}

// MutationInput is the transport-level shape shared by all four mutation
// endpoints. Fields irrelevant to an operation are ignored by it: Reason is
// only read by Adjust, TargetWarehouse/TargetLocation only by Transfer.
// Quantity carries the signed delta for Adjust.
type MutationInput struct {
	Warehouse       string            `json:"warehouse"`
	Location        string            `json:"location"`
	TargetWarehouse string            `json:"target_warehouse,omitempty"`
	TargetLocation  string            `json:"target_location,omitempty"`
	Product         string            `json:"product"`
	Quantity        decimal.Decimal   `json:"quantity"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	Note            string            `json:"note,omitempty"`
	IdempotencyKey  string            `json:"idempotency_key,omitempty"`
}

type ApplyStatusRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   int    `json:"entity_id"`
	StatusID   int    `json:"status_id"`
	StatusCode string `json:"status_code,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// MovementHistoryRequest filters the movement log. Empty refs mean no
// filter; Limit defaults to 100.
type MovementHistoryRequest struct {
	Warehouse string `json:"warehouse,omitempty"`
	Location  string `json:"location,omitempty"`
	Product   string `json:"product,omitempty"`
	Type      string `json:"type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}
