// Package catalog implements the Volume Catalog Client: REST CRUD against
// the management plane for network volumes, client-side validation of size
// bounds and datacenter ids, and the primary/fallback path behavior for the
// list endpoint. Grounded on original_source/core/client.py's RunpodClient,
// the only source in the pack implementing this REST management plane (the
// teacher, gostratum-storagex, has no management-plane client at all).
package catalog

import "time"

// VolumeStatus mirrors the management plane's volume lifecycle status,
// grounded on original_source/core/models.py's VolumeStatus enum.
type VolumeStatus string

const (
	VolumeStatusPending VolumeStatus = "pending"
	VolumeStatusActive  VolumeStatus = "active"
	VolumeStatusDeleted VolumeStatus = "deleted"
)

// Volume is a network volume as returned by the management plane.
type Volume struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Size         int          `json:"size"` // GiB
	DataCenterID string       `json:"dataCenterId"`
	Status       VolumeStatus `json:"status,omitempty"`
	CreatedAt    time.Time    `json:"createdAt,omitempty"`
}

// CreateVolumeRequest is validated client-side (spec.md §4.2) before any
// network call is made: Name must match [A-Za-z0-9_-]{1,64}; Size must be
// 10..4000 GiB; DataCenterID must normalize via the endpoint registry.
type CreateVolumeRequest struct {
	Name         string `json:"name" validate:"required,max=64"`
	Size         int    `json:"size" validate:"required,min=10,max=4000"`
	DataCenterID string `json:"dataCenterId" validate:"required"`
}

// UpdateVolumeRequest patches a volume's name and/or size. At least one
// field must be set; size may only increase (enforced server-side, and
// surfaced client-side as a ValidationFailed error on any 4xx citing
// shrinkage).
type UpdateVolumeRequest struct {
	Name *string `json:"name,omitempty"`
	Size *int    `json:"size,omitempty" validate:"omitempty,min=10,max=4000"`
}

// nameCharset is validated by hand in client.go (validator/v10 has no
// built-in charset tag expressive enough for the exact allowed set without
// a regexp tag, and a regexp literal in a struct tag is harder to read than
// the equivalent loop) — see validateCreate.
const nameCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"
