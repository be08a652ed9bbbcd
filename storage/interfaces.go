package storage

import (
	"context"

	"github.com/tschoem/rental-manager-sub000/models"
)

// RoomStore is the persistence surface the importer needs: sibling
// ordering, room creation, and image-record bookkeeping.
type RoomStore interface {
	// NextRoomOrder returns max existing sibling order + 1, or 0 when the
	// property has no rooms yet.
	NextRoomOrder(ctx context.Context, propertyID int64) (int, error)

	// CreateRoom inserts the room and fills in its generated ID.
	CreateRoom(ctx context.Context, room *models.Room) error

	// ExistingSourceURLs returns the scraped source URL of every image
	// already attached to the property or to any of its rooms. Imports
	// dedupe against this set before downloading anything.
	ExistingSourceURLs(ctx context.Context, propertyID int64) ([]string, error)

	// InsertImages persists image records; each carries its stored URL and
	// the source URL it was downloaded from.
	InsertImages(ctx context.Context, images []models.Image) error
}

// ImageStore fetches a remote image and persists it to the configured
// backing store, returning a stable URL. Implementations may fail per
// image; callers must tolerate individual failures.
type ImageStore interface {
	DownloadAndStore(ctx context.Context, sourceURL, folder string) (string, error)
}
