// Package util provides id generation for products and orders.
package util

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a random RFC 4122 v4 UUID string, used for product ids.
func GenerateUUID() string {
	return uuid.NewString()
}

// NewOrderID returns a ULID. ULIDs sort by creation time, which keeps order
// ids in step with the newest-first listing.
func NewOrderID() string {
	return ulid.Make().String()
}
