// Package repository holds the MongoDB persistence for each collection.
// Services depend on small interfaces they declare themselves; the types
// here are the production implementations wired up in main.
package repository

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

func mapNotFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
