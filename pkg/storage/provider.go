// Package storage defines the digest cache contract used by the engine.
package storage

import "github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"

// TreeCache persists extracted firmware trees keyed by the container's own
// content digest. Re-comparing a multi-gigabyte archive then costs one
// streaming hash of the container instead of a full extraction.
//
// The engine stays agnostic of the backing store; a nil cache simply means
// every run extracts from scratch.
type TreeCache interface {
	// GetTree returns the cached tree for a container digest, or (nil, nil)
	// on a miss. Cached trees never carry workspace state.
	GetTree(containerDigest string) (*models.FirmwareTree, error)
	// PutTree records an extracted tree under its container digest.
	PutTree(containerDigest string, tree *models.FirmwareTree) error
	Close() error
}
