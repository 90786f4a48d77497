package database

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	IDTypeUUID   = "uuid"
	IDTypeNanoID = "nanoid"
)

// createDirIfNotExists creates a directory if it doesn't exist
func createDirIfNotExists(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GenerateID returns a new random identifier of the given kind:
// "uuid" (v4, the default for an empty kind) or "nanoid".
func GenerateID(kind string) (string, error) {
	switch kind {
	case "", IDTypeUUID:
		id, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("failed to generate uuid: %w", err)
		}
		return id.String(), nil
	case IDTypeNanoID:
		// 21 URL-safe characters
		id, err := gonanoid.New()
		if err != nil {
			return "", fmt.Errorf("failed to generate nanoid: %w", err)
		}
		return id, nil
	default:
		return "", fmt.Errorf("unknown id type '%s'", kind)
	}
}
