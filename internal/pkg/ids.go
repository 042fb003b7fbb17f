package pkg

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateMatchID returns a random identifier for a new match.
func GenerateMatchID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate match id: %w", err)
	}

	return id.String(), nil
}
