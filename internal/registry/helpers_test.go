package registry

import (
	"time"

	"github.com/cburnette/deaddrop/internal/models"
)

func testAgent(id, name string) *models.Agent {
	return &models.Agent{
		ID:          id,
		Name:        name,
		Description: "test",
		Active:      true,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
		AuthHash:    "digest-" + id,
	}
}
