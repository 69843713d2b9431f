package memory_test

import (
	"testing"

	"lovetrack-backend/internal/repository"
	"lovetrack-backend/internal/repository/memory"
	"lovetrack-backend/internal/repository/repotest"
)

func TestStoreContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) *repository.Store {
		return memory.NewStore()
	})
}
