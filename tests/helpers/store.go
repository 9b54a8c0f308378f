// Package helpers holds fixtures shared by package tests.
package helpers

import (
	"testing"

	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/repository"
)

func NewTestSQLiteStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	s, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// Governor is a human actor allowed to move sensitive pointers.
func Governor() *domain.Actor {
	return &domain.Actor{Type: domain.ActorTypeHuman, ID: "alice", Roles: []string{domain.RoleGovernor}}
}

// Operator is a human actor without approval roles.
func Operator() *domain.Actor {
	return &domain.Actor{Type: domain.ActorTypeHuman, ID: "bob"}
}
