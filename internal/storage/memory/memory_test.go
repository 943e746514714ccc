package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"tresorerie/internal/core"
	"tresorerie/internal/storage"
	"tresorerie/internal/storage/storagetest"
)

func TestGatewayContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Gateway { return New() })
}

func TestMemoryStoreIsNotTransactional(t *testing.T) {
	var gw storage.Gateway = New()
	if _, ok := gw.(storage.TxRunner); ok {
		t.Fatalf("memory store must not advertise atomic units")
	}
}

func TestNewFromFileSeedsCategories(t *testing.T) {
	dir := t.TempDir()
	owner := uuid.New()

	// No file -> empty store
	s, err := NewFromFile(filepath.Join(dir, "missing.txt"), owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cats, _ := s.ListCategories(context.Background(), owner)
	if len(cats) != 0 {
		t.Fatalf("expected no categories, got %v", cats)
	}

	path := filepath.Join(dir, "seed_categories.txt")
	content := "# header\nIncome,Salary\nExpense, Rent\nFood\n\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s, err = NewFromFile(path, owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cats, _ = s.ListCategories(context.Background(), owner)
	if len(cats) != 3 || cats[0].Name != "Food" || cats[1].Name != "Rent" || cats[2].Type != core.Income {
		t.Fatalf("unexpected categories: %+v", cats)
	}

	// duplicates are rejected
	if err := os.WriteFile(path, []byte("Food\nFood\n"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := NewFromFile(path, owner); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if err := os.WriteFile(path, []byte("Transfer,Savings\n"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := NewFromFile(path, owner); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
