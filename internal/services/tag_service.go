package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"tresorerie/internal/core"
	applog "tresorerie/internal/log"
	"tresorerie/internal/storage"
)

type TagService struct {
	gw storage.Gateway
}

func NewTagService(gw storage.Gateway) *TagService {
	return &TagService{gw: gw}
}

func (s *TagService) Create(ctx context.Context, owner uuid.UUID, name string) (core.Tag, error) {
	t := core.Tag{OwnerID: owner, Name: strings.TrimSpace(name)}
	if err := t.Validate(); err != nil {
		return core.Tag{}, err
	}
	created, err := s.gw.InsertTag(ctx, t)
	if err != nil {
		return core.Tag{}, fmt.Errorf("create tag: %w", err)
	}
	return created, nil
}

func (s *TagService) List(ctx context.Context, owner uuid.UUID) ([]core.Tag, error) {
	return s.gw.ListTags(ctx, owner)
}

// Delete removes the tag and clears it from the owner's transactions.
// The transactions themselves are kept.
func (s *TagService) Delete(ctx context.Context, owner uuid.UUID, id int64) (CascadeReport, error) {
	report := newCascadeReport()
	tag, err := s.gw.GetTag(ctx, owner, id)
	if err != nil {
		return report, fmt.Errorf("get tag %d: %w", id, err)
	}

	steps := []cascadeStep{
		{primary: true, run: func(gw storage.Gateway) error {
			if err := gw.DeleteTag(ctx, owner, id); err != nil {
				return fmt.Errorf("delete tag %d: %w", id, err)
			}
			return nil
		}},
		{table: storage.Transactions, run: func(gw storage.Gateway) error {
			n, err := gw.ClearTagFromTransactions(ctx, owner, tag.Name)
			report.Counts[storage.Transactions] = n
			return err
		}},
	}
	if err := runCascade(ctx, s.gw, &report, steps); err != nil {
		return newCascadeReport(), err
	}

	slog.InfoContext(ctx, "Tag deleted",
		applog.FieldOperation, applog.OpDelete,
		"tag_id", id,
		"name", tag.Name,
		"cleared", report.Counts[storage.Transactions])
	return report, nil
}
