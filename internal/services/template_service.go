package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"tresorerie/internal/core"
	"tresorerie/internal/storage"
)

// TemplateService exposes the user-facing operations on recurring templates.
type TemplateService struct {
	gw storage.Gateway
}

func NewTemplateService(gw storage.Gateway) *TemplateService {
	return &TemplateService{gw: gw}
}

func (s *TemplateService) List(ctx context.Context, owner uuid.UUID) ([]core.RecurringTemplate, error) {
	return s.gw.ListTemplates(ctx, owner)
}

func (s *TemplateService) Get(ctx context.Context, owner uuid.UUID, id int64) (core.RecurringTemplate, error) {
	return s.gw.GetTemplate(ctx, owner, id)
}

// SetActive pauses or resumes a template. NextRunDate is left untouched, so
// a template resumed after a long pause is immediately due for the missed
// occurrences.
func (s *TemplateService) SetActive(ctx context.Context, owner uuid.UUID, id int64, active bool) (core.RecurringTemplate, error) {
	if err := s.gw.SetTemplateActive(ctx, owner, id, active); err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("set template %d active=%v: %w", id, active, err)
	}
	rt, err := s.gw.GetTemplate(ctx, owner, id)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("get template %d: %w", id, err)
	}
	slog.InfoContext(ctx, "Recurring template state changed",
		"template_id", id,
		"state", rt.State(),
		"next_run_date", rt.NextRunDate.String())
	return rt, nil
}

func (s *TemplateService) Delete(ctx context.Context, owner uuid.UUID, id int64) error {
	if err := s.gw.DeleteTemplate(ctx, owner, id); err != nil {
		return fmt.Errorf("delete template %d: %w", id, err)
	}
	return nil
}
