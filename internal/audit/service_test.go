package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubTimelineRepo struct {
	rows     []TimelineRow
	err      error
	lastCall WindowParams
}

func (s *stubTimelineRepo) Window(ctx context.Context, params WindowParams) ([]TimelineRow, error) {
	s.lastCall = params
	return s.rows, s.err
}

func mockRow(ts, action, entityID string) TimelineRow {
	at, _ := time.Parse(time.RFC3339, ts)
	return TimelineRow{At: at, Action: action, Entity: "role_capability", EntityID: entityID}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{
		rows: []TimelineRow{
			mockRow("2024-03-10T10:00:00Z", "security.capability.seeded", "ROLE_EDITOR::content.publish"),
			mockRow("2024-03-09T09:00:00Z", "security.capability.seeded", "ROLE_ADMIN::content.publish"),
			mockRow("2024-03-08T08:00:00Z", "security.capability.seeded", "ROLE_ADMIN::content.delete"),
		},
	}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		Action:   "  security.capability.seeded ",
		Page:     1,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected next page 2, got %+v", result.Paging)
	}
	if repo.lastCall.Limit != 3 {
		t.Fatalf("expected limit 3, got %d", repo.lastCall.Limit)
	}
	if repo.lastCall.Offset != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastCall.Offset)
	}
	if repo.lastCall.Action != "security.capability.seeded" {
		t.Fatalf("expected trimmed action filter, got %q", repo.lastCall.Action)
	}
}

func TestServiceTimelineClampsPage(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if repo.lastCall.Limit != 51 || repo.lastCall.Offset != 100 {
		t.Fatalf("unexpected window %+v", repo.lastCall)
	}
	if result.Paging.PrevPage != 2 || result.Paging.HasNext {
		t.Fatalf("unexpected paging %+v", result.Paging)
	}
}

func TestServiceTimelinePropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&stubTimelineRepo{err: boom})
	if _, err := svc.Timeline(context.Background(), TimelineFilters{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := NewService(nil).Timeline(context.Background(), TimelineFilters{}); err == nil {
		t.Fatalf("expected error for missing repository")
	}
}
