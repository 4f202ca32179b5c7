package schedule

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iago/socialdesk-back/internal/domain"
	"github.com/iago/socialdesk-back/internal/repository"
)

func intPtr(value int) *int {
	return &value
}

func newTestService(now time.Time) (*Service, *repository.MemoryScheduleRepository) {
	schedules := repository.NewMemoryScheduleRepository()
	service := NewService(schedules, repository.NewMemoryRunRepository())
	service.now = func() time.Time { return now }
	return service, schedules
}

func TestCreateComputesNextRun(t *testing.T) {
	now := time.Date(2026, 6, 20, 10, 0, 0, 0, time.UTC)
	service, _ := newTestService(now)

	created, err := service.Create(context.Background(), "owner-1", CreateInput{
		Name:       " Monthly posts ",
		ReportType: domain.ReportPosts,
		Frequency:  domain.FrequencyMonthly,
		DayOfMonth: intPtr(15),
		TimeOfDay:  "09:00",
		Platform:   "Instagram",
		Recipients: []string{"Ops@Example.com", "ops@example.com"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created.NextRunAt.Equal(time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next run %s", created.NextRunAt)
	}
	if created.Name != "Monthly posts" || created.Format != domain.FormatPDF || !created.IsActive {
		t.Fatalf("unexpected defaults %+v", created)
	}
	if created.Platform != "instagram" || len(created.Recipients) != 1 {
		t.Fatalf("unexpected normalization %+v", created)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	service, _ := newTestService(time.Now())
	valid := CreateInput{Name: "x", ReportType: domain.ReportPosts, Frequency: domain.FrequencyDaily}

	cases := map[string]func(*CreateInput){
		"name":      func(in *CreateInput) { in.Name = " " },
		"type":      func(in *CreateInput) { in.ReportType = "revenue" },
		"format":    func(in *CreateInput) { in.Format = "xlsx" },
		"frequency": func(in *CreateInput) { in.Frequency = "hourly" },
		"time":      func(in *CreateInput) { in.TimeOfDay = "25:00" },
		"dow":       func(in *CreateInput) { in.DayOfWeek = intPtr(7) },
		"dom":       func(in *CreateInput) { in.DayOfMonth = intPtr(0) },
		"email":     func(in *CreateInput) { in.Recipients = []string{"not-an-email"} },
		"too many": func(in *CreateInput) {
			in.Recipients = nil
			for i := 0; i < 21; i++ {
				in.Recipients = append(in.Recipients, strings.Repeat("a", i+1)+"@example.com")
			}
		},
	}
	for name, mutate := range cases {
		input := valid
		mutate(&input)
		if _, err := service.Create(context.Background(), "owner-1", input); !errors.Is(err, ErrInvalidSchedule) {
			t.Fatalf("%s: expected invalid schedule, got %v", name, err)
		}
	}
}

func TestUpdateRecomputesOnlyWhenTimingChanges(t *testing.T) {
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	service, _ := newTestService(now)
	ctx := context.Background()

	created, err := service.Create(ctx, "owner-1", CreateInput{Name: "Daily", ReportType: domain.ReportMessages, Frequency: domain.FrequencyDaily, TimeOfDay: "08:00"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	renamed := "Renamed"
	updated, err := service.Update(ctx, "owner-1", created.ID, domain.SchedulePatch{Name: &renamed})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if !updated.NextRunAt.Equal(created.NextRunAt) || updated.Name != "Renamed" {
		t.Fatalf("expected rename to keep next run, got %+v", updated)
	}

	weekly := domain.FrequencyWeekly
	updated, err = service.Update(ctx, "owner-1", created.ID, domain.SchedulePatch{Frequency: &weekly, DayOfWeek: intPtr(int(time.Friday))})
	if err != nil {
		t.Fatalf("retime: %v", err)
	}
	if !updated.NextRunAt.Equal(time.Date(2026, 6, 12, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected friday run, got %s", updated.NextRunAt)
	}
}

func TestOwnerScoping(t *testing.T) {
	service, _ := newTestService(time.Now())
	ctx := context.Background()
	created, _ := service.Create(ctx, "owner-1", CreateInput{Name: "Mine", ReportType: domain.ReportPosts, Frequency: domain.FrequencyDaily})

	if _, err := service.Get(ctx, "owner-2", created.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found for other owner, got %v", err)
	}
	name := "Hijack"
	if _, err := service.Update(ctx, "owner-2", created.ID, domain.SchedulePatch{Name: &name}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if err := service.Delete(ctx, "owner-2", created.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
	if list, _ := service.List(ctx, "owner-1"); len(list) != 1 {
		t.Fatalf("expected own schedule listed")
	}
}
