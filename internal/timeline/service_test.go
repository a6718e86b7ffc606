package timeline

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestTimeline(t *testing.T) *TimelineService {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "timeline.db")
	svc, err := NewTimelineService(dbPath)
	if err != nil {
		t.Fatalf("failed to create timeline service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestRecordDecisionFillsDefaults(t *testing.T) {
	svc := newTestTimeline(t)

	d := &Decision{TraceID: "t1", Channel: "discord", ChatID: "c1", MessageID: "m1", Outcome: "no_trigger"}
	if err := svc.RecordDecision(d); err != nil {
		t.Fatalf("record: %v", err)
	}
	if d.ID == 0 || d.EventID == "" || d.CreatedAt.IsZero() {
		t.Fatalf("expected defaults filled, got %+v", d)
	}
	if d.DeliveryStatus != DeliveryNone {
		t.Fatalf("expected delivery status none, got %q", d.DeliveryStatus)
	}

	got, err := svc.ListDecisions(FilterArgs{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].EventID != d.EventID || got[0].MessageID != "m1" {
		t.Fatalf("unexpected rows %+v", got)
	}
}

func TestDeliveryLifecycle(t *testing.T) {
	svc := newTestTimeline(t)

	if err := svc.RecordDecision(&Decision{TraceID: "t1", Channel: "discord", ChatID: "c1", Outcome: "reply", Reply: "A", DeliveryStatus: DeliveryPending}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.UpdateDelivery("t1", DeliverySent, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := svc.ListDecisions(FilterArgs{Limit: 1})
	if got[0].DeliveryStatus != DeliverySent || got[0].DeliveredAt == nil {
		t.Fatalf("expected sent with timestamp, got %+v", got[0])
	}

	if err := svc.UpdateDelivery("t1", DeliveryFailed, "rate limited"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, _ = svc.ListDecisions(FilterArgs{Limit: 1})
	if got[0].DeliveryStatus != DeliveryFailed || got[0].DeliveryError != "rate limited" || got[0].DeliveredAt != nil {
		t.Fatalf("expected failed with reason, got %+v", got[0])
	}

	if err := svc.UpdateDelivery("missing", DeliverySent, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListDecisionsFiltersAndOrders(t *testing.T) {
	svc := newTestTimeline(t)
	base := time.Unix(1_700_000_000, 0)
	rows := []Decision{
		{TraceID: "t1", Channel: "discord", ChatID: "c1", Outcome: "reply", CreatedAt: base},
		{TraceID: "t2", Channel: "discord", ChatID: "c2", Outcome: "suspended", SuspendedUntil: 1_700_000_600, CreatedAt: base.Add(time.Second)},
		{TraceID: "t3", Channel: "slack", ChatID: "c1", Outcome: "reply", AuthorIsBot: true, CreatedAt: base.Add(2 * time.Second)},
	}
	for i := range rows {
		if err := svc.RecordDecision(&rows[i]); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	all, _ := svc.ListDecisions(FilterArgs{})
	if len(all) != 3 || all[0].TraceID != "t3" || all[2].TraceID != "t1" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	if !all[0].AuthorIsBot || !all[0].CreatedAt.Equal(base.Add(2*time.Second)) {
		t.Fatalf("unexpected round trip %+v", all[0])
	}

	replies, _ := svc.ListDecisions(FilterArgs{Outcome: "reply"})
	if len(replies) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(replies))
	}
	c1Discord, _ := svc.ListDecisions(FilterArgs{Channel: "discord", ChatID: "c1"})
	if len(c1Discord) != 1 || c1Discord[0].TraceID != "t1" {
		t.Fatalf("unexpected chat filter result %+v", c1Discord)
	}
	page, _ := svc.ListDecisions(FilterArgs{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].TraceID != "t2" || page[0].SuspendedUntil != 1_700_000_600 {
		t.Fatalf("unexpected page %+v", page)
	}

	counts, err := svc.CountByOutcome()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts["reply"] != 2 || counts["suspended"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}

	n, err := svc.Prune(base.Add(time.Second))
	if err != nil || n != 1 {
		t.Fatalf("expected one pruned row, got %d / %v", n, err)
	}
}
