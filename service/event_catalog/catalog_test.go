package event_catalog

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("默认目录校验失败: %v", err)
	}
}

func TestEveryEventTypeHasEntryAndOwner(t *testing.T) {
	c := Default()
	for _, et := range AllEventTypes() {
		e, err := c.Lookup(et)
		if err != nil {
			t.Fatalf("%s: %v", et, err)
		}
		if e.Type != et {
			t.Errorf("%s: entry type = %s", et, e.Type)
		}
		if !c.OwnerOf(et).Valid() {
			t.Errorf("%s: owner %q is not a channel", et, c.OwnerOf(et))
		}
	}
}

func TestParseEventTypeRoundTrip(t *testing.T) {
	for _, et := range AllEventTypes() {
		got, err := ParseEventType(et.String())
		if err != nil {
			t.Fatalf("parse %s: %v", et, err)
		}
		if got != et {
			t.Errorf("parse %s = %s", et, got)
		}
	}

	if _, err := ParseEventType("job_teleported"); !errors.Is(err, ErrUnknownEventType) {
		t.Errorf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestValidateRejectsBrokenEntries(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Catalog)
	}{
		{"missing entry", func(c *Catalog) { c.entries[JobStarted] = Entry{} }},
		{"template field not required", func(c *Catalog) {
			c.entries[JobStarted].BodyTemplate = "{counterpart_name} started {secret}"
		}},
		{"push entry without id", func(c *Catalog) {
			c.entries[PaymentCredited].RequiredFields = []string{FieldAmountDisplay}
			c.entries[PaymentCredited].BodyTemplate = "{amount_display}"
		}},
		{"zero dedup window", func(c *Catalog) { c.entries[SOSRaised].DedupWindow = 0 }},
		{"unknown category", func(c *Catalog) { c.entries[JobCompleted].Category = "misc" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("expected ErrInvalidCatalog, got %v", err)
			}
		})
	}
}

func TestWithOverrides(t *testing.T) {
	base := Default()
	next, err := base.WithOverrides(Overrides{
		DedupWindows: map[EventType]time.Duration{JobStarted: time.Minute},
		RateLimits:   map[Category]RateLimit{CategoryPayment: {Ceiling: 3, Period: time.Minute}},
	})
	if err != nil {
		t.Fatalf("WithOverrides: %v", err)
	}

	if got := next.MustLookup(JobStarted).DedupWindow; got != time.Minute {
		t.Errorf("dedup window = %v", got)
	}
	if got := base.MustLookup(JobStarted).DedupWindow; got == time.Minute {
		t.Errorf("base catalog was mutated")
	}
	p, _ := next.Policy(CategoryPayment)
	if p.RateLimit.Ceiling != 3 {
		t.Errorf("rate limit = %+v", p.RateLimit)
	}

	if _, err := base.WithOverrides(Overrides{RateLimits: map[Category]RateLimit{"misc": {}}}); err == nil {
		t.Errorf("expected error for unknown category")
	}
}

func TestRender(t *testing.T) {
	data := map[string]string{"helper_name": "Ana", "job_title": "Fix sink"}
	got := Render("{helper_name} applied to {job_title} {unknown}", data)
	if want := "Ana applied to Fix sink {unknown}"; got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}

	fields := TemplateFields("New job near {location_label}: {job_title}")
	if len(fields) != 2 || fields[0] != "location_label" || fields[1] != "job_title" {
		t.Errorf("TemplateFields = %v", fields)
	}
}
