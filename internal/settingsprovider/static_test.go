package settingsprovider

import (
	"context"
	"testing"
)

func TestStaticDefaultsSchedule(t *testing.T) {
	p := NewStatic("", false)
	settings, ok, err := p.GetSettings(context.Background(), "Foo")
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if settings.Schedule != "* * * * *" {
		t.Fatalf("schedule = %q, want default", settings.Schedule)
	}
	if settings.Enable {
		t.Fatal("expected disabled by default")
	}
}

func TestStaticOrder(t *testing.T) {
	p := NewStatic("*/5 * * * *", true)
	if p.Order() != StaticOrder {
		t.Fatalf("Order() = %d, want %d", p.Order(), StaticOrder)
	}
	settings, ok, _ := p.GetSettings(context.Background(), "Bar")
	if !ok || settings.Name != "Bar" || settings.Schedule != "*/5 * * * *" || !settings.Enable {
		t.Fatalf("unexpected settings: %+v ok=%v", settings, ok)
	}
}
