package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestMonitor_Reload(t *testing.T) {
	path := writeConfig(t, "options:\n  option1: first\n  option2: 1\n")
	cfg, err := LoadFrom(path, nil)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	m := NewMonitor(path, nil, cfg.Options, nil)
	if got := m.Current().Option1; got != "first" {
		t.Fatalf("Current().Option1 = %q, want first", got)
	}

	var seen Options
	calls := 0
	m.OnChange(func(o Options) { seen = o })
	m.OnChange(func(Options) { calls++ })

	if err := os.WriteFile(path, []byte("options:\n  option1: second\n  option2: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if got := m.Current(); got.Option1 != "second" || got.Option2 != 2 {
		t.Errorf("Current() = %+v", got)
	}
	if seen.Option1 != "second" {
		t.Errorf("OnChange saw %+v", seen)
	}
	if calls != 1 {
		t.Errorf("second callback ran %d times, want 1", calls)
	}
}

func TestMonitor_ReloadKeepsValueOnError(t *testing.T) {
	path := writeConfig(t, "options:\n  option1: good\n")
	m := NewMonitor(path, nil, Options{Option1: "good"}, nil)

	os.WriteFile(path, []byte("storage:\n  type: nope\n"), 0o644)
	if err := m.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if got := m.Current().Option1; got != "good" {
		t.Errorf("Current().Option1 = %q, want good", got)
	}
}

func TestMonitor_Watch(t *testing.T) {
	path := writeConfig(t, "options:\n  option1: before\n")
	m := NewMonitor(path, nil, Options{Option1: "before"}, nil)

	changed := make(chan Options, 4)
	m.OnChange(func(o Options) { changed <- o })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer m.Close()

	if err := os.WriteFile(path, []byte("options:\n  option1: after\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case o := <-changed:
			if o.Option1 == "after" {
				return
			}
		case <-deadline:
			t.Fatalf("no reload observed; Current() = %+v", m.Current())
		}
	}
}
