package cron

import (
	"testing"
	"time"
)

func TestSchedulerFiresRegisteredTrigger(t *testing.T) {
	fired := make(chan string, 4)
	s := New(func(libraryPath string) { fired <- libraryPath })
	s.Register(LibrarySchedule{LibraryPath: "/libraries/comics", Expression: "@every 20ms"})
	s.Start()
	defer s.Stop()

	select {
	case path := <-fired:
		if path != "/libraries/comics" {
			t.Fatalf("triggered path = %q, want /libraries/comics", path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the scheduled trigger to fire")
	}
}

func TestSchedulerSkipsInvalidExpressionWithoutPanicking(t *testing.T) {
	fired := make(chan string, 1)
	s := New(func(libraryPath string) { fired <- libraryPath })
	s.Register(LibrarySchedule{LibraryPath: "/libraries/broken", Expression: "not a cron expression"})
	s.Start()
	defer s.Stop()

	select {
	case <-fired:
		t.Fatal("an invalid expression should never fire")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSchedulerRunsMultipleLibrariesIndependently(t *testing.T) {
	fired := make(chan string, 8)
	s := New(func(libraryPath string) { fired <- libraryPath })
	s.Register(LibrarySchedule{LibraryPath: "/libraries/a", Expression: "@every 20ms"})
	s.Register(LibrarySchedule{LibraryPath: "/libraries/b", Expression: "@every 20ms"})
	s.Start()
	defer s.Stop()

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case path := <-fired:
			seen[path] = true
		case <-deadline:
			t.Fatalf("timed out waiting for both libraries to fire, saw %v", seen)
		}
	}
}
