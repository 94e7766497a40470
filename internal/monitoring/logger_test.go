package monitoring

import (
	"fmt"
	"sync"
	"testing"
)

func TestSetLogger(t *testing.T) {
	restore := Mute()
	defer restore()

	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})
	Logf("steering %d", 4)

	if len(got) != 1 || got[0] != "steering 4" {
		t.Fatalf("custom logger got %q, want [\"steering 4\"]", got)
	}

	// nil installs a no-op
	SetLogger(nil)
	Logf("dropped")
	if len(got) != 1 {
		t.Errorf("no-op logger forwarded a line: %q", got)
	}
}

func TestMute_Restores(t *testing.T) {
	called := 0
	SetLogger(func(string, ...interface{}) { called++ })

	restore := Mute()
	Logf("muted")
	restore()
	Logf("audible")

	if called != 1 {
		t.Errorf("called = %d, want 1", called)
	}
	SetLogger(nil)
}

func TestLogf_ConcurrentSwap(t *testing.T) {
	restore := Mute()
	defer restore()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				Logf("tick %d", j)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				SetLogger(nil)
			}
		}()
	}
	wg.Wait()
}
