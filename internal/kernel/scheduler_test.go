package kernel

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestPriorityThenRoundRobin(t *testing.T) {
	k, _ := newTestKernel(t, 5)
	var turns []string
	a := mustCreate(t, k, "A", 2, turnRecorder(&turns))
	b := mustCreate(t, k, "B", 12, turnRecorder(&turns))
	c := mustCreate(t, k, "C", 10, turnRecorder(&turns))
	mustStart(t, k)

	want := []Handle{b, c, a, b, c, a, b}
	for i, w := range want {
		if got := mustStep(t, k); got != w {
			t.Fatalf("selection %d: expected %d, got %d", i+1, w, got)
		}
	}
	if !equal(turns, []string{"B", "C", "A", "B", "C", "A", "B"}) {
		t.Fatalf("unexpected turns %v", turns)
	}
	if got := k.Rounds(); got != 3 {
		t.Fatalf("expected 3 rounds begun, got %d", got)
	}
	if got := names(k, k.Round()); !equal(got, []string{"B"}) {
		t.Fatalf("expected current round [B], got %v", got)
	}
}

func TestModifyPriorityResetsRound(t *testing.T) {
	k, d := newTestKernel(t, 5)
	var turns []string
	a := mustCreate(t, k, "A", 2, turnRecorder(&turns))
	b := mustCreate(t, k, "B", 12, turnRecorder(&turns))
	c := mustCreate(t, k, "C", 10, turnRecorder(&turns))
	mustStart(t, k)

	for i := 0; i < 4; i++ {
		mustStep(t, k)
	}
	// round 2 has run B only; C and A are still unscheduled
	if err := k.ModifyPriority(a, 20); err != nil {
		t.Fatal(err)
	}
	if !d.contains("A priority changed to 20\n") {
		t.Fatalf("missing diagnostic, got %q", d.String())
	}

	for i, w := range []Handle{a, b, c, a} {
		if got := mustStep(t, k); got != w {
			t.Fatalf("selection %d after change: expected %d, got %d", i+1, w, got)
		}
	}
}

func TestModifyPriorityFromTask(t *testing.T) {
	k, _ := newTestKernel(t, 5)
	var turns []string
	mustCreate(t, k, "A", 2, turnRecorder(&turns))
	mustCreate(t, k, "B", 12, turnRecorder(&turns))
	mustCreate(t, k, "C", 10, func(c *Context) {
		c.Yield()
		a, _ := c.Lookup("A")
		if err := c.SetPriority(a, 20); err != nil {
			panic(err)
		}
		turns = append(turns, "C")
		for {
			c.Yield()
			turns = append(turns, "C")
		}
	})
	mustStart(t, k)

	for i := 0; i < 6; i++ {
		mustStep(t, k)
	}
	if want := []string{"B", "C", "A", "B", "C", "A"}; !equal(turns, want) {
		t.Fatalf("expected %v, got %v", want, turns)
	}
	if tcb, _ := k.Task(0); tcb.Priority != 20 {
		t.Fatalf("expected priority 20, got %d", tcb.Priority)
	}
}

func TestEqualPrioritiesGoByIndex(t *testing.T) {
	k, _ := newTestKernel(t, 4)
	var turns []string
	for _, n := range []string{"w", "x", "y", "z"} {
		mustCreate(t, k, n, 7, turnRecorder(&turns))
	}
	mustStart(t, k)
	for i := 0; i < 8; i++ {
		mustStep(t, k)
	}
	if want := []string{"w", "x", "y", "z", "w", "x", "y", "z"}; !equal(turns, want) {
		t.Fatalf("expected %v, got %v", want, turns)
	}
}

func TestRoundRobinFairness(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		n := 1 + rng.Intn(5)

		k, _ := newTestKernel(t, n)
		var turns []string
		prios := make(map[string]uint32, n)
		for i := 0; i < n; i++ {
			name := string(rune('a' + i))
			prios[name] = uint32(rng.Intn(4))
			mustCreate(t, k, name, prios[name], turnRecorder(&turns))
		}
		mustStart(t, k)

		rounds := 1 + rng.Intn(4)
		for i := 0; i < n*rounds; i++ {
			mustStep(t, k)
		}

		for r := 0; r < rounds; r++ {
			round := turns[r*n : (r+1)*n]
			seen := make(map[string]bool, n)
			for i, name := range round {
				if seen[name] {
					t.Fatalf("seed %d: %s selected twice in round %d: %v", seed, name, r, round)
				}
				seen[name] = true
				if i > 0 && prios[round[i-1]] < prios[name] {
					t.Fatalf("seed %d: %s ran before higher priority %s: %v", seed, round[i-1], name, round)
				}
			}
		}
		k.Halt()
	}
}

func TestIdleIterationFallsBackToFirstTask(t *testing.T) {
	var events []EventKind
	k, _ := newTestKernel(t, 2, WithObserver(func(ev Event) { events = append(events, ev.Kind) }))
	var turns []string
	x := mustCreate(t, k, "X", 12, func(c *Context) {
		c.Yield()
		turns = append(turns, "X")
		_ = c.Suspend()
		t.Error("X resumed without a resume")
	})
	y := mustCreate(t, k, "Y", 2, turnRecorder(&turns))
	mustStart(t, k)

	want := []Handle{x, y, y, x, y, x}
	for i, w := range want {
		if got := mustStep(t, k); got != w {
			t.Fatalf("selection %d: expected %d, got %d", i+1, w, got)
		}
	}
	if want := []string{"X", "Y", "Y", "Y"}; !equal(turns, want) {
		t.Fatalf("expected %v, got %v", want, turns)
	}

	idle := 0
	for _, e := range events {
		if e == EventIdle {
			idle++
		}
	}
	if idle != 2 {
		t.Fatalf("expected 2 idle iterations, got %d", idle)
	}
	if tcb, _ := k.Task(x); tcb.State != Suspended || tcb.Dispatches != 1 {
		t.Fatalf("unexpected X %+v", tcb)
	}
}

func TestStepReportsStarvation(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	mustCreate(t, k, "solo", 1, func(c *Context) {
		c.Yield()
		_ = c.Suspend()
	})
	mustStart(t, k)
	mustStep(t, k)
	if _, err := k.Step(); !errors.Is(err, ErrStarved) {
		t.Fatalf("expected ErrStarved, got %v", err)
	}
}

func TestOneRunningTaskAtATime(t *testing.T) {
	k, _ := newTestKernel(t, 3)
	var violations int
	body := func(c *Context) {
		for {
			c.Yield()
			running := 0
			for i := 0; i < k.Len(); i++ {
				tcb, _ := k.Task(Handle(i))
				if tcb.State == Running {
					running++
				}
				if tcb.State == Waiting {
					violations++
				}
			}
			if running != 1 {
				violations++
			}
			if tcb, _ := k.Task(c.Self()); tcb.State != Running {
				violations++
			}
		}
	}
	for i, p := range []uint32{1, 5, 3} {
		mustCreate(t, k, string(rune('p'+i)), p, body)
	}
	mustStart(t, k)
	for i := 0; i < 12; i++ {
		mustStep(t, k)
	}
	if violations != 0 {
		t.Fatalf("%d invariant violations", violations)
	}
	for i := 0; i < k.Len(); i++ {
		if tcb, _ := k.Task(Handle(i)); tcb.State != Ready {
			t.Fatalf("task %d: expected ready between steps, got %s", i, tcb.State)
		}
	}
}

func TestPreemptionBySysTick(t *testing.T) {
	k, _ := newTestKernel(t, 1, WithSysTick(newTick(10)))

	var work int
	h := mustCreate(t, k, "spin", 1, func(c *Context) {
		c.Yield()
		for {
			work++
			c.Delay(1)
		}
	})
	mustStart(t, k)

	mustStep(t, k)
	if work != 10 {
		t.Fatalf("expected 10 units before preemption, got %d", work)
	}
	mustStep(t, k)
	if work != 20 {
		t.Fatalf("expected 20 units after second slice, got %d", work)
	}
	if tcb, _ := k.Task(h); tcb.Preemptions != 2 || tcb.Dispatches != 2 {
		t.Fatalf("unexpected counters %+v", tcb)
	}
}

func TestRegistersSurvivePreemption(t *testing.T) {
	k, _ := newTestKernel(t, 2, WithSysTick(newTick(3)))
	var mismatches int
	body := func(base uint32) TaskFunc {
		return func(c *Context) {
			c.Yield()
			for i := 0; i < 13; i++ {
				c.SetReg(i, base+uint32(i))
			}
			for {
				c.Delay(1)
				for i := 0; i < 13; i++ {
					if c.Reg(i) != base+uint32(i) {
						mismatches++
					}
				}
			}
		}
	}
	mustCreate(t, k, "a", 1, body(0xA000))
	mustCreate(t, k, "b", 1, body(0xB000))
	mustStart(t, k)
	for i := 0; i < 10; i++ {
		mustStep(t, k)
	}
	if mismatches != 0 {
		t.Fatalf("%d register mismatches after preemption", mismatches)
	}
}

func TestRunHonoursStepLimitAndContext(t *testing.T) {
	k, _ := newTestKernel(t, 2, WithStepLimit(5))
	var turns []string
	mustCreate(t, k, "a", 1, turnRecorder(&turns))
	mustCreate(t, k, "b", 2, turnRecorder(&turns))
	if err := k.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(turns) != 5 {
		t.Fatalf("expected 5 turns, got %d", len(turns))
	}

	k2, _ := newTestKernel(t, 1)
	mustCreate(t, k2, "a", 1, turnRecorder(&turns))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := k2.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if k2.Steps() != 0 {
		t.Fatalf("expected no steps with a cancelled context, got %d", k2.Steps())
	}
}

func TestEventsForOneStep(t *testing.T) {
	var events []Event
	k, _ := newTestKernel(t, 1, WithObserver(func(ev Event) { events = append(events, ev) }))
	var turns []string
	mustCreate(t, k, "a", 1, turnRecorder(&turns))
	mustStart(t, k)
	mustStep(t, k)

	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.Kind.String())
	}
	want := []string{"Create", "Ready", "RoundReset", "Dispatch", "Yield"}
	if !equal(kinds, want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	if ev := events[3]; ev.Slot != 0 || ev.Round != 1 || ev.State != Running {
		t.Fatalf("unexpected dispatch event %+v", ev)
	}
}

func TestDispatchBanner(t *testing.T) {
	k, d := newTestKernel(t, 1, WithDispatchBanner(true))
	var turns []string
	mustCreate(t, k, "a", 1, turnRecorder(&turns))
	mustStart(t, k)
	mustStep(t, k)

	want := "OS: Starting...\nOS: First create task 0\nScheduler start!\nOS: Activate next task\nOS: Back to OS\n"
	if got := d.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestHaltStopsRunningScheduler(t *testing.T) {
	k, _ := newTestKernel(t, 2, WithSysTick(newTick(5)))
	spin := func(c *Context) {
		c.Yield()
		for {
			c.Delay(1)
		}
	}
	mustCreate(t, k, "a", 1, spin)
	mustCreate(t, k, "b", 1, spin)

	done := make(chan error, 1)
	go func() { done <- k.Run(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	k.Halt()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run still blocked after Halt")
	}

	if _, err := k.Step(); !errors.Is(err, ErrHalted) {
		t.Fatalf("expected ErrHalted, got %v", err)
	}
	if _, err := k.Create("late", 1, spin); !errors.Is(err, ErrStarted) && !errors.Is(err, ErrHalted) {
		t.Fatalf("expected create to be refused, got %v", err)
	}
}

func TestHaltBeforeStart(t *testing.T) {
	k, _ := newTestKernel(t, 2)
	var turns []string
	mustCreate(t, k, "a", 1, turnRecorder(&turns))
	k.Halt()
	if err := k.Start(); !errors.Is(err, ErrHalted) {
		t.Fatalf("expected ErrHalted, got %v", err)
	}
	if _, err := k.Create("b", 1, turnRecorder(&turns)); !errors.Is(err, ErrHalted) {
		t.Fatalf("expected ErrHalted, got %v", err)
	}
}

func TestCreateBanners(t *testing.T) {
	k, d := newTestKernel(t, 3)
	var turns []string
	for _, n := range []string{"a", "b", "c"} {
		mustCreate(t, k, n, 1, turnRecorder(&turns))
	}
	want := "OS: Starting...\nOS: First create task 0\nOS: Back to OS, create task 1\nOS: Back to OS, create task 2\n"
	if got := d.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestParseEventKind(t *testing.T) {
	for k := EventCreate; k <= EventFault; k++ {
		got, err := ParseEventKind(k.String())
		if err != nil || got != k {
			t.Fatalf("%s: got %v, %v", k, got, err)
		}
	}
	if got, err := ParseEventKind("roundreset"); err != nil || got != EventRoundReset {
		t.Fatalf("expected case-insensitive match, got %v, %v", got, err)
	}
	if _, err := ParseEventKind("Teleport"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
