package queue

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pilot/internal/actions"
)

type spyRunner struct {
	calls int
	seen  []actions.Action
	fail  func(a actions.Action) bool
	boom  bool
}

func (s *spyRunner) Run(_ context.Context, a actions.Action) Outcome {
	s.calls++
	s.seen = append(s.seen, a)
	if s.boom {
		panic("runner exploded")
	}
	if s.fail != nil && s.fail(a) {
		return Outcome{Err: errors.New("boom")}
	}
	return Outcome{Success: true, Output: "ok"}
}

func sampleActions() []actions.Action {
	return []actions.Action{
		{Kind: actions.KindFile, Path: "src/a.py", Content: "A"},
		{Kind: actions.KindCommand, Command: "mkdir -p src"},
		{Kind: actions.KindFile, Path: "src/b.py", Content: "B"},
		{Kind: actions.KindCommand, Command: "npm install"},
	}
}

func TestNew_CommandsBeforeFiles(t *testing.T) {
	q := New(sampleActions())
	if q.Len() != 4 {
		t.Fatalf("len=%d, want 4", q.Len())
	}

	got := make([]string, 0, 4)
	for _, it := range q.Items() {
		if it.Action.Kind == actions.KindCommand {
			got = append(got, it.Action.Command)
		} else {
			got = append(got, it.Action.Path)
		}
	}
	want := []string{"mkdir -p src", "npm install", "src/a.py", "src/b.py"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}

	if q.Items()[0].ID != "action-1" || q.Items()[3].ID != "action-4" {
		t.Fatalf("ids = %q %q", q.Items()[0].ID, q.Items()[3].ID)
	}
	for _, it := range q.Items() {
		if it.Status != StatusPending {
			t.Fatalf("item %s status = %q, want pending", it.ID, it.Status)
		}
	}
}

func TestNew_DisplayFallsBackToAction(t *testing.T) {
	q := New([]actions.Action{
		{Kind: actions.KindCommand, Description: "set up tree", Command: "mkdir -p x"},
		{Kind: actions.KindCommand, Command: "npm install"},
		{Kind: actions.KindFile, Path: "a.txt", Content: "x"},
	})

	if q.Items()[0].Display != "set up tree" {
		t.Fatalf("display = %q", q.Items()[0].Display)
	}
	if q.Items()[1].Display != "npm install" {
		t.Fatalf("display = %q", q.Items()[1].Display)
	}
	if q.Items()[2].Display != "Create a.txt" {
		t.Fatalf("display = %q", q.Items()[2].Display)
	}
}

func TestSkip_NeverInvokesRunner(t *testing.T) {
	q := New(sampleActions())
	spy := &spyRunner{}

	first := q.Next()
	if err := q.Skip(first); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if first.Status != StatusCompleted || first.Result != SkippedResult {
		t.Fatalf("skipped item = %+v", first)
	}

	if err := q.RunAll(context.Background(), spy); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	// 被跳过的动作不会进入执行器 / the skipped action never reaches the runner
	if spy.calls != 3 {
		t.Fatalf("runner calls = %d, want 3", spy.calls)
	}
	for _, a := range spy.seen {
		if a.Command == first.Action.Command && a.Kind == actions.KindCommand {
			t.Fatalf("runner saw skipped action %+v", a)
		}
	}
}

func TestRunAll_ContinuesPastFailure(t *testing.T) {
	q := New(sampleActions())
	spy := &spyRunner{fail: func(a actions.Action) bool {
		return a.Command == "npm install"
	}}

	if err := q.RunAll(context.Background(), spy); err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if got := q.CountByStatus(StatusPending); got != 0 {
		t.Fatalf("pending = %d, want 0", got)
	}
	if got := q.CountByStatus(StatusFailed); got != 1 {
		t.Fatalf("failed = %d, want 1", got)
	}
	if got := q.CountByStatus(StatusCompleted); got != 3 {
		t.Fatalf("completed = %d, want 3", got)
	}

	var failed *Item
	for _, it := range q.Items() {
		if it.Status == StatusFailed {
			failed = it
		}
	}
	if failed == nil || failed.Error != "boom" {
		t.Fatalf("failed item = %+v", failed)
	}
}

func TestRunAll_StopsOnCancellation(t *testing.T) {
	q := New(sampleActions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	spy := &spyRunner{}
	if err := q.RunAll(ctx, spy); err == nil {
		t.Fatal("expected context error")
	}
	if spy.calls != 0 {
		t.Fatalf("runner calls = %d, want 0", spy.calls)
	}
	if got := q.CountByStatus(StatusPending); got != 4 {
		t.Fatalf("pending = %d, want 4", got)
	}
}

func TestExecute_OnlyPendingItemsRun(t *testing.T) {
	q := New(sampleActions())
	spy := &spyRunner{}

	item := q.Next()
	if err := q.Execute(context.Background(), item, spy); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if item.Status != StatusCompleted || item.Result != "ok" {
		t.Fatalf("item = %+v", item)
	}

	if err := q.Execute(context.Background(), item, spy); err == nil {
		t.Fatal("expected error re-running a completed item")
	}
	if spy.calls != 1 {
		t.Fatalf("runner calls = %d, want 1", spy.calls)
	}
}

func TestExecute_RunnerPanicMarksFailed(t *testing.T) {
	q := New([]actions.Action{{Kind: actions.KindCommand, Command: "mkdir x"}})
	spy := &spyRunner{boom: true}

	item := q.Next()
	if err := q.Execute(context.Background(), item, spy); err != nil {
		t.Fatalf("Execute should contain the fault, got %v", err)
	}
	if item.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", item.Status)
	}
	if !strings.Contains(item.Error, "unexpected fault") {
		t.Fatalf("error = %q", item.Error)
	}
}

func TestByIndex(t *testing.T) {
	q := New(sampleActions())

	if _, err := q.ByIndex(0); err == nil {
		t.Fatal("index 0 should be out of range")
	}
	if _, err := q.ByIndex(5); err == nil {
		t.Fatal("index past end should be out of range")
	}

	it, err := q.ByIndex(1)
	if err != nil {
		t.Fatalf("ByIndex(1): %v", err)
	}
	if it.Action.Command != "mkdir -p src" {
		t.Fatalf("item = %+v", it)
	}
}

func TestNext_FIFOAcrossTransitions(t *testing.T) {
	q := New(sampleActions())

	first := q.Next()
	if err := q.Skip(first); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	second := q.Next()
	if second == first {
		t.Fatal("Next returned a non-pending item")
	}
	if second.Action.Command != "npm install" {
		t.Fatalf("second = %+v", second)
	}
}

func TestRunAll_ExecutesParsedCommandMarkup(t *testing.T) {
	input := `<actions><action type="command"><description>make dir</description><command>mkdir -p foo</command></action></actions>`
	parsed, _ := actions.NewParser(nil).Parse(input)
	q := New(parsed)

	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}
	if q.Items()[0].Status != StatusPending {
		t.Fatalf("status = %s, want pending", q.Items()[0].Status)
	}

	r := &spyRunner{}
	if err := q.RunAll(context.Background(), r); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if r.calls != 1 || r.seen[0].Command != "mkdir -p foo" {
		t.Fatalf("runner saw %d calls, seen=%+v", r.calls, r.seen)
	}
	if q.Items()[0].Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", q.Items()[0].Status)
	}
}
