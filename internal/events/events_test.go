package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

// recorder captures notifications and returns a scripted outcome.
type recorder struct {
	result bool
	calls  []Kind
}

func (r *recorder) Notify(ctx context.Context, system string, kind Kind, proj *project.Project) bool {
	r.calls = append(r.calls, kind)
	return r.result
}

func testProject() *project.Project {
	return &project.Project{
		Name:      "P",
		GroupName: "G",
		GroupID:   "g-1",
		Metadata:  json.RawMessage(`{}`),
	}
}

func TestNoopAcknowledges(t *testing.T) {
	n := Noop{}
	if !n.Notify(context.Background(), "demo", KindCreated, testProject()) {
		t.Error("Noop.Notify() = false, want true")
	}
}

func TestRouterDispatch(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{result: false}

	r := NewRouter()
	r.Register("sbf", rec)

	// Unregistered system acknowledges.
	if !r.Notify(ctx, "demo", KindCreated, testProject()) {
		t.Error("unregistered system: Notify() = false, want true")
	}
	if len(rec.calls) != 0 {
		t.Errorf("listener called for foreign system: %v", rec.calls)
	}

	// Registered system gets the listener's verdict.
	if r.Notify(ctx, "sbf", KindDeleted, testProject()) {
		t.Error("registered failing listener: Notify() = true, want false")
	}
	if len(rec.calls) != 1 || rec.calls[0] != KindDeleted {
		t.Errorf("listener calls = %v", rec.calls)
	}
}

func TestMultiRequiresAllAcks(t *testing.T) {
	ctx := context.Background()
	good := &recorder{result: true}
	bad := &recorder{result: false}

	if (Multi{good, bad}).Notify(ctx, "demo", KindCreated, testProject()) {
		t.Error("Multi with failing member acknowledged")
	}
	// Every member is still invoked after a failure.
	if len(good.calls) != 1 || len(bad.calls) != 1 {
		t.Errorf("calls = %d/%d, want 1/1", len(good.calls), len(bad.calls))
	}

	if !(Multi{good}).Notify(ctx, "demo", KindDeleted, testProject()) {
		t.Error("Multi with acking members = false, want true")
	}
}

func TestSubject(t *testing.T) {
	if got := Subject("sbf", KindCreated); got != "projects.events.sbf.created" {
		t.Errorf("Subject() = %q", got)
	}
}
