package main

import (
	"context"
	"testing"
	"time"

	"github.com/sweeney/reflowd/internal/clock"
	"github.com/sweeney/reflowd/internal/controller"
	"github.com/sweeney/reflowd/internal/datalog"
	"github.com/sweeney/reflowd/internal/hal"
	"github.com/sweeney/reflowd/internal/profile"
	"github.com/sweeney/reflowd/internal/status"
	"github.com/sweeney/reflowd/internal/telemetry"
)

// newTestDeps wires the same collaborators run() wires, using fakes
// throughout, for an end-to-end exercise of the control loop.
func newTestDeps(t *testing.T) (runLoopDeps, *hal.FakeHAL, *telemetry.FakePublisher) {
	t.Helper()
	fakeHAL := hal.NewFakeHAL(map[int]float64{0: 24.0})
	src := clock.NewFake(0)
	ctl := controller.New(fakeHAL, src)
	publisher := telemetry.NewFakePublisher()
	tracker := status.NewTracker(time.Now(), status.Config{TickPeriodMs: 250})

	return runLoopDeps{
		controller: ctl,
		profile:    profile.New(ctl),
		dataLogger: datalog.New(src),
		publisher:  publisher,
		tracker:    tracker,
		tickPeriod: 10 * time.Millisecond,
	}, fakeHAL, publisher
}

func TestControlLoop_RunsTicksAndPublishesSnapshots(t *testing.T) {
	d, fakeHAL, publisher := newTestDeps(t)
	if err := d.controller.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.controller.SetSetpoint(150)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	if err := controlLoop(ctx, d); err != nil {
		t.Fatalf("controlLoop: %v", err)
	}

	if len(publisher.Snapshots) == 0 {
		t.Fatal("expected at least one published snapshot")
	}
	last := publisher.Snapshots[len(publisher.Snapshots)-1]
	if !last.Reflow.Running {
		t.Error("expected last published snapshot to report Running=true")
	}
	if d.dataLogger.Len() == 0 {
		t.Error("expected data logger to have appended records")
	}
	if len(publisher.SystemEvents) != 1 || publisher.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("expected exactly one SHUTDOWN system event, got %+v", publisher.SystemEvents)
	}

	_ = fakeHAL
}

func TestControlLoop_DrivesProfileToCompletion(t *testing.T) {
	d, _, publisher := newTestDeps(t)

	wait := 0.02
	def := profile.ProfileDefinition{
		SchemaVersion: 1,
		Name:          "quick",
		Steps: []profile.ProfileStep{
			{Kind: profile.StepWait, WaitTimeS: &wait},
		},
	}
	if err := d.profile.Start(def, profile.SourceUploaded, 0); err != nil {
		t.Fatalf("Start profile: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	if err := controlLoop(ctx, d); err != nil {
		t.Fatalf("controlLoop: %v", err)
	}

	if d.profile.IsRunning() {
		t.Error("expected profile run to complete before context deadline")
	}
	snap := d.profile.Snapshot()
	if snap.LastEndReason != profile.EndCompleted {
		t.Errorf("LastEndReason: got %v, want %v", snap.LastEndReason, profile.EndCompleted)
	}
	if len(publisher.Snapshots) == 0 {
		t.Fatal("expected published snapshots during profile run")
	}
}

func TestOpenHardware_EmptyChipReturnsSimulator(t *testing.T) {
	h, closeFn, err := openHardware("")
	if err != nil {
		t.Fatalf("openHardware: %v", err)
	}
	defer closeFn()

	if _, ok := h.(*hal.FakeHAL); !ok {
		t.Errorf("expected a *hal.FakeHAL simulator, got %T", h)
	}
}

func TestNewPublisher_EmptyBrokerReturnsFake(t *testing.T) {
	p, err := newPublisher("")
	if err != nil {
		t.Fatalf("newPublisher: %v", err)
	}
	if _, ok := p.(*telemetry.FakePublisher); !ok {
		t.Errorf("expected a *telemetry.FakePublisher, got %T", p)
	}
}
