// Command reflowd runs the reflow/thermal chamber supervisor: it
// samples thermocouple channels, drives a bidirectional PID engine
// into a software-PWM relay schedule and a rate-limited vent door,
// executes uploaded reflow profiles, and exposes live status over
// HTTP, WebSocket, and MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/reflowd/internal/apperr"
	"github.com/sweeney/reflowd/internal/clock"
	"github.com/sweeney/reflowd/internal/controller"
	"github.com/sweeney/reflowd/internal/datalog"
	"github.com/sweeney/reflowd/internal/hal"
	"github.com/sweeney/reflowd/internal/kvstore"
	"github.com/sweeney/reflowd/internal/kvstore/fileyaml"
	"github.com/sweeney/reflowd/internal/pid"
	"github.com/sweeney/reflowd/internal/profile"
	"github.com/sweeney/reflowd/internal/status"
	"github.com/sweeney/reflowd/internal/telemetry"
	"github.com/sweeney/reflowd/internal/web"
	"github.com/sweeney/reflowd/internal/wsstream"
)

func main() {
	tick := flag.Duration("tick", controller.TickPeriod, "control loop tick period")
	broker := flag.String("broker", "", "MQTT broker address (empty disables telemetry publishing)")
	httpAddr := flag.String("http", ":8080", "HTTP status/WebSocket address (empty to disable)")
	settingsPath := flag.String("settings", "reflowd.yaml", "path to the persisted settings file")
	gpioChip := flag.String("gpio-chip", "", "Linux GPIO chip for relay outputs (empty uses an in-memory simulator)")
	logIntervalMs := flag.Int("log-interval-ms", datalog.DefaultIntervalMs, "data logger sample interval in milliseconds")
	logRetention := flag.Duration("log-retention", datalog.DefaultRetention, "data logger retention window")

	flag.Parse()

	if err := run(*tick, *broker, *httpAddr, *settingsPath, *gpioChip, *logIntervalMs, *logRetention); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(tick time.Duration, broker, httpAddr, settingsPath, gpioChip string, logIntervalMs int, logRetention time.Duration) error {
	store, err := fileyaml.Open(settingsPath)
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}

	hardware, closeHardware, err := openHardware(gpioChip)
	if err != nil {
		return fmt.Errorf("init hardware: %w", err)
	}
	defer closeHardware()

	clockSrc := clock.NewReal()
	ctl := controller.New(hardware, clockSrc)
	loadPersistedTuning(store, ctl)

	profileEngine := profile.New(ctl)
	dataLogger := datalog.New(clockSrc)
	if err := dataLogger.SetIntervalMs(logIntervalMs); err != nil {
		return fmt.Errorf("configure log interval: %w", err)
	}
	if err := dataLogger.SetRetention(logRetention); err != nil {
		return fmt.Errorf("configure log retention: %w", err)
	}

	publisher, err := newPublisher(broker)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		TickPeriodMs: tick.Milliseconds(),
		Broker:       broker,
		HTTPAddr:     httpAddr,
	})

	hub := wsstream.NewHub()
	go hub.Run()
	defer hub.Stop()

	pushCh, cancelPush := tracker.Subscribe(16)
	defer cancelPush()
	go forwardSnapshotsToHub(pushCh, hub)

	var httpServer *web.Server
	if httpAddr != "" {
		httpServer = web.New(httpAddr, tracker, hub)
	}

	snap := tracker.Snapshot()
	startupEvent := telemetry.SystemEvent{Timestamp: snap.Now, Event: "STARTUP"}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if httpServer != nil {
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		log.Printf("http status server listening on %s", httpAddr)
	}

	log.Printf("started: tick=%v broker=%q http=%q settings=%q", tick, broker, httpAddr, settingsPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runLoop(ctx, runLoopDeps{
		controller: ctl,
		profile:    profileEngine,
		dataLogger: dataLogger,
		publisher:  publisher,
		tracker:    tracker,
		httpServer: httpServer,
		tickPeriod: tick,
	})
}

// runLoopDeps bundles the long-lived collaborators the control loop
// supervises, so runLoop stays testable without a real clock or
// hardware.
type runLoopDeps struct {
	controller *controller.Controller
	profile    *profile.Engine
	dataLogger *datalog.Logger
	publisher  telemetry.Publisher
	tracker    *status.Tracker
	httpServer *web.Server
	tickPeriod time.Duration
}

// runLoop supervises the daemon's shutdown-sensitive goroutines under
// an errgroup: a watcher that shuts the HTTP/WebSocket server down on
// cancellation, and the control tick loop. The control loop does the
// tick's sampling, PID/profile advance, data-log append, and
// telemetry publish inline rather than handing off to yet more
// goroutines — the tick cadence is the module's real-time budget
// (spec.md §5) and each of those steps is cheap relative to it. On
// ctx cancellation (SIGINT/SIGTERM) the tick loop publishes a
// SHUTDOWN event and returns; the watcher's Shutdown call unblocks
// the server's own ListenAndServe goroutine, started by the caller.
func runLoop(ctx context.Context, d runLoopDeps) error {
	g, gctx := errgroup.WithContext(ctx)

	if d.httpServer != nil {
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return d.httpServer.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return controlLoop(gctx, d)
	})

	return g.Wait()
}

func controlLoop(ctx context.Context, d runLoopDeps) error {
	ticker := time.NewTicker(d.tickPeriod)
	defer ticker.Stop()

	tickS := d.tickPeriod.Seconds()
	logEvery := time.Duration(d.dataLogger.IntervalMs()) * time.Millisecond
	var lastLog time.Time

	for {
		select {
		case <-ctx.Done():
			log.Printf("shutdown requested, stopping control loop")

			d.tracker.SetTelemetryConnected(d.publisher.IsConnected())
			snap := d.tracker.Snapshot()
			event := telemetry.SystemEvent{Timestamp: snap.Now, Event: "SHUTDOWN"}
			if err := d.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-ticker.C:
			if err := d.controller.RunTick(); err != nil && !apperr.Is(err, apperr.SensorError) {
				log.Printf("control tick error: %v", err)
			}
			if err := d.profile.Tick(tickS); err != nil {
				log.Printf("profile tick error: %v", err)
			}

			cs := d.controller.Snapshot()
			ps := d.profile.Snapshot()

			d.tracker.UpdateController(cs.Running, cs.Alarming, cs.StateLabel, cs.SetpointC, cs.FilteredPVC, cs.PIDOutput, cs.DoorCurrentAngle)
			d.tracker.UpdateProfile(ps.Running, ps.ActiveProfile.Name, ps.CurrentStepIndex, len(ps.ActiveProfile.Steps), string(ps.LastEndReason))
			d.tracker.SetTelemetryConnected(d.publisher.IsConnected())

			readback := d.controller.PIDEngine().Previous()
			rec := datalog.Record{
				SetpointC:      cs.SetpointC,
				ProcessValueC:  cs.FilteredPVC,
				PIDOutput:      cs.PIDOutput,
				PTerm:          readback.P,
				ITerm:          readback.I,
				DTerm:          readback.D,
				ServoAngleDeg:  cs.DoorCurrentAngle,
				ChamberRunning: cs.Running,
			}
			if now := time.Now(); now.Sub(lastLog) >= logEvery {
				lastLog = now
				d.dataLogger.Append(rec)
			}

			payload := telemetry.SnapshotPayload{Reflow: telemetry.ReflowPayload{
				Timestamp:       time.Now().UTC().Format(time.RFC3339),
				Running:         cs.Running,
				Alarming:        cs.Alarming,
				StateLabel:      cs.StateLabel,
				SetpointC:       cs.SetpointC,
				ProcessValueC:   cs.FilteredPVC,
				PIDOutput:       cs.PIDOutput,
				DoorAngleDeg:    cs.DoorCurrentAngle,
				ProfileRunning:  ps.Running,
				ProfileName:     ps.ActiveProfile.Name,
				ProfileStep:     ps.CurrentStepIndex,
				ProfileEndCause: string(ps.LastEndReason),
			}}
			if err := d.publisher.PublishSnapshot(payload); err != nil {
				log.Printf("publish snapshot: %v", err)
			}
		}
	}
}

// forwardSnapshotsToHub bridges the pub/sub status tracker to the
// WebSocket hub: every push from a controller/profile mutation is
// re-encoded and broadcast to connected browsers. Runs until ch is
// closed by the Subscribe cancel func.
func forwardSnapshotsToHub(ch <-chan status.Snapshot, hub *wsstream.Hub) {
	for snap := range ch {
		hub.Publish(status.FormatJSON(snap))
	}
}

// defaultRelayPins maps relay index to BCM GPIO pin for the reference
// three-relay wiring: relays 0 and 1 are the weighted heater PWM relays
// and relay 2 is the always-on-while-running relay.
var defaultRelayPins = map[int]int{0: 17, 1: 27, 2: 22}

// openHardware selects the hardware abstraction: a real GPIO-backed
// implementation when gpioChip is set, or an in-memory simulator
// otherwise so the daemon runs end-to-end without a Linux GPIO chip
// present. The thermocouple reader and servo driver RealHAL expects
// are external SPI/MCPWM collaborators out of this module's scope
// (spec.md §1); RealHAL without them still drives relay outputs and
// reports SensorError on channel reads, which the controller already
// treats as a Sensor Error state.
func openHardware(gpioChip string) (hal.HardwareAbstraction, func() error, error) {
	if gpioChip == "" {
		fake := hal.NewFakeHAL(map[int]float64{0: 24.0})
		return fake, func() error { return nil }, nil
	}
	real, err := hal.NewRealHAL(gpioChip, defaultRelayPins, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return real, real.Close, nil
}

// newPublisher connects to broker, or returns a FakePublisher that
// only records events when broker is empty.
func newPublisher(broker string) (telemetry.Publisher, error) {
	if broker == "" {
		return telemetry.NewFakePublisher(), nil
	}
	return telemetry.NewRealPublisher(broker)
}

// loadPersistedTuning applies any settings previously written by a
// prior run; a missing key means "use the Controller default" and is
// not an error.
func loadPersistedTuning(store kvstore.Store, ctl *controller.Controller) {
	applyFloat(store, "controller.setpoint_c", func(v float64) error { return ctl.SetSetpoint(v) })
	applyFloat(store, "controller.input_filter_ms", func(v float64) error { return ctl.SetInputFilterTime(v) })
	applyFloat(store, "pid.derivative_filter_time_s", func(v float64) error { return ctl.SetDerivativeFilterTime(v) })
	applyFloat(store, "pid.setpoint_weight", func(v float64) error { return ctl.SetSetpointWeight(v) })
	applyFloat(store, "pid.integral_zone_c", func(v float64) error { return ctl.SetIntegralZoneC(v) })
	applyFloat(store, "pid.integral_leak_time_s", func(v float64) error { return ctl.SetIntegralLeakTimeS(v) })

	heating, cooling := pid.Gains{}, pid.Gains{}
	haveGains := false
	if v, err := store.GetFloat64("pid.heating.kp"); err == nil {
		heating.Kp = v
		haveGains = true
	}
	if v, err := store.GetFloat64("pid.heating.ki"); err == nil {
		heating.Ki = v
		haveGains = true
	}
	if v, err := store.GetFloat64("pid.heating.kd"); err == nil {
		heating.Kd = v
		haveGains = true
	}
	if v, err := store.GetFloat64("pid.cooling.kp"); err == nil {
		cooling.Kp = v
		haveGains = true
	}
	if v, err := store.GetFloat64("pid.cooling.ki"); err == nil {
		cooling.Ki = v
		haveGains = true
	}
	if v, err := store.GetFloat64("pid.cooling.kd"); err == nil {
		cooling.Kd = v
		haveGains = true
	}
	if haveGains {
		if err := ctl.SetPIDGains(heating, cooling); err != nil {
			log.Printf("apply persisted PID gains: %v", err)
		}
	}

	if chs, err := store.GetIntSlice("controller.inputs_used"); err == nil && len(chs) > 0 {
		if err := ctl.SetInputChannels(chs); err != nil {
			log.Printf("apply persisted input channels: %v", err)
		}
	}
}

func applyFloat(store kvstore.Store, key string, apply func(float64) error) {
	v, err := store.GetFloat64(key)
	if err != nil {
		if err != kvstore.ErrNotFound {
			log.Printf("read %s: %v", key, err)
		}
		return
	}
	if err := apply(v); err != nil {
		log.Printf("apply %s: %v", key, err)
	}
}
