// Command trigger-chain runs a timer -> comparator -> transmitter trigger
// chain: a periodic timer arms a threshold comparator, comparator edges drive
// an indicator LED pair, and the comparator level gates a status line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/sweeney/trigger-chain/internal/chain"
	"github.com/sweeney/trigger-chain/internal/hw"
	"github.com/sweeney/trigger-chain/internal/mqtt"
	"github.com/sweeney/trigger-chain/internal/status"
	"github.com/sweeney/trigger-chain/internal/web"
)

// StatusLine is transmitted on every attempt while the gate is open.
const StatusLine = "TX triggered by comparator output\r\n"

// eventQueueSize bounds events waiting for the main loop to publish them.
const eventQueueSize = 64

type options struct {
	period      time.Duration
	tick        time.Duration
	thresholdMV int
	vrefMV      int
	window      chain.WindowPolicy
	poll        time.Duration
	txInterval  time.Duration
	heartbeat   time.Duration
	input       string
	pinIn       int
	leds        string
	pinAbove    int
	pinBelow    int
	tx          string
	broker      string
	httpAddr    string
}

func main() {
	var o options
	var window string
	flag.DurationVar(&o.period, "period", 4*time.Second, "Timer period")
	flag.DurationVar(&o.tick, "tick", time.Millisecond, "Simulated timer clock tick")
	flag.IntVar(&o.thresholdMV, "threshold-mv", chain.ThresholdFromDAC(hw.DefaultVRefMV, 127), "Comparator threshold in millivolts")
	flag.IntVar(&o.vrefMV, "vref-mv", hw.DefaultVRefMV, "Voltage a high input line represents")
	flag.StringVar(&window, "window", chain.WindowContinuous.String(), "Sampling window policy: continuous or single-shot")
	flag.DurationVar(&o.poll, "poll", 10*time.Millisecond, "Hardware simulation step")
	flag.DurationVar(&o.txInterval, "tx-interval", 100*time.Millisecond, "Transmit attempt interval")
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&o.input, "input", "gpio", `Comparator input: "gpio" or comma-separated millivolt samples`)
	flag.IntVar(&o.pinIn, "pin-in", hw.DefaultPinIn, "BCM pin number for the comparator input")
	flag.StringVar(&o.leds, "leds", "gpio", `Indicator LEDs: "gpio" or "off"`)
	flag.IntVar(&o.pinAbove, "pin-above", hw.DefaultPinAbove, "BCM pin number for the above-threshold LED")
	flag.IntVar(&o.pinBelow, "pin-below", hw.DefaultPinBelow, "BCM pin number for the below-threshold LED")
	flag.StringVar(&o.tx, "tx", "mqtt", `Gated transmitter: "mqtt" or "stdout"`)
	flag.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")

	flag.Parse()
	defer glog.Flush()

	p, ok := chain.ParseWindowPolicy(window)
	if !ok {
		log.Fatalf("fatal: unknown window policy %q", window)
	}
	o.window = p
	if err := validateOptions(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// validateOptions rejects unknown -leds and -tx values.
func validateOptions(o options) error {
	switch o.leds {
	case "gpio", "off":
	default:
		return fmt.Errorf("unknown -leds %q (want gpio or off)", o.leds)
	}
	switch o.tx {
	case "mqtt", "stdout":
	default:
		return fmt.Errorf("unknown -tx %q (want mqtt or stdout)", o.tx)
	}
	return nil
}

func run(o options) error {
	periodTicks, err := chain.PeriodTicks(o.period, o.tick)
	if err != nil {
		return fmt.Errorf("timer period: %w", err)
	}
	ticksPerPoll := uint64(o.poll / o.tick)
	if ticksPerPoll == 0 {
		return fmt.Errorf("poll %v shorter than tick %v", o.poll, o.tick)
	}

	bootID := uuid.New()

	// Initialize comparator input
	sampler, err := newSampler(o)
	if err != nil {
		return fmt.Errorf("init input: %w", err)
	}
	defer sampler.Close()

	// Initialize indicator LEDs
	var leds hw.LEDs
	if o.leds == "gpio" {
		l, err := hw.NewRealLEDs(o.pinAbove, o.pinBelow)
		if err != nil {
			return fmt.Errorf("init leds: %w", err)
		}
		leds = l
		defer leds.Close()
	}

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(o.broker, bootID.String())
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	var tx chain.Transmitter = publisher
	if o.tx == "stdout" {
		tx = hw.NewSerial(os.Stdout)
	}

	var chainLEDs chain.LEDs
	if leds != nil {
		chainLEDs = leds
	}
	sys, err := chain.NewSystem(chain.Config{ThresholdMV: o.thresholdMV, Window: o.window}, chainLEDs, tx)
	if err != nil {
		return fmt.Errorf("init chain: %w", err)
	}
	events := make(chan chain.Event, eventQueueSize)
	sys.SetObserver(queueObserver(events))

	// A configuration error here halts boot.
	if err := boot(sys, periodTicks); err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	startTime := time.Now()
	tracker := status.NewTracker(bootID, startTime, status.Config{
		PeriodMs:     o.period.Milliseconds(),
		TickUs:       o.tick.Microseconds(),
		ThresholdMV:  o.thresholdMV,
		Window:       o.window.String(),
		PollMs:       o.poll.Milliseconds(),
		TxIntervalMs: o.txInterval.Milliseconds(),
		HeartbeatMs:  o.heartbeat.Milliseconds(),
		Input:        o.input,
		Transmitter:  o.tx,
		Broker:       o.broker,
		HTTPAddr:     o.httpAddr,
	})
	tracker.Update(sys.State())
	tracker.SetMQTTConnected(publisher.IsConnected())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		BootID:     bootID.String(),
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	log.Printf("started: boot=%s period=%v ticks=%d threshold=%dmV window=%s input=%s tx=%s",
		bootID, o.period, periodTicks, o.thresholdMV, o.window, o.input, o.tx)

	// The hardware goroutine plays the interrupt context.
	ctx, cancel := context.WithCancel(context.Background())
	hwTicker := time.NewTicker(o.poll)
	defer hwTicker.Stop()
	hwDone := make(chan struct{})
	go func() {
		defer close(hwDone)
		runHardware(ctx, sys, sampler, ticksPerPoll, hwTicker.C)
	}()
	defer func() {
		cancel()
		<-hwDone
	}()

	txTicker := time.NewTicker(o.txInterval)
	defer txTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(sys, publisher, publisher, tracker, events, o.heartbeat, time.Now, txTicker.C, sigCh)
}

func newSampler(o options) (hw.Sampler, error) {
	if o.input == "gpio" {
		return hw.NewRealSampler(o.pinIn, o.vrefMV)
	}
	samples, err := hw.ParseSamples(o.input)
	if err != nil {
		return nil, err
	}
	return hw.NewScriptedSampler(samples), nil
}

// boot wires the chain in dependency order, then starts the timer.
func boot(sys *chain.System, periodTicks uint32) error {
	if err := sys.Wire(); err != nil {
		return err
	}
	for _, l := range sys.State().Links {
		log.Printf("link: %s -> %s locked=%v", l.Source, l.Destination, l.Locked)
	}
	if err := sys.ConfigureTimer(periodTicks); err != nil {
		return err
	}
	return sys.StartTimer()
}

// queueObserver hands events to the main loop without blocking the handler.
func queueObserver(events chan<- chain.Event) chain.Observer {
	return func(ev chain.Event) {
		select {
		case events <- ev:
		default:
			log.Printf("event queue full, dropping %s", ev.Type)
		}
	}
}

// runHardware advances the timer, samples the comparator input and services
// pending interrupts on every tick until ctx is done.
func runHardware(ctx context.Context, sys *chain.System, sampler hw.Sampler, ticksPerPoll uint64, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			stepHardware(sys, sampler, ticksPerPoll)
		}
	}
}

func stepHardware(sys *chain.System, sampler hw.Sampler, ticks uint64) {
	sys.Advance(ticks)
	mv, err := sampler.Sample()
	if err != nil {
		log.Printf("input read error: %v", err)
	} else {
		sys.Evaluate(mv)
	}
	sys.ServicePending()
}

// runLoop is the application loop: it attempts a transmission on every tick,
// publishes handler events and heartbeats, and stops on a signal.
func runLoop(sys *chain.System, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, events <-chan chain.Event, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	hb := chain.NewHeartbeat(now())
	line := []byte(StatusLine)

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			drainEvents(events, publisher, now)
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				refreshTracker(tracker, sys, mqttStatus)
				event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case ev := <-events:
			publishEvent(publisher, ev, now())

		case <-tick:
			t := now()
			if err := sys.AttemptTransmit(line); err != nil && !errors.Is(err, chain.ErrGateClosed) {
				log.Printf("transmit error: %v", err)
			}

			counts := sys.Counts()
			if hbData := hb.Check(t, heartbeat, counts); hbData != nil {
				log.Printf("heartbeat: uptime=%v timeouts=%d rising=%d falling=%d missed=%d tx=%d dropped=%d",
					hbData.Uptime, counts.Timeouts, counts.Rising, counts.Falling, counts.Missed(), counts.Transmitted, counts.Dropped)

				hbEvent := mqtt.SystemEvent{
					Timestamp: hbData.Timestamp,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					refreshTracker(tracker, sys, mqttStatus)
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					hbEvent.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			if tracker != nil {
				refreshTracker(tracker, sys, mqttStatus)
			}
		}
	}
}

func publishEvent(publisher mqtt.Publisher, ev chain.Event, at time.Time) {
	if ev.Type == chain.EventMissed {
		log.Printf("event: %s dropped=%s source=%s tick=%d", ev.Type, ev.Dropped, ev.Source, ev.Tick)
	} else {
		log.Printf("event: %s source=%s level=%s input=%dmV tick=%d", ev.Type, ev.Source, status.LevelString(ev.Level), ev.InputMV, ev.Tick)
	}
	if err := publisher.Publish(ev, at); err != nil {
		log.Printf("publish error: %v", err)
		// Don't crash on publish failure
	}
}

// drainEvents publishes events already queued without waiting for more.
func drainEvents(events <-chan chain.Event, publisher mqtt.Publisher, now func() time.Time) {
	for {
		select {
		case ev := <-events:
			publishEvent(publisher, ev, now())
		default:
			return
		}
	}
}

func refreshTracker(tracker *status.Tracker, sys *chain.System, mqttStatus mqtt.ConnectionStatus) {
	tracker.Update(sys.State())
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
