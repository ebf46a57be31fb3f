// Command relayd drives GPIO relays and exposes them over an HTTP/JSON API.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/sweeney/relayd/internal/gpio"
	"github.com/sweeney/relayd/internal/mqtt"
	"github.com/sweeney/relayd/internal/relay"
	"github.com/sweeney/relayd/internal/status"
	"github.com/sweeney/relayd/internal/web"
)

// eventQueue bounds relay events waiting to be published.
const eventQueue = 64

// httpDrainTimeout bounds how long shutdown waits for in-flight requests.
const httpDrainTimeout = 5 * time.Second

func main() {
	pinList := flag.String("pins", joinPins(gpio.DefaultPins), "Comma-separated BCM pins of the relays, in bulk order")
	activeLow := flag.Bool("active-low", false, "Relays energize when their pin is LOW")
	driverName := flag.String("driver", "cdev", "GPIO driver: cdev, periph or mock")
	chip := flag.String("chip", gpio.DefaultChip, "GPIO chip for the cdev driver")
	httpAddr := flag.String("http", ":8000", "HTTP API address")
	broker := flag.String("broker", "", "MQTT broker address (empty to disable)")
	clientID := flag.String("client-id", "relayd", "MQTT client ID")
	probe := flag.Int("probe", 0, "Run the polarity probe on this pin and exit")

	flag.Parse()

	if *probe != 0 {
		if err := runProbe(*driverName, *chip, *probe); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	pins, err := parsePins(*pinList)
	if err != nil {
		log.Fatalf("fatal: -pins: %v", err)
	}
	cfg := status.Config{
		Pins:      pins,
		ActiveLow: *activeLow,
		Driver:    *driverName,
		Broker:    *broker,
		HTTPAddr:  *httpAddr,
	}
	if err := run(cfg, *chip, *clientID); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg status.Config, chip, clientID string) error {
	driver, err := openDriver(cfg.Driver, chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}

	publisher, conn, err := openPublisher(cfg.Broker, clientID)
	if err != nil {
		releaseDriver(driver)
		return fmt.Errorf("init mqtt: %w", err)
	}

	d, err := startDaemon(driver, publisher, conn, cfg, time.Now)
	if err != nil {
		closePublisher(publisher)
		return err
	}

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		d.stop("LISTEN_FAILED")
		return fmt.Errorf("listen: %w", err)
	}
	log.Printf("started: pins=%v active_low=%v driver=%s http=%s broker=%q",
		cfg.Pins, cfg.ActiveLow, cfg.Driver, cfg.HTTPAddr, cfg.Broker)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return serve(d, web.New(cfg.HTTPAddr, d.ctrl, d.tracker), ln, sigCh)
}

// serve runs the HTTP API until a signal arrives, then stops accepting
// requests, drains in-flight ones and shuts the daemon down.
func serve(d *daemon, srv *web.Server, ln net.Listener, sig <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Printf("http api listening on %s", ln.Addr())

	reason := ""
	select {
	case s := <-sig:
		log.Printf("received %v, shutting down", s)
		reason = signalName(s)
	case err := <-errCh:
		log.Printf("http server error: %v", err)
		reason = "HTTP_ERROR"
	}

	ctx, cancel := context.WithTimeout(context.Background(), httpDrainTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	return d.stop(reason)
}

// daemon ties the controller to the status tracker and the MQTT publisher.
type daemon struct {
	ctrl      *relay.Controller
	tracker   *status.Tracker
	publisher mqtt.Publisher
	conn      mqtt.ConnectionStatus
	now       func() time.Time

	events chan relay.Event
	done   chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// startDaemon builds the controller, driving every relay inactive, and
// publishes STARTUP. The driver is released if the controller cannot be
// built.
func startDaemon(driver gpio.Driver, publisher mqtt.Publisher, conn mqtt.ConnectionStatus, cfg status.Config, now func() time.Time) (*daemon, error) {
	d := &daemon{
		tracker:   status.NewTracker(now(), cfg),
		publisher: publisher,
		conn:      conn,
		now:       now,
		events:    make(chan relay.Event, eventQueue),
		done:      make(chan struct{}),
	}
	if info := readNetworkInfo(); info != nil {
		d.tracker.SetNetwork(info)
	}
	go d.forward()

	ctrl, err := relay.New(driver, relay.Config{
		Pins:      cfg.Pins,
		ActiveLow: cfg.ActiveLow,
		Observer:  relay.ObserverFunc(d.relayChanged),
		Now:       now,
	})
	if err != nil {
		close(d.events)
		<-d.done
		return nil, fmt.Errorf("init relays: %w", err)
	}
	d.ctrl = ctrl

	d.publishSystem("STARTUP", "")
	return d, nil
}

// relayChanged runs under the controller lock and must not block.
func (d *daemon) relayChanged(ev relay.Event) {
	d.tracker.RelayChanged(ev)
	select {
	case d.events <- ev:
	default:
		log.Printf("mqtt: event queue full, dropping gpio=%d state=%s", ev.Pin, ev.State)
	}
}

func (d *daemon) forward() {
	defer close(d.done)
	for ev := range d.events {
		log.Printf("event: gpio=%d state=%s bulk=%v", ev.Pin, ev.State, ev.Bulk)
		if err := d.publisher.Publish(ev); err != nil {
			log.Printf("publish error: %v", err)
		}
	}
}

func (d *daemon) publishSystem(event, reason string) {
	d.tracker.SetMQTTConnected(d.conn.IsConnected())
	snap := d.tracker.Snapshot()
	se := mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.publisher.PublishSystem(se); err != nil {
		log.Printf("failed to publish %s event: %v", strings.ToLower(event), err)
	} else {
		log.Printf("published %s event", strings.ToLower(event))
	}
}

// stop shuts the controller down, flushes queued events, publishes
// SHUTDOWN and disconnects from the broker. Only the first call acts.
func (d *daemon) stop(reason string) error {
	d.stopOnce.Do(func() {
		d.stopErr = d.ctrl.Shutdown()
		if d.stopErr != nil {
			log.Printf("relay shutdown: %v", d.stopErr)
		}
		close(d.events)
		<-d.done

		d.tracker.MarkAllOff(d.now(), failedWrites(d.stopErr))
		d.publishSystem("SHUTDOWN", reason)
		closePublisher(d.publisher)
	})
	return d.stopErr
}

func releaseDriver(driver gpio.Driver) {
	if err := driver.Release(); err != nil {
		log.Printf("gpio release: %v", err)
	}
}

func closePublisher(p mqtt.Publisher) {
	if err := p.Close(); err != nil {
		log.Printf("mqtt close: %v", err)
	}
}

// failedWrites returns the pins whose write failed during shutdown.
func failedWrites(err error) map[int]bool {
	failed := make(map[int]bool)
	for _, e := range multierr.Errors(err) {
		var derr *relay.DriverError
		if errors.As(e, &derr) && derr.Op == "write" {
			failed[derr.Pin] = true
		}
	}
	return failed
}

func openDriver(name, chip string) (gpio.Driver, error) {
	switch name {
	case "cdev":
		return gpio.NewCdevDriver(chip)
	case "periph":
		return gpio.NewPeriphDriver()
	case "mock":
		d := gpio.NewFakeDriver()
		d.Verbose = true
		return d, nil
	}
	return nil, fmt.Errorf("unknown driver %q (want cdev, periph or mock)", name)
}

func openPublisher(broker, clientID string) (mqtt.Publisher, mqtt.ConnectionStatus, error) {
	if broker == "" {
		log.Printf("mqtt: no broker configured, events are not published")
		return mqtt.Discard{}, mqtt.Discard{}, nil
	}
	p, err := mqtt.NewRealPublisher(broker, clientID)
	if err != nil {
		return nil, nil, err
	}
	return p, p, nil
}

func runProbe(driverName, chip string, pin int) error {
	driver, err := openDriver(driverName, chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}

	pause := func(step relay.ProbeStep) {
		fmt.Printf("%s (GPIO %d = %s)\n", step.Description, pin, step.Level)
	}
	if driverName != "mock" {
		pause = probePause(os.Stdin, os.Stdout, pin)
	}

	if err := relay.Probe(driver, pin, pause); err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	fmt.Println("If the relay clicked on LOW, run with -active-low.")
	return nil
}

// probePause prints each step and waits for the operator to press Enter.
func probePause(in io.Reader, out io.Writer, pin int) func(relay.ProbeStep) {
	r := bufio.NewReader(in)
	return func(step relay.ProbeStep) {
		fmt.Fprintf(out, "%s (GPIO %d = %s), press Enter to continue... ", step.Description, pin, step.Level)
		r.ReadString('\n')
	}
}

// parsePins parses a comma-separated pin list such as "17,27,22,23".
func parsePins(s string) ([]int, error) {
	var pins []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		p, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid pin %q", f)
		}
		pins = append(pins, p)
	}
	if len(pins) == 0 {
		return nil, errors.New("no pins given")
	}
	return pins, nil
}

func joinPins(pins []int) string {
	parts := make([]string, len(pins))
	for i, p := range pins {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
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
