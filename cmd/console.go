package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/drgrieve/TeslaChargingManager/app"
	"github.com/drgrieve/TeslaChargingManager/core/control"
	"github.com/drgrieve/TeslaChargingManager/core/model"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive console (default)",
	Args:  cobra.NoArgs,
	RunE:  runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, _ []string) error {
	return withService(func(ctx context.Context, svc *app.Service) error {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "tcm> ",
			InterruptPrompt: "^C",
			EOFPrompt:       "/quit",
			AutoComplete: readline.NewPrefixCompleter(
				readline.PcItem("/help"), readline.PcItem("/charge"), readline.PcItem("/trip"),
				readline.PcItem("/limit"), readline.PcItem("/stop"), readline.PcItem("/status"), readline.PcItem("/curves"),
				readline.PcItem("/quit"),
			),
		})
		if err != nil {
			return fmt.Errorf("readline: %w", err)
		}
		defer rl.Close()

		c := newConsole(ctx, svc, rl.Stdout())
		defer c.stop()
		c.help()
		for ctx.Err() == nil {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if err != nil {
				return nil
			}
			if !c.exec(line) {
				return nil
			}
		}
		return nil
	})
}

// consoleService is the part of app.Service driven by the console.
type consoleService interface {
	Preflight(ctx context.Context) error
	Charge(ctx context.Context, curve string) (*control.Session, error)
	Trip(ctx context.Context, in time.Duration, percent int) error
	Limit(ctx context.Context, percent int) error
	Stop() bool
	Status(ctx context.Context) (app.Status, error)
	Curves() []model.ChargeCurve
}

type console struct {
	ctx context.Context
	svc consoleService
	out io.Writer

	mu       sync.Mutex
	tripStop context.CancelFunc
	tripDone chan struct{}
}

func newConsole(ctx context.Context, svc consoleService, out io.Writer) *console {
	return &console{ctx: ctx, svc: svc, out: out}
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *console) help() {
	c.printf("commands:")
	c.printf("  /charge [curve]     start charging on a curve")
	c.printf("  /trip hours pct     reach pct before leaving in hours")
	c.printf("  /limit pct          set the charge limit")
	c.printf("  /stop               stop the running session or trip")
	c.printf("  /status             show site and vehicle state")
	c.printf("  /curves             list charge curves")
	c.printf("  /quit               stop and exit")
}

// exec runs one console line. It returns false when the console should exit.
func (c *console) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	args := fields[1:]
	switch name {
	case "help", "?":
		c.help()
	case "charge":
		c.charge(args)
	case "trip":
		c.trip(args)
	case "limit":
		c.limit(args)
	case "stop":
		if !c.stop() {
			c.printf("nothing to stop")
		}
	case "status":
		c.status()
	case "curves":
		for _, cv := range c.svc.Curves() {
			c.printf("  %s %v", cv.Name, cv.Points)
		}
	case "quit", "exit", "q":
		return false
	default:
		c.printf("unknown command %s, try /help", fields[0])
	}
	return true
}

func (c *console) tripRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tripDone == nil {
		return false
	}
	select {
	case <-c.tripDone:
		return false
	default:
		return true
	}
}

func (c *console) charge(args []string) {
	if c.tripRunning() {
		c.printf("a trip is running, /stop it first")
		return
	}
	curve := ""
	if len(args) > 0 {
		curve = args[0]
	}
	if err := c.svc.Preflight(c.ctx); err != nil {
		c.printf("preflight failed: %v", err)
		return
	}
	sess, err := c.svc.Charge(c.ctx, curve)
	if err != nil {
		c.printf("charge: %v", err)
		return
	}
	c.printf("session %s started on %s", sess.ID, sess.Curve)
}

func (c *console) trip(args []string) {
	in, pct, err := parseTripArgs(args)
	if err != nil {
		c.printf("%v", err)
		return
	}
	if c.tripRunning() {
		c.printf("a trip is already running")
		return
	}
	if err := c.svc.Preflight(c.ctx); err != nil {
		c.printf("preflight failed: %v", err)
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.tripStop, c.tripDone = cancel, done
	c.mu.Unlock()
	c.printf("trip started: %d%% by %s", pct, time.Now().Add(in).Format("15:04"))
	go func() {
		defer close(done)
		if err := c.svc.Trip(ctx, in, pct); err != nil {
			c.printf("trip ended: %v", err)
			return
		}
		c.printf("trip ended")
	}()
}

func (c *console) limit(args []string) {
	if len(args) != 1 {
		c.printf("usage: /limit pct")
		return
	}
	pct, err := parsePercent(args[0])
	if err != nil {
		c.printf("%v", err)
		return
	}
	if err := c.svc.Limit(c.ctx, pct); err != nil {
		c.printf("limit: %v", err)
		return
	}
	c.printf("charge limit set to %d%%", pct)
}

// stop cancels a running trip and session and reports whether anything
// was running.
func (c *console) stop() bool {
	c.mu.Lock()
	cancel, done := c.tripStop, c.tripDone
	c.tripStop, c.tripDone = nil, nil
	c.mu.Unlock()
	stopped := false
	if cancel != nil {
		cancel()
		<-done
		stopped = true
	}
	if c.svc.Stop() {
		stopped = true
	}
	return stopped
}

func (c *console) status() {
	st, err := c.svc.Status(c.ctx)
	if err != nil {
		c.printf("status: %v", err)
		return
	}
	t := st.Telemetry
	c.printf("solar %.2f kW  home %.2f kW  grid %.2f kW", t.SolarKW, t.LoadKW, t.GridKW)
	if t.Weather != nil {
		c.printf("weather %s %.1fC daytime=%t", t.Weather.Description, t.Weather.TemperatureC, t.Weather.Daytime)
	}
	if cs := st.Charge; cs != nil {
		c.printf("vehicle %s %d%% of %d%%  %dA  range %.0f km  %.1f kWh added",
			cs.ChargingState, cs.BatteryLevel, cs.ChargeLimitSOC, cs.ChargerActualCurrent, cs.RangeKm(), cs.ChargeEnergyAdded)
	} else {
		c.printf("vehicle unavailable")
	}
	if s := st.Session; s != nil {
		state := "active"
		if !s.Active() {
			state = "ended " + s.Reason().String()
		}
		c.printf("session %s %s %s %s", s.ID, s.Curve, s.Mode, state)
	}
	if c.tripRunning() {
		c.printf("trip running")
	}
}
