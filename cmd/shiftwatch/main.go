package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"

	"shiftwatch/internal/app"
	"shiftwatch/internal/export"
	"shiftwatch/internal/selftest"
)

func main() {
	var (
		cfgPath   string
		preview   bool
		selfTest  bool
		exportICS int
		audit     int
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (json or yaml)")
	flag.BoolVar(&preview, "preview", false, "print the reminder plan and exit")
	flag.BoolVar(&selfTest, "selftest", false, "run a delivery self-test and exit")
	flag.IntVar(&exportICS, "export-ics", 0, "print N days of the roster as iCalendar and exit")
	flag.IntVar(&audit, "audit", 0, "print the last N rebuild outcomes and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	switch {
	case preview:
		exit(a, runPreview(ctx, a))
	case exportICS > 0:
		exit(a, runExport(a, exportICS))
	case audit > 0:
		exit(a, runAudit(ctx, a, audit))
	case selfTest:
		exit(a, runSelfTest(ctx, a))
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background())
		os.Exit(1)
	}
	_, _ = sd.SdNotify(false, sd.SdNotifyReady)
	go watchdogLoop(ctx)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

running:
	for {
		select {
		case <-ctx.Done():
			break running
		case <-a.Done():
			break running
		case <-hup:
			// The config watcher already reloads edits; SIGHUP forces a
			// rebuild even when nothing on disk changed.
			a.Coordinator().RebuildDebounced()
		}
	}
	_, _ = sd.SdNotify(false, sd.SdNotifyStopping)
	_ = a.Stop(context.Background())
}

// watchdogLoop pings systemd at half the configured watchdog interval.
// No-op outside a Type=notify unit with WatchdogSec set.
func watchdogLoop(ctx context.Context) {
	interval, err := sd.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			_, _ = sd.SdNotify(false, sd.SdNotifyWatchdog)
		}
	}
}

func exit(a *app.App, err error) {
	code := 0
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		code = 1
	}
	_ = a.Stop(context.Background())
	os.Exit(code)
}

func runPreview(ctx context.Context, a *app.App) error {
	planned, err := a.Coordinator().Preview(ctx)
	if err != nil {
		return err
	}
	if len(planned) == 0 {
		fmt.Println("no reminders in range")
		return nil
	}
	loc := a.Location()
	for _, p := range planned {
		fmt.Printf("%s  %-12s %s\n", p.TriggerAt.In(loc).Format("2006-01-02 15:04"), p.Kind, p.Payload.Title)
	}
	fmt.Printf("%d reminders\n", len(planned))
	return nil
}

func runExport(a *app.App, days int) error {
	resolved, err := a.Coordinator().TimelineDays(time.Now(), days)
	if err != nil {
		return err
	}
	set, err := a.Settings().Load()
	if err != nil {
		return err
	}
	out, err := export.ICS(resolved, set, a.Location())
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func runAudit(ctx context.Context, a *app.App, limit int) error {
	store := a.Store()
	if store == nil {
		return fmt.Errorf("storage is not configured")
	}
	recs, err := store.RecentOutcomes(ctx, limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("no rebuild outcomes recorded")
		return nil
	}
	loc := a.Location()
	for _, r := range recs {
		line := fmt.Sprintf("%s  scheduled=%d failed=%d took=%dms",
			r.At.In(loc).Format("2006-01-02 15:04:05"), r.ScheduledCount, r.FailedCount, r.TookMS)
		if r.Error != "" {
			line += "  error=" + r.Error
		}
		fmt.Println(line)
	}
	return nil
}

func runSelfTest(ctx context.Context, a *app.App) error {
	v := a.Verifier()
	if err := v.SendTest(ctx); err != nil {
		return err
	}
	fmt.Println("test notification submitted, waiting for delivery...")

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			v.Reset(context.Background())
			return ctx.Err()
		case <-tick.C:
			switch state, reason := v.State(); state {
			case selftest.StateVerified:
				fmt.Println("delivery verified")
				return nil
			case selftest.StateTimedOut:
				return fmt.Errorf("no delivery confirmation before the timeout")
			case selftest.StateFailed:
				return fmt.Errorf("submit failed: %s", reason)
			}
		}
	}
}
