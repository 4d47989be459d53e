// Package export renders a resolved shift timeline as an iCalendar
// document, so the roster can be imported into any calendar app.
package export

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"shiftwatch/internal/config"
	"shiftwatch/internal/plan"
)

const prodID = "-//shiftwatch//roster export//EN"

// ICS serializes the work days of a timeline as VEVENTs. When the entry
// reminder is enabled in set, each event carries a matching VALARM so
// the imported calendar mirrors the app's own reminders.
func ICS(days []plan.Day, set config.Settings, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)

	count := 0
	for _, d := range days {
		if !d.Work || d.Start.IsZero() {
			continue
		}
		uid := fmt.Sprintf("%s@%s", plan.DateKey(d.Date, loc), strings.TrimSuffix(plan.Namespace, "."))
		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(time.Now().UTC())
		ev.SetStartAt(d.Start.In(loc))
		if !d.End.IsZero() {
			ev.SetEndAt(d.End.In(loc))
		}
		ev.SetSummary(summaryFor(d.Phase))

		if set.Entry.Enabled && set.Entry.OffsetMinutes > 0 {
			alarm := ev.AddAlarm()
			alarm.SetAction(ical.ActionDisplay)
			alarm.SetTrigger(fmt.Sprintf("-PT%dM", set.Entry.OffsetMinutes))
		}
		count++
	}
	if count == 0 {
		return "", fmt.Errorf("no work days in range")
	}
	return cal.Serialize(), nil
}

func summaryFor(phase string) string {
	phase = strings.TrimSpace(phase)
	if phase == "" {
		return "Shift"
	}
	return strings.ToUpper(phase[:1]) + phase[1:] + " shift"
}
