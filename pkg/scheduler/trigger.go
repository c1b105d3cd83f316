package scheduler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/codeready-toolchain/meshgate/pkg/errs"
	"github.com/codeready-toolchain/meshgate/pkg/model"
)

// NextRun computes the next firing time for a ScheduledTask's trigger
// (spec §4.7 "Trigger construction"). after is the time to compute from
// (normally time.Now(), or the task's createdAt on first schedule).
func NextRun(t *model.ScheduledTask, after time.Time) (*int64, error) {
	loc := time.UTC
	if t.Timezone != "" {
		l, err := time.LoadLocation(t.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", t.Timezone, err)
		}
		loc = l
	}

	switch t.ScheduleType {
	case model.ScheduleCron:
		sched, err := cron.ParseStandard(t.ScheduleExpression)
		if err != nil {
			return nil, errs.Wrap(errs.BadRequest, "invalid cron expression", err)
		}
		next := sched.Next(after.In(loc)).UnixMilli()
		return &next, nil

	case model.ScheduleInterval:
		d, err := parseIntervalExpression(t.ScheduleExpression)
		if err != nil {
			return nil, err
		}
		next := after.Add(d).UnixMilli()
		return &next, nil

	case model.ScheduleOneTime:
		fireAt, err := time.ParseInLocation(time.RFC3339, t.ScheduleExpression, loc)
		if err != nil {
			return nil, errs.Wrap(errs.BadRequest, "invalid one_time ISO-8601 datetime", err)
		}
		ms := fireAt.UnixMilli()
		return &ms, nil

	default:
		return nil, errs.New(errs.BadRequest, fmt.Sprintf("unknown schedule type %q", t.ScheduleType))
	}
}

// parseIntervalExpression parses the "Ns|Nm|Nh|Nd" shorthand into a
// duration. orchestratorDelegated rejects sub-minute intervals, since a
// container-orchestrator CronJob cannot express them (spec §4.7).
func parseIntervalExpression(expr string) (time.Duration, error) {
	if len(expr) < 2 {
		return 0, errs.New(errs.BadRequest, "invalid interval expression")
	}
	unit := expr[len(expr)-1]
	numPart := expr[:len(expr)-1]
	n, err := strconv.Atoi(numPart)
	if err != nil || n <= 0 {
		return 0, errs.New(errs.BadRequest, fmt.Sprintf("invalid interval expression %q", expr))
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, errs.New(errs.BadRequest, fmt.Sprintf("invalid interval unit in %q", expr))
	}
}

// ValidateForMode rejects sub-minute interval triggers when the deployment
// mode reflects schedules into an external orchestrator's CronJob/Job
// objects, which cannot express sub-minute periods (spec §4.7).
func ValidateForMode(t *model.ScheduledTask, orchestratorDelegated bool) error {
	if !orchestratorDelegated || t.ScheduleType != model.ScheduleInterval {
		return nil
	}
	d, err := parseIntervalExpression(t.ScheduleExpression)
	if err != nil {
		return err
	}
	if d < 60*time.Second {
		return errs.New(errs.BadRequest, "interval triggers under 60s are not supported in orchestrator-delegated mode")
	}
	return nil
}

func isOneShotDue(t *model.ScheduledTask, now time.Time) bool {
	return t.ScheduleType == model.ScheduleOneTime && t.NextRunAt != nil && *t.NextRunAt <= now.UnixMilli()
}
