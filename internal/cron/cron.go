// Package cron computes the staggered daily schedules the chart assigns to
// CronJobs that have no explicit schedule.
package cron

import (
	"fmt"
	"hash/adler32"

	robfig "github.com/robfig/cron/v3"
)

// Schedule returns the daily schedule for releaseName. The checksum picks one
// of ten slots between 05:00 and 14:54, six minutes apart in the minute field
// and one hour apart in the hour field.
func Schedule(releaseName string) string {
	n := adler32.Checksum([]byte(releaseName)) % 10
	return fmt.Sprintf("%d %d * * *", n*6, n+5)
}

var parser = robfig.NewParser(robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow | robfig.Descriptor)

// Parse validates a standard five field cron expression.
func Parse(schedule string) (robfig.Schedule, error) {
	s, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return s, nil
}
