package report

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/showsweep/internal/engine"
	"github.com/amaumene/showsweep/internal/models"
)

// Entry is one show line in the final report
type Entry struct {
	Title     string
	Year      int
	Action    models.Action
	Simulated bool
	SizeBytes int64
	Reason    string
}

func (e Entry) label() string {
	if e.Year != 0 {
		return fmt.Sprintf("%s (%d)", e.Title, e.Year)
	}
	return e.Title
}

// Report summarizes one sweep: shows acted on, shows skipped due to errors,
// and shows excluded by each safety rule
type Report struct {
	Total int

	Acted             []Entry // eligible shows with their decided action
	SkippedErrors     []Entry // adapter failures, kept and reported
	ExcludedAmbiguous []Entry // unresolved identities
	RecentRequest     []Entry
	WatchHistory      []Entry
	PartialProtection []Entry

	DryRun bool
}

// Add files one assessment and its recorded outcome into the report
func (r *Report) Add(assessment engine.Assessment, record *models.ActionRecord) {
	r.Total++
	entry := Entry{
		Title:     assessment.Title,
		Year:      assessment.Year,
		SizeBytes: assessment.SizeBytes,
		Reason:    assessment.Reason,
	}
	if record != nil {
		entry.Action = record.Action
		entry.Simulated = record.Simulated
	}

	switch {
	case assessment.Skipped:
		r.SkippedErrors = append(r.SkippedErrors, entry)
	case assessment.Excluded:
		r.ExcludedAmbiguous = append(r.ExcludedAmbiguous, entry)
	case assessment.Eligible:
		r.Acted = append(r.Acted, entry)
	case assessment.RequestedRecently:
		r.RecentRequest = append(r.RecentRequest, entry)
	case !assessment.Unwatched:
		r.WatchHistory = append(r.WatchHistory, entry)
	case assessment.PartialProtection:
		r.PartialProtection = append(r.PartialProtection, entry)
	}
}

// ReclaimableBytes sums the disk space of shows marked for deletion
func (r *Report) ReclaimableBytes() int64 {
	var total int64
	for _, entry := range r.Acted {
		if entry.Action == models.ActionDelete {
			total += entry.SizeBytes
		}
	}
	return total
}

// Failed reports whether the run should exit non-zero
func (r *Report) Failed() bool {
	return len(r.SkippedErrors) > 0 && len(r.SkippedErrors) == r.Total
}

// Log writes the report through the logger, the run's user-visible summary
func (r *Report) Log(logger *logrus.Logger) {
	divider := strings.Repeat("=", 50)
	logger.Info(divider)
	logger.Info("SHOWSWEEP REPORT")
	logger.Info(divider)
	logger.Infof("Total shows scanned: %d", r.Total)
	logger.Infof("Shows excluded by recent request: %d", len(r.RecentRequest))
	logger.Infof("Shows excluded by watch history: %d", len(r.WatchHistory))
	logger.Infof("Shows excluded by first season/episode protection: %d", len(r.PartialProtection))
	logger.Infof("Shows excluded by unresolved identity: %d", len(r.ExcludedAmbiguous))
	logger.Infof("Shows skipped due to errors: %d", len(r.SkippedErrors))
	logger.Infof("Shows acted on: %d", len(r.Acted))

	if len(r.Acted) > 0 {
		mode := "applied"
		if r.DryRun {
			mode = "simulated"
		}
		logger.Infof("Actions (%s), %s reclaimable:", mode, humanize.IBytes(uint64(r.ReclaimableBytes())))
		for i, entry := range r.Acted {
			logger.Infof("  %d. %s -> %s (%s)", i+1, entry.label(), entry.Action, humanize.IBytes(uint64(entry.SizeBytes)))
		}
	}

	if len(r.SkippedErrors) > 0 {
		logger.Warn("Skipped due to errors:")
		for i, entry := range r.SkippedErrors {
			logger.Warnf("  %d. %s: %s", i+1, entry.label(), entry.Reason)
		}
	}

	if len(r.ExcludedAmbiguous) > 0 {
		logger.Warn("Excluded until identity is re-resolved:")
		for i, entry := range r.ExcludedAmbiguous {
			logger.Warnf("  %d. %s: %s", i+1, entry.label(), entry.Reason)
		}
	}
}
