// Package assess folds a classified change sequence into aggregate counts
// and a single overall verdict.
package assess

import "github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"

// Summarize is a pure, total function of its inputs: identical record
// sequences always produce an identical summary. Unchanged records count
// toward the partition totals only; category and severity tallies cover
// actual changes, so an untouched kernelcache cannot raise the verdict.
func Summarize(records []models.ChangeRecord, diagnostics []models.Diagnostic) models.Summary {
	s := models.Summary{
		TotalPaths: len(records),
		ByCategory: make(map[models.Category]int),
		BySeverity: make(map[models.Severity]int),
		ByPair:     make(map[models.Category]map[models.Severity]int),
		Degraded:   len(diagnostics),
	}

	for _, rec := range records {
		switch rec.Kind {
		case models.ChangeAdded:
			s.Added++
		case models.ChangeRemoved:
			s.Removed++
		case models.ChangeModified:
			s.Modified++
		case models.ChangeUnchanged:
			s.Unchanged++
			continue
		}

		s.ByCategory[rec.Category]++
		s.BySeverity[rec.Severity]++
		if s.ByPair[rec.Category] == nil {
			s.ByPair[rec.Category] = make(map[models.Severity]int)
		}
		s.ByPair[rec.Category][rec.Severity]++
	}

	s.Verdict = verdict(s.BySeverity)
	return s
}

// verdict: urgent if any critical change exists, medium if any high-severity
// change exists absent critical, low otherwise.
func verdict(bySeverity map[models.Severity]int) models.Verdict {
	if bySeverity[models.SeverityCritical] > 0 {
		return models.VerdictUrgent
	}
	if bySeverity[models.SeverityHigh] > 0 {
		return models.VerdictMedium
	}
	return models.VerdictLow
}
