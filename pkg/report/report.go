// Package report renders an analysis result as a human-readable text
// report. It consumes the result structure only; nothing here feeds back
// into the engine.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"
)

// Options controls rendering. Timestamp is injected rather than read from
// the clock so identical results render to identical reports in tests.
type Options struct {
	Timestamp time.Time
	// MaxLines caps how many paths are listed per change kind; zero means
	// models.MaxReportLines.
	MaxLines int
}

// Render produces the summary / technical / impact report body.
func Render(res *models.AnalysisResult, opts Options) string {
	var b strings.Builder

	b.WriteString("=== Firmware Update Analysis ===\n\n")
	if !opts.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Analysis Date: %s\n", opts.Timestamp.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(&b, "Firmware Comparison: %s -> %s\n", describeSide(res.OldContainer, res.OldInfo), describeSide(res.NewContainer, res.NewInfo))

	s := res.Summary
	b.WriteString("\nChange Statistics:\n")
	fmt.Fprintf(&b, "- Added files: %d\n", s.Added)
	fmt.Fprintf(&b, "- Removed files: %d\n", s.Removed)
	fmt.Fprintf(&b, "- Modified files: %d\n", s.Modified)
	fmt.Fprintf(&b, "- Unchanged files: %d\n", s.Unchanged)

	writeCategoryCounts(&b, s)
	writeHighlights(&b, res, opts.maxLines())
	writeInteractions(&b, s)

	b.WriteString("\nUpdate Analysis:\n")
	fmt.Fprintf(&b, "Update Priority: %s\n", strings.ToUpper(string(s.Verdict)))
	writeRecommendations(&b, s)

	if s.Degraded > 0 {
		fmt.Fprintf(&b, "\nAdvisory: %d entries could not be fully analyzed\n", s.Degraded)
		for _, d := range res.Diagnostics {
			fmt.Fprintf(&b, "- %s (%s): %s\n", d.Path, d.Stage, d.Message)
		}
	}

	return b.String()
}

func (o Options) maxLines() int {
	if o.MaxLines > 0 {
		return o.MaxLines
	}
	return models.MaxReportLines
}

func describeSide(container string, info *models.FirmwareInfo) string {
	if info == nil || (info.ProductVersion == "" && info.ProductBuild == "") {
		return container
	}
	if info.ProductBuild != "" {
		return fmt.Sprintf("%s (%s)", orUnknown(info.ProductVersion), info.ProductBuild)
	}
	return orUnknown(info.ProductVersion)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func writeCategoryCounts(b *strings.Builder, s models.Summary) {
	if len(s.ByCategory) == 0 {
		return
	}
	cats := make([]string, 0, len(s.ByCategory))
	for c := range s.ByCategory {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)

	b.WriteString("\nChanges by Subsystem:\n")
	for _, c := range cats {
		fmt.Fprintf(b, "- %s: %d\n", c, s.ByCategory[models.Category(c)])
	}
}

// writeHighlights lists the most urgent changed paths, most severe first,
// path order within a severity.
func writeHighlights(b *strings.Builder, res *models.AnalysisResult, maxLines int) {
	changes := res.Changes()
	if len(changes) == 0 {
		b.WriteString("\nNo changes detected between the two containers.\n")
		return
	}

	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Severity.Rank() > changes[j].Severity.Rank()
	})

	b.WriteString("\nKey Findings:\n")
	shown := 0
	for _, rec := range changes {
		if shown == maxLines {
			fmt.Fprintf(b, "  ... and %d more changes\n", len(changes)-shown)
			break
		}
		fmt.Fprintf(b, "- [%s/%s] %s %s", rec.Severity, rec.Category, rec.Kind, rec.Path)
		if delta := rec.SizeDelta(); rec.Kind == models.ChangeModified && delta != 0 {
			fmt.Fprintf(b, " (%+d bytes)", delta)
		}
		b.WriteString("\n")
		shown++
	}
}

// writeInteractions surfaces component combinations that historically signal
// a deeper update than either change alone.
func writeInteractions(b *strings.Builder, s models.Summary) {
	kernel := s.ByCategory[models.CategoryKernel]
	security := s.ByCategory[models.CategorySecurity]
	boot := s.ByCategory[models.CategoryBootChain]

	var notes []string
	if kernel > 0 && security > 0 {
		notes = append(notes, "Combined kernel and trust component changes suggest a significant system-level security update.")
	}
	if kernel > 0 && boot > 0 {
		notes = append(notes, "Changes to both the boot process and the kernel indicate fundamental system modifications.")
	}
	if len(notes) == 0 {
		return
	}
	b.WriteString("\nComponent Interactions:\n")
	for _, n := range notes {
		fmt.Fprintf(b, "- %s\n", n)
	}
}

func writeRecommendations(b *strings.Builder, s models.Summary) {
	b.WriteString("Recommendations:\n")
	switch s.Verdict {
	case models.VerdictUrgent:
		b.WriteString("- Critical system update: install as soon as possible\n")
	case models.VerdictMedium:
		b.WriteString("- Contains important component updates\n")
	default:
		b.WriteString("- Routine update; no urgent action required\n")
	}
	if s.ByCategory[models.CategorySecurity] > 0 {
		b.WriteString("- Contains security improvements\n")
	}
	if s.ByCategory[models.CategoryPerformance] > 0 {
		b.WriteString("- Performance improvements included\n")
	}
	if s.ByCategory[models.CategoryBootChain] > 0 {
		b.WriteString("- Back up the device before updating: boot chain components changed\n")
	}
}
