package batch

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/openlearn-labs/retirement/internal/domain"
	"github.com/openlearn-labs/retirement/internal/services/googledrive"
)

// defaultReportHeadings are the CSV columns partners receive unless their
// org config overrides the names. Overrides rename columns only; the
// values stay the same five fields.
var defaultReportHeadings = []string{
	"user_id", "original_username", "original_email", "original_name", "deletion_completed",
}

// ReportQueue is the LMS surface for partner reporting.
type ReportQueue interface {
	PartnerReportQueue(ctx context.Context) ([]domain.ReportLearner, error)
	CleanupPartnerReportQueue(ctx context.Context, learners []domain.ReportLearner) error
}

// ReportDelivery delivers generated reports, implemented by the Google
// Drive adapter.
type ReportDelivery interface {
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	UploadAll(ctx context.Context, uploads []googledrive.Upload) ([]googledrive.Uploaded, error)
	FolderEditors(ctx context.Context, folderID string) ([]string, error)
	AddComment(ctx context.Context, fileID, content string) error
}

// UnmappedOrgError means learners in the report queue belong to
// organizations with no configured destination folder. Reporting to an
// unknown destination is worse than not reporting at all, so the whole
// run stops.
type UnmappedOrgError struct {
	Orgs []string
}

func (e *UnmappedOrgError) Error() string {
	return fmt.Sprintf("no destination folder mapped for organizations: %s", strings.Join(e.Orgs, ", "))
}

type partnerReport struct {
	partner  string
	headings []string
	rows     [][]string
}

// ReportGenerator produces one CSV per partner organization listing the
// learners retired since the last report, and delivers them to each
// partner's Drive folder.
type ReportGenerator struct {
	logger       *slog.Logger
	queue        ReportQueue
	delivery     ReportDelivery
	platformName string
	// folders maps organization name to destination Drive folder id.
	folders  map[string]string
	comments bool
	now      func() time.Time
}

func NewReportGenerator(logger *slog.Logger, queue ReportQueue, delivery ReportDelivery, platformName string, folders map[string]string, comments bool) *ReportGenerator {
	return &ReportGenerator{
		logger:       logger,
		queue:        queue,
		delivery:     delivery,
		platformName: platformName,
		folders:      folders,
		comments:     comments,
		now:          time.Now,
	}
}

// Run fetches the queue, generates every partner's CSV into outputDir,
// and only once all files exist creates one dated subfolder under each
// partner's Drive folder and uploads into it. On full success the
// reported learners are cleared from the queue.
func (g *ReportGenerator) Run(ctx context.Context, outputDir string) error {
	learners, err := g.queue.PartnerReportQueue(ctx)
	if err != nil {
		return fmt.Errorf("fetch partner report queue: %w", err)
	}
	if len(learners) == 0 {
		g.logger.Info("partner report queue is empty")
		return nil
	}

	reports, err := g.buildReports(learners)
	if err != nil {
		return err
	}

	type generated struct {
		partner string
		name    string
		content []byte
	}
	files := make([]generated, 0, len(reports))
	date := g.now().Format(archiveDateFormat)
	for _, report := range reports {
		name := fmt.Sprintf("%s_%s_%s.csv", g.platformName, fileSafe(report.partner), date)
		content, err := writeReportCSV(filepath.Join(outputDir, name), report)
		if err != nil {
			return err
		}
		files = append(files, generated{partner: report.partner, name: name, content: content})
	}

	// Every file is generated; only now do Drive side effects start.
	uploads := make([]googledrive.Upload, 0, len(files))
	partnerRoot := make(map[string]string, len(files))
	for _, file := range files {
		root := g.folders[file.partner]
		folderID, err := g.delivery.CreateFolder(ctx, date, root)
		if err != nil {
			return fmt.Errorf("create report folder for %s: %w", file.partner, err)
		}
		partnerRoot[folderID] = root
		uploads = append(uploads, googledrive.Upload{
			Name:     file.name,
			ParentID: folderID,
			Content:  file.content,
		})
	}

	uploaded, err := g.delivery.UploadAll(ctx, uploads)
	if err != nil {
		return fmt.Errorf("deliver partner reports: %w", err)
	}
	g.logger.Info("partner reports delivered", "reports", len(uploaded), "learners", len(learners))

	if g.comments {
		g.notify(ctx, uploaded, partnerRoot)
	}

	if err := g.queue.CleanupPartnerReportQueue(ctx, learners); err != nil {
		return fmt.Errorf("clear partner report queue: %w", err)
	}
	return nil
}

// buildReports groups learners per partner, validating that every
// organization in the queue has a destination folder before any file is
// written. A learner affiliated with several partners appears in each
// partner's report.
func (g *ReportGenerator) buildReports(learners []domain.ReportLearner) ([]partnerReport, error) {
	byPartner := make(map[string]*partnerReport)
	unmapped := make(map[string]struct{})

	add := func(org string, headings []string, learner domain.ReportLearner) {
		if _, ok := g.folders[org]; !ok {
			unmapped[org] = struct{}{}
			return
		}
		report, ok := byPartner[org]
		if !ok {
			report = &partnerReport{partner: org, headings: headings}
			byPartner[org] = report
		}
		report.rows = append(report.rows, []string{
			strconv.FormatInt(learner.UserID, 10),
			learner.OriginalUsername,
			learner.OriginalEmail,
			learner.OriginalName,
			"True",
		})
	}

	for _, learner := range learners {
		for _, org := range learner.Orgs {
			add(org, defaultReportHeadings, learner)
		}
		for _, oc := range learner.OrgsConfig {
			headings := oc.FieldHeadings
			if len(headings) == 0 {
				headings = defaultReportHeadings
			} else if len(headings) != len(defaultReportHeadings) {
				return nil, fmt.Errorf("org %s configures %d field headings, want %d",
					oc.Name, len(headings), len(defaultReportHeadings))
			}
			add(oc.Name, headings, learner)
		}
	}

	if len(unmapped) > 0 {
		orgs := make([]string, 0, len(unmapped))
		for org := range unmapped {
			orgs = append(orgs, org)
		}
		sort.Strings(orgs)
		return nil, &UnmappedOrgError{Orgs: orgs}
	}

	reports := make([]partnerReport, 0, len(byPartner))
	for _, report := range byPartner {
		reports = append(reports, *report)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].partner < reports[j].partner })
	return reports, nil
}

// notify posts a comment on each uploaded report addressed to the
// editors of the partner's top-level folder (the dated subfolder only
// inherits permissions). Notification is best effort: a partner with no
// discoverable contact is skipped with a warning, never failed.
func (g *ReportGenerator) notify(ctx context.Context, uploaded []googledrive.Uploaded, partnerRoot map[string]string) {
	for _, file := range uploaded {
		root, ok := partnerRoot[file.ParentID]
		if !ok {
			root = file.ParentID
		}
		editors, err := g.delivery.FolderEditors(ctx, root)
		if err != nil {
			g.logger.Warn("could not list folder editors, skipping notification",
				"file", file.Name, "error", err.Error())
			continue
		}
		if len(editors) == 0 {
			g.logger.Warn("no point of contact for report folder, skipping notification",
				"file", file.Name, "folder", file.ParentID)
			continue
		}
		comment := fmt.Sprintf("Hello %s, a new retirement report has been delivered: %s",
			strings.Join(editors, ", "), file.Name)
		if err := g.delivery.AddComment(ctx, file.FileID, comment); err != nil {
			g.logger.Warn("could not post report notification",
				"file", file.Name, "error", err.Error())
		}
	}
}

func writeReportCSV(path string, report partnerReport) ([]byte, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(report.headings); err != nil {
		return nil, fmt.Errorf("write report for %s: %w", report.partner, err)
	}
	for _, row := range report.rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write report for %s: %w", report.partner, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write report for %s: %w", report.partner, err)
	}
	content := []byte(sb.String())
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return nil, fmt.Errorf("write report file %s: %w", path, err)
	}
	return content, nil
}

// fileSafe makes a partner name usable inside a filename.
func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\':
			return '_'
		}
		return r
	}, name)
}
