package service

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/dto"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/export"
)

// Report formats accepted by GET /dean/reports.
const (
	ReportFormatJSON = "json"
	ReportFormatCSV  = "csv"
	ReportFormatPDF  = "pdf"
)

type reportRenderer interface {
	Render(report export.Report) ([]byte, error)
}

// RenderedReport is a report encoded for download.
type RenderedReport struct {
	Payload     []byte
	ContentType string
	FileName    string
}

// ExportService turns usage reports into downloadable files.
type ExportService struct {
	csv    reportRenderer
	pdf    reportRenderer
	logger *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers fall back to the export package defaults.
func NewExportService(csv, pdf reportRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{csv: csv, pdf: pdf, logger: logger}
}

// NormalizeFormat validates a requested report format, defaulting to json.
func NormalizeFormat(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", ReportFormatJSON:
		return ReportFormatJSON, nil
	case ReportFormatCSV:
		return ReportFormatCSV, nil
	case ReportFormatPDF:
		return ReportFormatPDF, nil
	}
	return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format %q", raw))
}

// Render encodes the report as csv or pdf.
func (s *ExportService) Render(report *dto.DeanReportResponse, format string) (*RenderedReport, error) {
	if report == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "report is empty")
	}
	doc := buildUsageReport(report)
	stamp := report.GeneratedAt.Format("20060102")

	var (
		out *RenderedReport
		err error
	)
	switch format {
	case ReportFormatCSV:
		var payload []byte
		payload, err = s.csv.Render(doc)
		out = &RenderedReport{Payload: payload, ContentType: "text/csv; charset=utf-8", FileName: "print-usage-" + stamp + ".csv"}
	case ReportFormatPDF:
		var payload []byte
		payload, err = s.pdf.Render(doc)
		out = &RenderedReport{Payload: payload, ContentType: "application/pdf", FileName: "print-usage-" + stamp + ".pdf"}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format %q", format))
	}
	if err != nil {
		s.logger.Error("render report failed", zap.String("format", format), zap.Error(err))
		return nil, appErrors.Internal(err, "failed to render report")
	}
	return out, nil
}

func buildUsageReport(report *dto.DeanReportResponse) export.Report {
	top := export.Dataset{Title: "Top users by executed prints", Headers: []string{"EPF", "Name", "Department", "Prints", "Pages"}}
	for _, row := range report.TopUsers {
		top.Rows = append(top.Rows, []string{row.EPF, row.Name, row.Department, strconv.Itoa(row.Prints), strconv.Itoa(row.Pages)})
	}

	proposals := export.Dataset{Title: "Policy proposals", Headers: []string{"Status", "Count"}}
	for _, row := range report.ProposalStats {
		proposals.Rows = append(proposals.Rows, []string{row.Status, strconv.Itoa(row.Count)})
	}

	approvals := export.Dataset{Title: "Approval requests", Headers: []string{"Status", "Count"}}
	for _, row := range report.ApprovalStats {
		approvals.Rows = append(approvals.Rows, []string{row.Status, strconv.Itoa(row.Count)})
	}

	blocked := export.Dataset{Title: "Blocked attempts per day", Headers: []string{"Day", "Blocked"}}
	for _, row := range report.BlockedPerDay {
		blocked.Rows = append(blocked.Rows, []string{row.Day, strconv.Itoa(row.Count)})
	}

	return export.Report{
		Title:    "Print usage report",
		Subtitle: fmt.Sprintf("%s to %s", report.PeriodStart.Format("2006-01-02"), report.PeriodEnd.Format("2006-01-02")),
		Sections: []export.Dataset{top, proposals, approvals, blocked},
	}
}
