// Package report renders the per-employee appraisal PDF: one page of
// scores, one of peer commentary, one of book recommendations.
package report

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"go.uber.org/zap"

	"github.com/beaverzip/appraise/internal/feedback"
	"github.com/beaverzip/appraise/internal/recommend"
)

const (
	pageWidth = 210.0 // A4 portrait, mm
	marginX   = 15.0
	contentW  = pageWidth - 2*marginX
	thumbW    = 30.0
	thumbH    = 45.0

	// Text in a fixed box shrinks from maxFontPt down to minFontPt
	// before overflowing lines are clipped.
	maxFontPt = 12.0
	minFontPt = 7.0

	fontFamily = "Helvetica"

	// ThumbnailTimeout bounds each cover-image fetch so one slow CDN
	// cannot stall a render job.
	ThumbnailTimeout = 3 * time.Second
)

// Artifact records one generated report file.
type Artifact struct {
	EmployeeID  string    `json:"employee_id"`
	Path        string    `json:"path"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Renderer writes appraisal PDFs into a single output directory.
type Renderer struct {
	outDir string
	client *http.Client
	logger *zap.Logger
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithHTTPClient replaces the thumbnail-fetching client.
func WithHTTPClient(c *http.Client) RendererOption {
	return func(r *Renderer) { r.client = c }
}

// WithLogger sets the renderer logger.
func WithLogger(logger *zap.Logger) RendererOption {
	return func(r *Renderer) { r.logger = logger }
}

// NewRenderer creates a renderer writing into outDir, creating it if
// needed.
func NewRenderer(outDir string, opts ...RendererOption) (*Renderer, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	r := &Renderer{
		outDir: outDir,
		client: &http.Client{Timeout: ThumbnailTimeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Render writes the three-page report for one employee and returns the
// artifact. The file lands at <outDir>/<employeeID>.pdf, overwriting any
// previous run's output.
func (r *Renderer) Render(ctx context.Context, rec feedback.EmployeeRecord, commentary recommend.Commentary, recs []recommend.Recommendation) (Artifact, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginX, 15, marginX)
	pdf.SetAutoPageBreak(false, 15)

	r.scorePage(pdf, rec)
	r.commentaryPage(pdf, commentary)
	r.recommendationPage(ctx, pdf, rec, recs)

	path := filepath.Join(r.outDir, rec.EmployeeID+".pdf")
	if err := pdf.OutputFileAndClose(path); err != nil {
		return Artifact{}, fmt.Errorf("writing report for %s: %w", rec.EmployeeID, err)
	}

	return Artifact{
		EmployeeID:  rec.EmployeeID,
		Path:        path,
		GeneratedAt: time.Now(),
	}, nil
}

// scorePage draws the profile header and the competency score table with
// the gap to the team average.
func (r *Renderer) scorePage(pdf *fpdf.Fpdf, rec feedback.EmployeeRecord) {
	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 20)
	pdf.CellFormat(contentW, 12, "Performance Appraisal Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(fontFamily, "", 11)
	pdf.CellFormat(contentW/2, 7, "Name: "+rec.Name, "", 0, "L", false, 0, "")
	pdf.CellFormat(contentW/2, 7, "Position: "+rec.Position, "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW/2, 7, "Grade: "+rec.Grade, "", 0, "L", false, 0, "")
	pdf.CellFormat(contentW/2, 7, fmt.Sprintf("Total: %.1f", rec.Total), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont(fontFamily, "B", 12)
	pdf.CellFormat(contentW, 8, "Competency Scores", "", 1, "L", false, 0, "")

	colW := []float64{60, 40, 40, 40}
	header := []string{"Competency", "Score", "Team Avg", "Difference"}

	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range header {
		pdf.CellFormat(colW[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	avg := make(map[string]float64, len(rec.TeamAverage))
	for _, pair := range rec.TeamAverage {
		avg[pair.Label] = pair.Score
	}

	pdf.SetFont(fontFamily, "", 10)
	for _, pair := range rec.Scores {
		diff := pair.Score - avg[pair.Label]
		style := ""
		if pair.Label == rec.Weakness {
			style = "B"
		}
		pdf.SetFont(fontFamily, style, 10)
		pdf.CellFormat(colW[0], 7, pair.Label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colW[1], 7, fmt.Sprintf("%.2f", pair.Score), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colW[2], 7, fmt.Sprintf("%.2f", avg[pair.Label]), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colW[3], 7, fmt.Sprintf("%+.2f", diff), "1", 1, "C", false, 0, "")
	}
	pdf.Ln(6)

	r.differenceChart(pdf, rec, avg)

	if rec.Weakness != "" {
		pdf.Ln(8)
		pdf.SetFont(fontFamily, "I", 10)
		pdf.CellFormat(contentW, 6,
			"Lowest-rated competency: "+rec.Weakness, "", 1, "L", false, 0, "")
	}
}

// differenceChart draws a horizontal bar per competency, scaled around a
// center axis: bars to the right are above the team average.
func (r *Renderer) differenceChart(pdf *fpdf.Fpdf, rec feedback.EmployeeRecord, avg map[string]float64) {
	pdf.SetFont(fontFamily, "B", 12)
	pdf.CellFormat(contentW, 8, "Difference From Team Average", "", 1, "L", false, 0, "")

	const (
		labelW   = 60.0
		barMax   = 55.0 // half-width of the chart, mm
		barH     = 5.0
		maxDelta = 2.0 // score-point delta mapped to a full bar
	)
	center := marginX + labelW + barMax

	pdf.SetFont(fontFamily, "", 9)
	for _, pair := range rec.Scores {
		diff := pair.Score - avg[pair.Label]
		y := pdf.GetY()

		pdf.CellFormat(labelW, barH+2, pair.Label, "", 0, "L", false, 0, "")

		w := diff / maxDelta * barMax
		if w > barMax {
			w = barMax
		}
		if w < -barMax {
			w = -barMax
		}
		if w >= 0 {
			pdf.SetFillColor(120, 170, 120)
			pdf.Rect(center, y+1, w, barH, "F")
		} else {
			pdf.SetFillColor(200, 120, 120)
			pdf.Rect(center+w, y+1, -w, barH, "F")
		}
		pdf.Line(center, y, center, y+barH+2)
		pdf.Ln(barH + 2)
	}
}

// commentaryPage draws the overall assessment in a shaded box, then one
// summarized section per commented competency.
func (r *Renderer) commentaryPage(pdf *fpdf.Fpdf, commentary recommend.Commentary) {
	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(contentW, 10, "Peer Commentary", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if commentary.Assessment != "" {
		pdf.SetFont(fontFamily, "", 11)
		pdf.SetFillColor(233, 233, 233)
		pdf.MultiCell(contentW, 6, commentary.Assessment, "", "L", true)
		pdf.Ln(4)
	}

	if len(commentary.Sections) == 0 {
		if commentary.Assessment == "" {
			pdf.SetFont(fontFamily, "", 11)
			pdf.MultiCell(contentW, 6,
				"No free-text feedback was submitted for this employee.", "", "L", false)
		}
		return
	}

	var body strings.Builder
	for _, section := range commentary.Sections {
		fmt.Fprintf(&body, "[%s]\n%s\n\n", section.Label, section.Summary)
	}
	r.fitText(pdf, body.String(), contentW, 220)
}

// recommendationPage lists up to three suggested books with covers.
func (r *Renderer) recommendationPage(ctx context.Context, pdf *fpdf.Fpdf, rec feedback.EmployeeRecord, recs []recommend.Recommendation) {
	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(contentW, 10, "Recommended Reading", "", 1, "L", false, 0, "")

	if len(recs) == 0 {
		pdf.SetFont(fontFamily, "", 11)
		pdf.MultiCell(contentW, 6,
			"No recommendations were generated for this report.", "", "L", false)
		return
	}

	pdf.SetFont(fontFamily, "I", 10)
	pdf.MultiCell(contentW, 5, "Search query: "+recs[0].Query, "", "L", false)
	pdf.Ln(4)

	for i, book := range recs {
		y := pdf.GetY()

		r.drawThumbnail(ctx, pdf, rec.EmployeeID, book, marginX, y)

		textX := marginX + thumbW + 5
		textW := contentW - thumbW - 5

		pdf.SetXY(textX, y)
		pdf.SetFont(fontFamily, "B", 12)
		pdf.MultiCell(textW, 6, fmt.Sprintf("%d. %s", i+1, book.Title), "", "L", false)

		pdf.SetX(textX)
		pdf.SetFont(fontFamily, "I", 9)
		pdf.MultiCell(textW, 5, book.Authors, "", "L", false)

		pdf.SetXY(textX, pdf.GetY()+1)
		pdf.SetFont(fontFamily, "", 9)
		pdf.MultiCell(textW, 4.5, book.Summary, "", "L", false)

		bottom := y + thumbH
		if pdf.GetY() > bottom {
			bottom = pdf.GetY()
		}
		pdf.SetY(bottom + 6)
	}
}

// drawThumbnail fetches the cover image and places it; on any failure it
// draws a framed "not available" placeholder instead.
func (r *Renderer) drawThumbnail(ctx context.Context, pdf *fpdf.Fpdf, employeeID string, book recommend.Recommendation, x, y float64) {
	if book.Thumbnail != "" {
		if name, imgType, ok := r.fetchThumbnail(ctx, pdf, employeeID, book); ok {
			pdf.ImageOptions(name, x, y, thumbW, thumbH, false,
				fpdf.ImageOptions{ImageType: imgType}, 0, "")
			return
		}
	}

	pdf.Rect(x, y, thumbW, thumbH, "D")
	pdf.SetXY(x, y+thumbH/2-3)
	pdf.SetFont(fontFamily, "I", 8)
	pdf.CellFormat(thumbW, 6, "not available", "", 0, "C", false, 0, "")
}

// fetchThumbnail downloads the cover and registers it with the document
// under a name unique within this PDF.
func (r *Renderer) fetchThumbnail(ctx context.Context, pdf *fpdf.Fpdf, employeeID string, book recommend.Recommendation) (string, string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, book.Thumbnail, nil)
	if err != nil {
		r.logger.Warn("bad thumbnail url",
			zap.String("book", book.BookID), zap.Error(err))
		return "", "", false
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("thumbnail fetch failed",
			zap.String("book", book.BookID), zap.Error(err))
		return "", "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("thumbnail fetch failed",
			zap.String("book", book.BookID), zap.Int("status", resp.StatusCode))
		return "", "", false
	}

	imgType := imageType(resp.Header.Get("Content-Type"), book.Thumbnail)
	if imgType == "" {
		r.logger.Warn("unsupported thumbnail format",
			zap.String("book", book.BookID),
			zap.String("content_type", resp.Header.Get("Content-Type")))
		return "", "", false
	}

	name := employeeID + "-" + book.BookID
	pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: imgType}, resp.Body)
	if pdf.Err() {
		r.logger.Warn("thumbnail decode failed",
			zap.String("book", book.BookID), zap.String("err", pdf.Error().Error()))
		pdf.ClearError()
		return "", "", false
	}
	return name, imgType, true
}

// imageType maps the response content type (or the URL extension as a
// fallback) onto an fpdf image type.
func imageType(contentType, url string) string {
	switch {
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return "JPG"
	case strings.Contains(contentType, "png"):
		return "PNG"
	case strings.Contains(contentType, "gif"):
		return "GIF"
	}
	switch {
	case strings.HasSuffix(url, ".jpg"), strings.HasSuffix(url, ".jpeg"):
		return "JPG"
	case strings.HasSuffix(url, ".png"):
		return "PNG"
	case strings.HasSuffix(url, ".gif"):
		return "GIF"
	}
	return ""
}

// fitText writes text into a box of the given width and height. The font
// shrinks one point at a time until the wrapped lines fit; at the floor
// size, overflowing lines are dropped.
func (r *Renderer) fitText(pdf *fpdf.Fpdf, text string, w, h float64) {
	for size := maxFontPt; size >= minFontPt; size-- {
		pdf.SetFont(fontFamily, "", size)
		lineH := size * 0.45
		lines := pdf.SplitText(text, w)
		if float64(len(lines))*lineH <= h || size == minFontPt {
			max := int(h / lineH)
			if len(lines) > max {
				lines = lines[:max]
			}
			for _, line := range lines {
				pdf.CellFormat(w, lineH, line, "", 1, "L", false, 0, "")
			}
			return
		}
	}
}
