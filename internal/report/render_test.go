package report

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"

	"github.com/beaverzip/appraise/internal/feedback"
	"github.com/beaverzip/appraise/internal/recommend"
)

func renderCommentary() recommend.Commentary {
	return recommend.Commentary{
		Assessment: "A dependable engineer whose technical judgment outpaces their availability to teammates.",
		Sections: []recommend.CompetencySummary{
			{Label: "communication", Summary: "Peers find them hard to reach during incidents."},
			{Label: "leadership", Summary: "Steps up when it matters."},
		},
	}
}

func renderRecord() feedback.EmployeeRecord {
	return feedback.EmployeeRecord{
		EmployeeID: "emp-7",
		Name:       "Dana Kim",
		Position:   "Platform Senior",
		Email:      "dana@example.com",
		Grade:      "B+",
		Total:      81.5,
		Scores: []feedback.ScorePair{
			{Label: "communication", Score: 3.2},
			{Label: "leadership", Score: 4.1},
		},
		TeamAverage: []feedback.ScorePair{
			{Label: "communication", Score: 3.9},
			{Label: "leadership", Score: 3.8},
		},
		Answers: []feedback.Answer{
			{QuestionID: "q_1", Texts: []string{"hard to reach during incidents"}},
			{QuestionID: "q_2", Texts: []string{"steps up when it matters"}},
		},
		Weakness: "communication",
	}
}

func renderRecs(thumbnail string) []recommend.Recommendation {
	return []recommend.Recommendation{
		{
			BookID:     "isbn-1",
			Title:      "Crucial Conversations",
			Authors:    "K. Patterson",
			Similarity: 0.91,
			Summary:    "Tools for talking when stakes are high.",
			Thumbnail:  thumbnail,
			Query:      "a book for someone who struggles to communicate effectively at work",
		},
		{
			BookID:     "isbn-2",
			Title:      "Just Listen",
			Authors:    "M. Goulston",
			Similarity: 0.88,
			Summary:    "Getting through to absolutely anyone.",
			Query:      "a book for someone who struggles to communicate effectively at work",
		},
	}
}

func pageCount(t *testing.T, path string) int {
	t.Helper()
	f, r, err := pdf.Open(path)
	if err != nil {
		t.Fatalf("opening rendered pdf: %v", err)
	}
	defer f.Close()
	return r.NumPage()
}

func TestRenderProducesThreePages(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRenderer(dir)
	if err != nil {
		t.Fatal(err)
	}

	art, err := r.Render(context.Background(), renderRecord(), renderCommentary(), renderRecs(""))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	want := filepath.Join(dir, "emp-7.pdf")
	if art.Path != want {
		t.Errorf("artifact path = %s, want %s", art.Path, want)
	}
	if art.EmployeeID != "emp-7" {
		t.Errorf("artifact employee = %s", art.EmployeeID)
	}
	if got := pageCount(t, art.Path); got != 3 {
		t.Errorf("page count = %d, want 3", got)
	}
}

func TestRenderWithoutRecommendations(t *testing.T) {
	r, err := NewRenderer(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	art, err := r.Render(context.Background(), renderRecord(), renderCommentary(), nil)
	if err != nil {
		t.Fatalf("Render without recommendations: %v", err)
	}
	if got := pageCount(t, art.Path); got != 3 {
		t.Errorf("page count = %d, want 3", got)
	}
}

func TestRenderLongCommentaryStaysOnOnePage(t *testing.T) {
	commentary := recommend.Commentary{
		Sections: []recommend.CompetencySummary{{
			Label:   "communication",
			Summary: strings.Repeat("consistently misses standups and async updates. ", 400),
		}},
	}

	r, err := NewRenderer(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	art, err := r.Render(context.Background(), renderRecord(), commentary, renderRecs(""))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	// Overflowing commentary is clipped, never spilled onto extra pages.
	if got := pageCount(t, art.Path); got != 3 {
		t.Errorf("page count = %d, want 3", got)
	}
}

func TestRenderWithoutCommentary(t *testing.T) {
	r, err := NewRenderer(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	art, err := r.Render(context.Background(), renderRecord(), recommend.Commentary{}, renderRecs(""))
	if err != nil {
		t.Fatalf("Render without commentary: %v", err)
	}
	if got := pageCount(t, art.Path); got != 3 {
		t.Errorf("page count = %d, want 3", got)
	}
}

func TestRenderFetchesThumbnail(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 6))); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	r, err := NewRenderer(t.TempDir(), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}

	art, err := r.Render(context.Background(), renderRecord(), renderCommentary(), renderRecs(srv.URL+"/cover.png"))
	if err != nil {
		t.Fatalf("Render with thumbnail: %v", err)
	}
	if got := pageCount(t, art.Path); got != 3 {
		t.Errorf("page count = %d, want 3", got)
	}
}

func TestRenderSurvivesThumbnailFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	r, err := NewRenderer(t.TempDir(), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Render(context.Background(), renderRecord(), renderCommentary(), renderRecs(srv.URL+"/cover.png")); err != nil {
		t.Fatalf("thumbnail failure must not fail the render: %v", err)
	}
}

func TestImageType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		url         string
		want        string
	}{
		{"jpeg content type", "image/jpeg", "http://x/cover", "JPG"},
		{"png content type", "image/png", "http://x/cover", "PNG"},
		{"extension fallback", "application/octet-stream", "http://x/cover.png", "PNG"},
		{"jpg extension", "", "http://x/cover.jpg", "JPG"},
		{"unsupported", "image/webp", "http://x/cover.webp", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := imageType(tt.contentType, tt.url); got != tt.want {
				t.Errorf("imageType(%q, %q) = %q, want %q", tt.contentType, tt.url, got, tt.want)
			}
		})
	}
}
