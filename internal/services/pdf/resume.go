// -----------------------------------------------------------------------
// Resume PDF Service - validate resume files and render one from a profile
// -----------------------------------------------------------------------

package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Service implements interfaces.ResumeService
type Service struct {
	dir    string
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.ResumeService = (*Service)(nil)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// NewService creates a resume service writing generated files under dir
func NewService(dir string, logger arbor.ILogger) *Service {
	return &Service{
		dir:    dir,
		logger: logger,
	}
}

// Inspect reads the PDF structure with pdfcpu
func (s *Service) Inspect(path string) (*interfaces.ResumeInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("resume not readable: %w", err)
	}

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("resume is not a valid PDF: %w", err)
	}
	if pdfCtx.Encrypt != nil {
		return nil, fmt.Errorf("resume is encrypted")
	}
	if pdfCtx.PageCount == 0 {
		return nil, fmt.Errorf("resume has no pages")
	}

	info := &interfaces.ResumeInfo{
		Path:      path,
		PageCount: pdfCtx.PageCount,
		FileSize:  stat.Size(),
	}

	s.logger.Debug().
		Str("path", path).
		Int("page_count", info.PageCount).
		Int64("file_size", info.FileSize).
		Msg("Resume validated")

	return info, nil
}

// WriteResume renders the profile and stores it as <dir>/<user>-resume.pdf
func (s *Service) WriteResume(profile *models.Profile) (string, error) {
	data, err := s.RenderResume(profile)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create resume directory: %w", err)
	}
	path := filepath.Join(s.dir, unsafeName.ReplaceAllString(profile.UserID, "_")+"-resume.pdf")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write resume: %w", err)
	}

	s.logger.Info().Str("user_id", profile.UserID).Str("path", path).Msg("Generated resume from profile")
	return path, nil
}

// RenderResume converts the profile to markdown, then to a PDF
func (s *Service) RenderResume(profile *models.Profile) ([]byte, error) {
	markdown := ResumeMarkdown(profile)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(strings.TrimSpace(profile.FirstName+" "+profile.LastName), true)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 10)

	md := goldmark.New(goldmark.WithParserOptions(parser.WithAutoHeadingID()))
	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	renderer := &pdfRenderer{
		pdf:    pdf,
		source: source,
		font:   "Arial",
		size:   10,
	}
	if err := renderer.render(doc); err != nil {
		return nil, fmt.Errorf("failed to render resume: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate resume PDF output")
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}
	return buf.Bytes(), nil
}

// ResumeMarkdown lays out the profile as a markdown document
func ResumeMarkdown(profile *models.Profile) string {
	var b strings.Builder

	name := strings.TrimSpace(profile.FirstName + " " + profile.LastName)
	if name == "" {
		name = profile.UserID
	}
	b.WriteString("# " + name + "\n\n")
	if profile.Headline != "" {
		b.WriteString("**" + profile.Headline + "**\n\n")
	}

	var contact []string
	for _, v := range []string{profile.Email, profile.Phone, profile.City} {
		if v != "" {
			contact = append(contact, v)
		}
	}
	if len(contact) > 0 {
		b.WriteString(strings.Join(contact, " | ") + "\n\n")
	}
	if profile.YearsExperience > 0 {
		b.WriteString(fmt.Sprintf("*%d years of professional experience*\n\n", profile.YearsExperience))
	}

	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString("## " + title + "\n\n")
		for _, item := range items {
			b.WriteString("- " + item + "\n")
		}
		b.WriteString("\n")
	}
	section("Experience", profile.Experience)
	section("Education", profile.Education)
	section("Skills", profile.Skills)

	return b.String()
}
