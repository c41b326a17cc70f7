package interfaces

import "github.com/ternarybob/jobpilot/internal/models"

// ResumeInfo describes a resume file that passed PDF validation
type ResumeInfo struct {
	Path      string `json:"path"`
	PageCount int    `json:"page_count"`
	FileSize  int64  `json:"file_size"`
}

// ResumeService validates resume files and renders one from a profile when none is on file
type ResumeService interface {
	// Inspect parses the file as a PDF; any structural problem is returned as an error
	Inspect(path string) (*ResumeInfo, error)

	// WriteResume renders the profile to a PDF and returns the written path
	WriteResume(profile *models.Profile) (string, error)
}
