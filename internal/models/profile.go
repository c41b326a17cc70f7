package models

import "time"

// Profile is the structured applicant data used to fill forms
type Profile struct {
	UserID          string            `json:"user_id" badgerhold:"key"`
	FirstName       string            `json:"first_name"`
	LastName        string            `json:"last_name"`
	Email           string            `json:"email"`
	Phone           string            `json:"phone"`
	City            string            `json:"city"`
	Headline        string            `json:"headline"`
	YearsExperience int               `json:"years_experience"`
	Experience      []string          `json:"experience,omitempty"`
	Education       []string          `json:"education,omitempty"`
	Skills          []string          `json:"skills,omitempty"`
	ResumePath      string            `json:"resume_path,omitempty"`
	Answers         map[string]string `json:"answers,omitempty"` // normalized question -> remembered answer
	UpdatedAt       time.Time         `json:"updated_at"`
}

// MissingFields lists required profile fields that are empty
func (p *Profile) MissingFields() []string {
	var missing []string
	if p.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if p.LastName == "" {
		missing = append(missing, "last_name")
	}
	if p.Email == "" {
		missing = append(missing, "email")
	}
	if p.Phone == "" {
		missing = append(missing, "phone")
	}
	if p.ResumePath == "" {
		missing = append(missing, "resume_path")
	}
	return missing
}

// Credentials are handed to login and never persisted by the session layer
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CredentialEnvelope is the stored, versioned form of a user's credentials
type CredentialEnvelope struct {
	UserID    string    `json:"user_id" badgerhold:"key"`
	Version   int       `json:"version"`
	Payload   []byte    `json:"payload"`
	UpdatedAt time.Time `json:"updated_at"`
}
