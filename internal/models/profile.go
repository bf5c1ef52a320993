package models

// Profile holds the identity directory's display data for a user.
type Profile struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// PlaceholderProfile is substituted on roster rows whose enrichment failed.
func PlaceholderProfile(id string) Profile {
	return Profile{
		ID:        id,
		FirstName: "Unknown",
		LastName:  "Student",
		Email:     "student.not.found@example.com",
	}
}

// FullName joins first and last name.
func (p Profile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}
