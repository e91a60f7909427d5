// internal/models/college.go
package models

import "time"

type CollegeListEntry struct {
	UniversityID  string     `json:"universityId"`
	Name          string     `json:"name"`
	IntendedMajor string     `json:"intendedMajor,omitempty"`
	AddedAt       time.Time  `json:"addedAt"`
	Permanent     bool       `json:"permanent"`
	FitAnalysis   *FitRecord `json:"fitAnalysis,omitempty"`
}
