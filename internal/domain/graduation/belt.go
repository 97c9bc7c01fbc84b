package graduation

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/dojo-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEGREES
// ══════════════════════════════════════════════════════════════════════════════

// DegreeAchievement is created once per (student, course, degree) and never
// overwritten. The metric fields are a snapshot at achievement time.
type DegreeAchievement struct {
	ID               string
	StudentID        string
	CourseID         string
	Degree           int
	DegreePercentage float64
	CompletedLessons int
	TotalRepetitions int
	AverageQuality   float64
	AttendanceRate   float64
	AchievedAt       time.Time
}

// NewDegreeAchievement snapshots res for degree. The degree must already be
// reached.
func NewDegreeAchievement(id string, res ProgressionResult, degree int, increment float64, at time.Time) (*DegreeAchievement, error) {
	if degree < 1 {
		return nil, shared.InvalidInput("graduation", "RecordDegree", "degree must be at least 1")
	}
	if degree > res.CurrentDegree {
		return nil, shared.NewDomainError("graduation", "RecordDegree", shared.ErrNotEligible,
			fmt.Sprintf("degree %d not reached (current %d)", degree, res.CurrentDegree))
	}
	if increment <= 0 {
		increment = DefaultDegreeIncrement
	}
	return &DegreeAchievement{
		ID:               id,
		StudentID:        res.StudentID,
		CourseID:         res.CourseID,
		Degree:           degree,
		DegreePercentage: float64(degree) * increment,
		CompletedLessons: res.CompletedLessons,
		TotalRepetitions: res.TotalRepetitions,
		AverageQuality:   res.AverageQuality,
		AttendanceRate:   res.AttendanceRate,
		AchievedAt:       at,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BELTS
// ══════════════════════════════════════════════════════════════════════════════

// BeltGraduation is one append-only belt change. The current belt of a
// student in a course is the ToBelt of the most recent record.
type BeltGraduation struct {
	ID         string
	StudentID  string
	CourseID   string
	FromBelt   string
	ToBelt     string
	ApprovedBy string

	CompletedLessons int
	AttendanceRate   float64
	AverageQuality   float64
	TotalRepetitions int
	MonthsEnrolled   float64

	CeremonyDate  *time.Time
	CeremonyNotes string

	// Fingerprint is a blake2b-256 digest printed on the certificate.
	Fingerprint string

	GraduatedAt time.Time
}

// ApprovalParams describes an instructor's approval.
type ApprovalParams struct {
	ID            string
	FromBelt      string
	ToBelt        string
	ApprovedBy    string
	CeremonyDate  *time.Time
	CeremonyNotes string
	At            time.Time
}

// Approve builds the graduation record, failing with NotEligible unless every
// eligibility check in res passes.
func Approve(res ProgressionResult, p ApprovalParams) (*BeltGraduation, error) {
	if strings.TrimSpace(p.ApprovedBy) == "" {
		return nil, shared.InvalidInput("graduation", "Approve", "approver is required")
	}
	if strings.TrimSpace(p.ToBelt) == "" {
		return nil, shared.InvalidInput("graduation", "Approve", "target belt is required")
	}
	if !res.IsEligibleForBeltChange {
		return nil, shared.WrapError("graduation", "Approve", shared.ErrNotEligible,
			"student is not eligible for belt change",
			fmt.Errorf("failing checks: %s", strings.Join(res.Eligibility.Failing(), ", ")))
	}

	g := &BeltGraduation{
		ID:               p.ID,
		StudentID:        res.StudentID,
		CourseID:         res.CourseID,
		FromBelt:         p.FromBelt,
		ToBelt:           p.ToBelt,
		ApprovedBy:       p.ApprovedBy,
		CompletedLessons: res.CompletedLessons,
		AttendanceRate:   res.AttendanceRate,
		AverageQuality:   res.AverageQuality,
		TotalRepetitions: res.TotalRepetitions,
		MonthsEnrolled:   res.MonthsEnrolled,
		CeremonyDate:     p.CeremonyDate,
		CeremonyNotes:    p.CeremonyNotes,
		GraduatedAt:      p.At,
	}
	g.Fingerprint = g.ComputeFingerprint()
	return g, nil
}

// ComputeFingerprint hashes the identity and snapshot of the graduation.
func (g *BeltGraduation) ComputeFingerprint() string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d|%.4f|%.4f|%d|%s",
		g.ID, g.StudentID, g.CourseID, g.FromBelt, g.ToBelt, g.ApprovedBy,
		g.CompletedLessons, g.AttendanceRate, g.AverageQuality, g.TotalRepetitions,
		g.GraduatedAt.UTC().Format(time.RFC3339))
	sum := blake2b.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the stored fingerprint matches the record.
func (g *BeltGraduation) Verify() bool {
	return g.Fingerprint != "" && g.Fingerprint == g.ComputeFingerprint()
}

// CurrentBelt returns latest.ToBelt, or fallback when there is no graduation yet.
func CurrentBelt(latest *BeltGraduation, fallback string) string {
	if latest == nil {
		return fallback
	}
	return latest.ToBelt
}
