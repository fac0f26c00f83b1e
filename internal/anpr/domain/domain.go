// Package domain holds the entity types shared across the ANPR compliance
// core: sites, movements, sessions, permits, payments, decisions, plate
// reviews, and enforcement suspensions. Types here carry no persistence or
// transport concerns — those live in internal/store and the cmd entrypoints.
package domain

import "time"

// Direction is the resolved travel direction of a Movement.
type Direction string

const (
	DirectionEntry   Direction = "ENTRY"
	DirectionExit    Direction = "EXIT"
	DirectionUnknown Direction = "UNKNOWN"
)

// EnforcementType is a site's payment/permit operating model.
type EnforcementType string

const (
	EnforcementAuto          EnforcementType = "AUTO"
	EnforcementPayAndDisplay EnforcementType = "PAY_AND_DISPLAY"
	EnforcementPermitOnly    EnforcementType = "PERMIT_ONLY"
	EnforcementMixed         EnforcementType = "MIXED"
)

// GracePeriods are the site-configured grace minutes from spec §3.
type GracePeriods struct {
	EntryMinutes    int
	ExitMinutes     int
	OverstayMinutes int
}

// DefaultGracePeriods are used whenever a Site does not override them.
func DefaultGracePeriods() GracePeriods {
	return GracePeriods{EntryMinutes: 10, ExitMinutes: 10, OverstayMinutes: 15}
}

// Camera is one entry in a Site's ordered camera list.
type Camera struct {
	ID               string
	TowardsDirection Direction
	AwayDirection    Direction
}

// Site is created/updated externally and consumed read-only by the core.
type Site struct {
	ID              string
	Name            string
	Active          bool
	Grace           GracePeriods
	Enforcement     EnforcementType
	Cameras         []Camera
}

// CameraByID performs a case-insensitive lookup, per spec §4.2 direction
// resolution rule (1).
func (s Site) CameraByID(id string) (Camera, bool) {
	for _, c := range s.Cameras {
		if equalFold(c.ID, id) {
			return c, true
		}
	}
	return Camera{}, false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// ImageType classifies a Movement's attached image.
type ImageType string

const (
	ImagePlate    ImageType = "plate"
	ImageOverview ImageType = "overview"
	ImageContext  ImageType = "context"
)

// Image is one evidentiary image attached to a Movement.
type Image struct {
	URL  string
	Type ImageType
}

// Movement is an immutable camera detection event. Identity is
// (SiteID, VRM, Timestamp).
type Movement struct {
	ID              string
	SiteID          string
	VRM             string
	Timestamp       time.Time
	CameraID        string
	Direction       Direction
	RawPayload      map[string]interface{}
	Images          []Image
	Confidence      *float64
	RequiresReview  bool
	Discarded       bool
	CreatedAt       time.Time
}

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionProvisional SessionStatus = "PROVISIONAL"
	SessionCompleted   SessionStatus = "COMPLETED"
	SessionExpired     SessionStatus = "EXPIRED"
)

// Session is one (site, plate, entry) parking session.
type Session struct {
	ID              string
	SiteID          string
	VRM             string
	StartTime       time.Time
	EndTime         *time.Time
	DurationMinutes *int64
	EntryMovementID string
	ExitMovementID  *string
	Status          SessionStatus
}

// IsOpen reports whether the session has no recorded exit yet.
func (s Session) IsOpen() bool { return s.EndTime == nil }

// PermitType is the kind of authorization a Permit grants.
type PermitType string

const (
	PermitWhitelist   PermitType = "WHITELIST"
	PermitResident    PermitType = "RESIDENT"
	PermitStaff       PermitType = "STAFF"
	PermitContractor  PermitType = "CONTRACTOR"
	PermitQRWhitelist PermitType = "QRWHITELIST"
)

// Permit authorizes a VRM at a site (SiteID == "" means global) for a time
// range.
type Permit struct {
	ID        string
	VRM       string
	SiteID    string // empty string = global
	Type      PermitType
	Active    bool
	StartDate time.Time
	EndDate   *time.Time // nil = indefinite
	Source    string
	Metadata  map[string]interface{}
}

// IsGlobal reports whether the permit applies to every site.
func (p Permit) IsGlobal() bool { return p.SiteID == "" }

// AppliesAt implements spec §3's permit-applicability rule: active,
// startDate <= t, (endDate == nil || endDate > t), and site-scoped or
// global.
func (p Permit) AppliesAt(site string, t time.Time) bool {
	if !p.Active {
		return false
	}
	if t.Before(p.StartDate) {
		return false
	}
	if p.EndDate != nil && !p.EndDate.After(t) {
		return false
	}
	if !p.IsGlobal() && p.SiteID != site {
		return false
	}
	return true
}

// Payment is immutable once ingested; duplicates are suppressed by
// (ExternalReference, Source).
type Payment struct {
	ID                string
	VRM               string
	SiteID            string
	Amount            float64
	StartTime         time.Time
	ExpiryTime        time.Time
	Source            string
	ExternalReference string
}

// Outcome is the compliance verdict produced by the rule engine.
type Outcome string

const (
	OutcomeCompliant            Outcome = "COMPLIANT"
	OutcomeEnforcementCandidate Outcome = "ENFORCEMENT_CANDIDATE"
	OutcomeRequiresReview       Outcome = "REQUIRES_REVIEW"
)

// DecisionStatus tracks whether a Decision is still automatically mutable.
type DecisionStatus string

const (
	DecisionNew          DecisionStatus = "NEW"
	DecisionCandidate    DecisionStatus = "CANDIDATE"
	DecisionApproved     DecisionStatus = "APPROVED"
	DecisionDeclined     DecisionStatus = "DECLINED"
	DecisionAutoResolved DecisionStatus = "AUTO_RESOLVED"
	DecisionExported     DecisionStatus = "EXPORTED"
)

// Mutable reports whether an automatic writer may still update this status.
// This is the single guard every writer consults (design notes §9).
func (s DecisionStatus) Mutable() bool {
	return s == DecisionNew || s == DecisionCandidate
}

// Decision is the single current compliance verdict for a Session.
type Decision struct {
	ID          string
	SessionID   string
	Outcome     Outcome
	RuleApplied string
	Rationale   string
	Status      DecisionStatus
	Params      map[string]interface{}
	UpdatedAt   time.Time
}

// ValidationStatus is the plate-format classification from the Plate
// Validator (C1).
type ValidationStatus string

const (
	ValidationUKValid           ValidationStatus = "UK_VALID"
	ValidationInternationalValid ValidationStatus = "INTERNATIONAL_VALID"
	ValidationInvalid           ValidationStatus = "INVALID"
)

// ReviewStatus is the operator-driven lifecycle of a PlateReview.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "PENDING"
	ReviewApproved  ReviewStatus = "APPROVED"
	ReviewCorrected ReviewStatus = "CORRECTED"
	ReviewDiscarded ReviewStatus = "DISCARDED"
)

// PlateReview is the human-review record for one suspicious Movement.
type PlateReview struct {
	ID               string
	MovementID       string
	OriginalVRM      string
	NormalizedVRM    string
	SiteID           string
	Timestamp        time.Time
	SuspicionReasons []string
	ValidationStatus ValidationStatus
	ReviewStatus     ReviewStatus
	CorrectedVRM     *string
	Images           []Image
	DiscardReason    string
}

// EnforcementSuspension is a per-site time-bounded enforcement disablement.
type EnforcementSuspension struct {
	ID        string
	SiteID    string
	StartDate time.Time
	EndDate   *time.Time // nil = open-ended
	Reason    string
	CreatedBy string
	Active    bool
}

// AppliesAt implements spec §3's suspension-applicability rule.
func (e EnforcementSuspension) AppliesAt(t time.Time) bool {
	if !e.Active {
		return false
	}
	if t.Before(e.StartDate) {
		return false
	}
	if e.EndDate != nil && t.After(*e.EndDate) {
		return false
	}
	return true
}
