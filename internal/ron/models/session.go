package models

import (
	"time"

	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
)

// SessionStatus is the lifecycle state of a remote notarization session.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// RonSession is a scheduled video meeting between the client and certifier
// for one document.
//
// Invariants:
//   - StartedAt is set exactly once, on the scheduled → active transition
//   - EndedAt is set exactly once, on the active → completed transition
//   - RoomName is derived from the session ID and never changes
//   - CertifyFailed marks a completed session whose inline document
//     certification failed; the session itself stays completed
type RonSession struct {
	ID            id.SessionID  `json:"id"`
	DocumentID    id.DocumentID `json:"document_id"`
	ClientID      id.UserID     `json:"client_id"`
	CertifierID   id.UserID     `json:"certifier_id"`
	Status        SessionStatus `json:"status"`
	RoomName      string        `json:"room_name"`
	ScheduledFor  time.Time     `json:"scheduled_for"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	EndedAt       *time.Time    `json:"ended_at,omitempty"`
	RecordingRef  string        `json:"recording_ref,omitempty"`
	CertifyFailed bool          `json:"certify_failed"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func NewRonSession(sessionID id.SessionID, documentID id.DocumentID, clientID, certifierID id.UserID, roomName string, scheduledFor, now time.Time) (*RonSession, error) {
	if documentID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session requires a document")
	}
	if clientID.IsZero() || certifierID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session requires client and certifier")
	}
	if roomName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session requires a room name")
	}
	if scheduledFor.IsZero() {
		scheduledFor = now
	}
	return &RonSession{
		ID:           sessionID,
		DocumentID:   documentID,
		ClientID:     clientID,
		CertifierID:  certifierID,
		Status:       SessionScheduled,
		RoomName:     roomName,
		ScheduledFor: scheduledFor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsParticipant reports whether userID belongs in the session room.
func (s *RonSession) IsParticipant(userID id.UserID) bool {
	return s.ClientID == userID || s.CertifierID == userID
}

// CanJoin checks whether a join credential may be issued.
func (s *RonSession) CanJoin() error {
	switch s.Status {
	case SessionScheduled, SessionActive:
		return nil
	case SessionCompleted:
		return dErrors.New(dErrors.CodeInvariantViolation, "session has already completed")
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "session was cancelled")
	}
}

// ApplyActivation records the first join: the session becomes active and
// StartedAt is pinned. Later joins see an active session and leave
// StartedAt untouched.
func (s *RonSession) ApplyActivation(now time.Time) {
	if s.Status != SessionScheduled {
		return
	}
	s.Status = SessionActive
	s.StartedAt = &now
	s.UpdatedAt = now
}

// CanComplete checks the active → completed transition.
func (s *RonSession) CanComplete() error {
	switch s.Status {
	case SessionActive:
		return nil
	case SessionCompleted:
		return dErrors.New(dErrors.CodeConflict, "session already completed")
	case SessionScheduled:
		return dErrors.New(dErrors.CodeInvariantViolation, "session has not started")
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "session was cancelled")
	}
}

// ApplyCompletion ends the session, keeping the recording reference when the
// certifier supplied one.
func (s *RonSession) ApplyCompletion(recordingRef string, now time.Time) {
	s.Status = SessionCompleted
	s.EndedAt = &now
	s.RecordingRef = recordingRef
	s.UpdatedAt = now
}

// ApplyCertifyFailure flags a completed session whose document could not be
// certified.
func (s *RonSession) ApplyCertifyFailure(now time.Time) {
	s.CertifyFailed = true
	s.UpdatedAt = now
}

// CanCancel checks whether the session may still be called off.
func (s *RonSession) CanCancel() error {
	switch s.Status {
	case SessionScheduled, SessionActive:
		return nil
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "session already ended")
	}
}

// ApplyCancellation calls the session off.
func (s *RonSession) ApplyCancellation(now time.Time) {
	s.Status = SessionCancelled
	s.UpdatedAt = now
}

// Stale reports whether the reaper should cancel the session: scheduled
// sessions nobody joined within scheduledGrace, or active sessions running
// longer than activeGrace.
func (s *RonSession) Stale(now time.Time, scheduledGrace, activeGrace time.Duration) bool {
	switch s.Status {
	case SessionScheduled:
		return now.Sub(s.ScheduledFor) > scheduledGrace
	case SessionActive:
		return s.StartedAt != nil && now.Sub(*s.StartedAt) > activeGrace
	default:
		return false
	}
}
