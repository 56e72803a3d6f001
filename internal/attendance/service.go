package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"qrattend/internal/directory"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
	"qrattend/internal/session"
	"qrattend/internal/token"
)

var (
	// ErrWrongTokenKind means a token was presented to the other redemption path.
	ErrWrongTokenKind = errors.New("wrong token kind for this redemption")
	// ErrForeignToken means the redeemer may not use the token, e.g. another
	// teacher's self-attendance token or another institution's class token.
	ErrForeignToken = errors.New("token belongs to another principal")
)

// InvalidTokenError wraps a codec failure (malformed, forged or expired).
type InvalidTokenError struct {
	Reason error
}

func (e *InvalidTokenError) Error() string { return "invalid token: " + e.Reason.Error() }

func (e *InvalidTokenError) Unwrap() error { return e.Reason }

// Publisher receives ledger events. queue.Queue satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Issued is a freshly signed session token.
type Issued struct {
	Token     string       `json:"token"`
	SessionID string       `json:"session_id"`
	Kind      session.Kind `json:"kind"`
	IssuedAt  time.Time    `json:"issued_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// IssueClassRequest describes the class session a token is issued for.
type IssueClassRequest struct {
	IssuerID        string
	InstitutionCode string
	Subject         string
	ClassName       string
	Section         string
	Period          int
}

// Result is the outcome of a successful redemption.
type Result struct {
	Kind          session.Kind `json:"kind"`
	Action        Action       `json:"action,omitempty"`
	AlreadyMarked bool         `json:"already_marked"`
	Record        Record       `json:"record"`
}

// Service issues session tokens and redeems them against the ledger. It is
// the only entry point transport code uses for either.
type Service struct {
	ledger  *Ledger
	codec   *token.Codec
	dir     directory.Directory
	events  Publisher
	metrics *metrics.Metrics
}

// NewService wires the redemption path. events and m may be nil.
func NewService(ledger *Ledger, codec *token.Codec, dir directory.Directory, events Publisher, m *metrics.Metrics) *Service {
	return &Service{ledger: ledger, codec: codec, dir: dir, events: events, metrics: m}
}

// Ledger exposes the ledger's read side for reporting.
func (s *Service) Ledger() *Ledger { return s.ledger }

// IssueClassToken signs a class_session token for an active teacher.
func (s *Service) IssueClassToken(ctx context.Context, req IssueClassRequest, now time.Time) (Issued, error) {
	if _, err := s.dir.Teacher(ctx, req.InstitutionCode, req.IssuerID); err != nil {
		return Issued{}, err
	}
	claim := session.Claim{
		SessionID: uuid.NewString(),
		IssuerID:  req.IssuerID,
		IssuedAt:  now.UTC(),
		Kind:      session.KindClassSession,
		Class: &session.ClassSession{
			Subject:         req.Subject,
			ClassName:       req.ClassName,
			Section:         req.Section,
			Period:          req.Period,
			InstitutionCode: req.InstitutionCode,
		},
	}
	return s.issue(claim)
}

// IssueTeacherSelfToken signs a teacher_self check-in token for an active teacher.
func (s *Service) IssueTeacherSelfToken(ctx context.Context, issuerID, institutionCode string, now time.Time) (Issued, error) {
	if _, err := s.dir.Teacher(ctx, institutionCode, issuerID); err != nil {
		return Issued{}, err
	}
	claim := session.Claim{
		SessionID: uuid.NewString(),
		IssuerID:  issuerID,
		IssuedAt:  now.UTC(),
		Kind:      session.KindTeacherSelf,
		Self:      &session.TeacherSelf{InstitutionCode: institutionCode, Purpose: session.PurposeCheckIn},
	}
	return s.issue(claim)
}

func (s *Service) issue(claim session.Claim) (Issued, error) {
	ttl, err := s.ledger.Policy().TTL(claim.Kind)
	if err != nil {
		return Issued{}, err
	}
	tok, err := s.codec.Issue(claim, ttl)
	if err != nil {
		return Issued{}, fmt.Errorf("issue %s token: %w", claim.Kind, err)
	}
	s.metrics.TokenIssued(string(claim.Kind))
	return Issued{
		Token:     tok,
		SessionID: claim.SessionID,
		Kind:      claim.Kind,
		IssuedAt:  claim.IssuedAt,
		ExpiresAt: claim.IssuedAt.Add(ttl),
	}, nil
}

// RedeemClassToken marks studentID of institutionCode present or late for
// the session in tokenStr. A repeat scan is reported as AlreadyMarked.
func (s *Service) RedeemClassToken(ctx context.Context, tokenStr, institutionCode, studentID string, now time.Time) (res Result, err error) {
	start := time.Now()
	defer func() { s.metrics.Redemption(string(session.KindClassSession), outcome(res, err), time.Since(start)) }()

	claim, err := s.decode(tokenStr, now, session.KindClassSession)
	if err != nil {
		return Result{}, err
	}
	code := claim.Class.InstitutionCode
	if institutionCode != "" && institutionCode != code {
		return Result{}, ErrForeignToken
	}
	if _, err := s.dir.Teacher(ctx, code, claim.IssuerID); err != nil {
		return Result{}, err
	}
	if _, err := s.dir.Student(ctx, code, studentID); err != nil {
		return Result{}, err
	}

	rec, err := s.ledger.RedeemClass(ctx, claim, studentID, now)
	if errors.Is(err, ErrDuplicateSession) {
		return Result{Kind: session.KindClassSession, AlreadyMarked: true, Record: rec}, nil
	}
	if err != nil {
		return Result{}, err
	}
	s.publish(ctx, EventClassMarked, rec)
	return Result{Kind: session.KindClassSession, Record: rec}, nil
}

// RedeemTeacherSelfToken checks teacherID in or out for the day. Only the
// teacher who issued the token may redeem it.
func (s *Service) RedeemTeacherSelfToken(ctx context.Context, tokenStr, institutionCode, teacherID string, now time.Time) (res Result, err error) {
	start := time.Now()
	defer func() { s.metrics.Redemption(string(session.KindTeacherSelf), outcome(res, err), time.Since(start)) }()

	claim, err := s.decode(tokenStr, now, session.KindTeacherSelf)
	if err != nil {
		return Result{}, err
	}
	if teacherID != claim.IssuerID || (institutionCode != "" && institutionCode != claim.Self.InstitutionCode) {
		return Result{}, ErrForeignToken
	}
	if _, err := s.dir.Teacher(ctx, claim.Self.InstitutionCode, teacherID); err != nil {
		return Result{}, err
	}

	rec, action, err := s.ledger.RedeemTeacherSelf(ctx, claim, now)
	if err != nil {
		return Result{}, err
	}
	eventType := EventTeacherCheckIn
	if action == ActionCheckOut {
		eventType = EventTeacherCheckOut
	}
	s.publish(ctx, eventType, rec)
	return Result{Kind: session.KindTeacherSelf, Action: action, Record: rec}, nil
}

func (s *Service) decode(tokenStr string, now time.Time, want session.Kind) (session.Claim, error) {
	claim, err := s.codec.Decode(tokenStr, now)
	if err != nil {
		return session.Claim{}, &InvalidTokenError{Reason: err}
	}
	if claim.Kind != want {
		return session.Claim{}, fmt.Errorf("%w: got %s, want %s", ErrWrongTokenKind, claim.Kind, want)
	}
	return claim, nil
}

// publish is best effort: the record is already committed.
func (s *Service) publish(ctx context.Context, eventType string, rec Record) {
	if s.events == nil {
		return
	}
	msg, err := NewEventMessage(eventType, rec)
	if err == nil {
		err = s.events.Publish(ctx, msg)
	}
	if err != nil {
		log.Warn().Err(err).Str("event", eventType).Str("record_id", rec.ID).Msg("publish attendance event")
	}
}

func outcome(res Result, err error) string {
	var invalid *InvalidTokenError
	switch {
	case err == nil && res.AlreadyMarked:
		return "already_marked"
	case err == nil && res.Action != "":
		return string(res.Action)
	case err == nil:
		return "recorded"
	case errors.As(err, &invalid):
		return "invalid_token"
	case errors.Is(err, ErrWrongTokenKind):
		return "wrong_kind"
	case errors.Is(err, ErrForeignToken):
		return "forbidden"
	case errors.Is(err, directory.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyCompleted):
		return "already_completed"
	default:
		return "error"
	}
}
