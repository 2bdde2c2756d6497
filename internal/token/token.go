// Package token mints and redeems single-use action tokens.
//
// A raw token is 32 random bytes, base64url encoded, and only ever leaves
// the process inside an outbound link. The store keeps a BLAKE3 digest of
// it, so a leaked database cannot be replayed as links.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/zeebo/blake3"

	"github.com/roach88/dinnermatch/internal/clock"
	"github.com/roach88/dinnermatch/internal/domain"
)

// digestDomain separates action-token digests from any other BLAKE3 use.
const digestDomain = "dinnermatch/action-token/v1\x00"

const rawBytes = 32

// TTLs are the lifetimes of each purpose.
type TTLs struct {
	HostResponse      time.Duration
	AttendanceConfirm time.Duration
	NoShowReport      time.Duration
}

// DefaultTTLs: a week to answer a request, a day to confirm attendance,
// ten days to report no-shows after the dinner.
func DefaultTTLs() TTLs {
	return TTLs{
		HostResponse:      7 * 24 * time.Hour,
		AttendanceConfirm: 24 * time.Hour,
		NoShowReport:      10 * 24 * time.Hour,
	}
}

// For returns the lifetime of a purpose.
func (t TTLs) For(p domain.Purpose) time.Duration {
	switch p {
	case domain.PurposeHostResponse:
		return t.HostResponse
	case domain.PurposeAttendanceConfirm:
		return t.AttendanceConfirm
	case domain.PurposeNoShowReport:
		return t.NoShowReport
	}
	return 0
}

// Repository persists token records. The store's transaction implements it.
type Repository interface {
	InsertToken(ctx context.Context, t domain.ActionToken) error
	GetToken(ctx context.Context, digest string) (domain.ActionToken, error)

	// ConsumeToken marks an unconsumed token used and reports whether this
	// call did so. A false return means someone else consumed it first.
	ConsumeToken(ctx context.Context, digest string, at time.Time, outcome domain.Outcome) (bool, error)
}

// Service issues and redeems tokens.
type Service struct {
	clock  clock.Clock
	ttls   TTLs
	random io.Reader
}

// Option configures a Service.
type Option func(*Service)

// WithRandom replaces the entropy source. Tests only.
func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

// NewService creates a token service.
func NewService(c clock.Clock, ttls TTLs, opts ...Option) *Service {
	s := &Service{clock: c, ttls: ttls, random: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subject is what a token addresses: a match, or a host for no-show reports.
type Subject struct {
	MatchID string
	HostID  string
}

// Issue mints a token for purpose and stores its digest. The raw value is
// returned for embedding in a link and is not recoverable afterwards.
func (s *Service) Issue(ctx context.Context, repo Repository, purpose domain.Purpose, subj Subject) (string, domain.ActionToken, error) {
	if !purpose.Valid() {
		return "", domain.ActionToken{}, domain.Validationf("unknown token purpose %q", purpose)
	}
	if purpose.HostScoped() && subj.HostID == "" {
		return "", domain.ActionToken{}, domain.Validationf("%s token needs a host", purpose)
	}
	if !purpose.HostScoped() && subj.MatchID == "" {
		return "", domain.ActionToken{}, domain.Validationf("%s token needs a match", purpose)
	}

	buf := make([]byte, rawBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", domain.ActionToken{}, fmt.Errorf("issue token: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)

	now := s.clock.Now()
	rec := domain.ActionToken{
		Digest:    Digest(raw),
		Purpose:   purpose,
		MatchID:   subj.MatchID,
		HostID:    subj.HostID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttls.For(purpose)),
	}
	if err := repo.InsertToken(ctx, rec); err != nil {
		return "", domain.ActionToken{}, fmt.Errorf("issue token: %w", err)
	}
	return raw, rec, nil
}

// Redemption is a token found valid for its purpose.
type Redemption struct {
	Token domain.ActionToken

	// Replay is set when the token was already consumed. Token.Outcome
	// then holds the result to replay.
	Replay bool
}

// Redeem looks up raw and checks it in the order existence, purpose,
// consumption, expiry. A consumed token is a replay, never an error, even
// after it expires. On expiry the Redemption still carries the token so
// the caller can record the lapse before returning the error.
func (s *Service) Redeem(ctx context.Context, repo Repository, raw string, purpose domain.Purpose) (Redemption, error) {
	if raw == "" {
		return Redemption{}, domain.InvalidLink()
	}
	tok, err := repo.GetToken(ctx, Digest(raw))
	if err != nil {
		if domain.IsNotFound(err) {
			return Redemption{}, domain.InvalidLink()
		}
		return Redemption{}, fmt.Errorf("redeem token: %w", err)
	}
	if tok.Purpose != purpose {
		return Redemption{}, domain.Validationf("this link cannot be used to %s", verb(purpose))
	}
	if tok.Consumed() {
		return Redemption{Token: tok, Replay: true}, nil
	}
	if tok.Expired(s.clock.Now()) {
		return Redemption{Token: tok}, domain.TokenExpired()
	}
	return Redemption{Token: tok}, nil
}

// Consume records the outcome on a redeemed token. It returns false if a
// concurrent caller consumed the token first, in which case nothing was
// written and the caller should re-read and replay.
func (s *Service) Consume(ctx context.Context, repo Repository, tok domain.ActionToken, outcome domain.Outcome) (bool, error) {
	ok, err := repo.ConsumeToken(ctx, tok.Digest, s.clock.Now(), outcome)
	if err != nil {
		return false, fmt.Errorf("consume token: %w", err)
	}
	return ok, nil
}

// Digest is the at-rest identifier of a raw token.
func Digest(raw string) string {
	sum := blake3.Sum256([]byte(digestDomain + raw))
	return hex.EncodeToString(sum[:])
}

func verb(p domain.Purpose) string {
	switch p {
	case domain.PurposeHostResponse:
		return "respond to a request"
	case domain.PurposeAttendanceConfirm:
		return "confirm attendance"
	case domain.PurposeNoShowReport:
		return "report no-shows"
	}
	return string(p)
}
