package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can map it to a correction message
// without string matching.
type Kind uint8

const (
	KindAuthorization Kind = iota + 1
	KindState
	KindResource
	KindValidation
	KindTiming
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindResource:
		return "resource"
	case KindValidation:
		return "validation"
	case KindTiming:
		return "timing"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the only failure type returned by ledger operations. Two errors
// are equal under errors.Is when their codes match, so sentinels can carry
// a different Field at the call site.
type Error struct {
	Kind  Kind
	Code  string
	Field string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Code)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Code, e.Field)
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// On returns a copy of e naming the offending field.
func (e *Error) On(field string) *Error {
	cp := *e
	cp.Field = field
	return &cp
}

func newError(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

var (
	// Authorization
	ErrNotAuthorized      = newError(KindAuthorization, "NotAuthorized")
	ErrNotAuthor          = newError(KindAuthorization, "NotAuthor")
	ErrNotHolder          = newError(KindAuthorization, "NotHolder")
	ErrAccountNotVerified = newError(KindAuthorization, "AccountNotVerified")

	// State
	ErrNotInitialized   = newError(KindState, "NotInitialized")
	ErrAlreadyExists    = newError(KindState, "AlreadyExists")
	ErrAlreadyFollowing = newError(KindState, "AlreadyFollowing")
	ErrNotFollowing     = newError(KindState, "NotFollowing")
	ErrAlreadyEngaged   = newError(KindState, "AlreadyEngaged")
	ErrAlreadyVoted     = newError(KindState, "AlreadyVoted")
	ErrAlreadyVerified  = newError(KindState, "AlreadyVerified")
	ErrNotApproved      = newError(KindState, "NotApproved")
	ErrAlreadyApplied   = newError(KindState, "AlreadyApplied")
	ErrNotValidated     = newError(KindState, "NotValidated")
	ErrAlreadyClaimed   = newError(KindState, "AlreadyClaimed")
	ErrAlreadyExpired   = newError(KindState, "AlreadyExpired")
	ErrNotExpirable     = newError(KindState, "NotExpirable")
	ErrAlreadyReferred  = newError(KindState, "AlreadyReferred")
	ErrInvalidState     = newError(KindState, "InvalidState")
	ErrVotingClosed     = newError(KindState, "VotingClosed")
	ErrTierDowngrade    = newError(KindState, "TierDowngrade")
	ErrTooManyTags      = newError(KindState, "TooManyTags")
	ErrAlreadyHasTag    = newError(KindState, "AlreadyHasTag")
	ErrNoStake          = newError(KindState, "NoStake")

	// Resource
	ErrInsufficientStake   = newError(KindResource, "InsufficientStake")
	ErrInsufficientBalance = newError(KindResource, "InsufficientBalance")
	ErrExceedsAllocation   = newError(KindResource, "ExceedsAllocation")

	// Validation
	ErrSelfFollow         = newError(KindValidation, "SelfFollow")
	ErrCannotEngageOwn    = newError(KindValidation, "CannotEngageOwn")
	ErrSelfReport         = newError(KindValidation, "SelfReport")
	ErrSelfReferral       = newError(KindValidation, "SelfReferral")
	ErrInvalidArgument    = newError(KindValidation, "InvalidArgument")
	ErrInvalidAmount      = newError(KindValidation, "InvalidAmount")
	ErrMismatchedLengths  = newError(KindValidation, "MismatchedLengths")
	ErrUnknownParameter   = newError(KindValidation, "UnknownParameter")
	ErrParameterRange     = newError(KindValidation, "ParameterOutOfRange")
	ErrInvalidContentHash = newError(KindValidation, "InvalidContentHash")
	ErrInvalidCategory    = newError(KindValidation, "InvalidCategory")
	ErrInvalidRating      = newError(KindValidation, "InvalidRating")

	// Timing
	ErrTimelockActive   = newError(KindTiming, "TimelockActive")
	ErrLockNotExpired   = newError(KindTiming, "LockNotExpired")
	ErrEscrowNotExpired = newError(KindTiming, "EscrowNotExpired")
	ErrVotingOpen       = newError(KindTiming, "VotingOpen")
	ErrHoldExpired      = newError(KindTiming, "HoldExpired")

	// NotFound
	ErrNotFound = newError(KindNotFound, "NotFound")
)

// KindOf reports the kind of a domain error, or 0 when err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}

func IsTimingError(err error) bool {
	return IsKind(err, KindTiming)
}
