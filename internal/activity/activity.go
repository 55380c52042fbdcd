// Package activity defines the normalized contribution types shared by the
// fetch, dedup and coordination layers.
package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of a unit of repository activity
type Kind string

const (
	// KindCommit is a commit pushed to the repository
	KindCommit Kind = "commit"

	// KindIssue is an issue opened in the repository
	KindIssue Kind = "issue"

	// KindPullRequest is a pull request opened against the repository
	KindPullRequest Kind = "pull_request"

	// KindReview is a review submitted on a pull request
	KindReview Kind = "review"
)

// Kinds lists every supported activity kind
var Kinds = []Kind{KindCommit, KindIssue, KindPullRequest, KindReview}

var (
	// ErrUnknownKind is returned when an activity kind is not supported
	ErrUnknownKind = errors.New("unknown activity kind")

	// ErrEmptyExternalID is returned when an event carries no provider identifier
	ErrEmptyExternalID = errors.New("external id is required")
)

// ParseKind converts a string into a Kind
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Valid reports whether the kind is one of the supported kinds
func (k Kind) Valid() bool {
	switch k {
	case KindCommit, KindIssue, KindPullRequest, KindReview:
		return true
	default:
		return false
	}
}

// NaturalKey is the identity of an activity record: the activity kind plus
// the provider's immutable identifier for it. Two keys are equal when both
// fields are equal, so NaturalKey is usable as a map key and is the only
// dedup key used across the codebase.
type NaturalKey struct {
	Kind       Kind
	ExternalID string
}

// NewNaturalKey builds a validated NaturalKey
func NewNaturalKey(kind Kind, externalID string) (NaturalKey, error) {
	key := NaturalKey{Kind: kind, ExternalID: strings.TrimSpace(externalID)}
	if err := key.Validate(); err != nil {
		return NaturalKey{}, err
	}
	return key, nil
}

// Validate checks that the key has a supported kind and a non-empty id
func (k NaturalKey) Validate() error {
	if !k.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, k.Kind)
	}
	if k.ExternalID == "" {
		return ErrEmptyExternalID
	}
	return nil
}

// String renders the key as kind:external_id
func (k NaturalKey) String() string {
	return string(k.Kind) + ":" + k.ExternalID
}

// RawEvent is a normalized activity event as produced by a provider fetch
type RawEvent struct {
	Kind          Kind
	ExternalID    string
	ActorUsername string
	SummaryText   string
	Details       json.RawMessage
}

// Key returns the natural key of the event
func (e RawEvent) Key() NaturalKey {
	return NaturalKey{Kind: e.Kind, ExternalID: e.ExternalID}
}

// Record is a persisted activity record
type Record struct {
	Key           NaturalKey
	RepositoryID  uuid.UUID
	ActorUsername string
	SummaryText   string
	IsSelected    bool
	CreatedAt     time.Time
	Details       json.RawMessage
}
