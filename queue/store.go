/*
store.go - Persistence interfaces for doctors and tokens

PURPOSE:
  Defines the interface between the queue engine and its storage
  collaborators. The engine never talks SQL; implementations live in
  queue/store (memory) and store/sqlite (durable).

KEY INTERFACES:
  DoctorRegistry: Read-only doctor lookup consumed by admission
  DoctorStore:    Registry plus the simple CRUD the API surface needs
  TokenStore:     Token persistence with a conditional status update

CONDITIONAL STATUS UPDATE:
  UpdateStatus is compare-and-set on the token's current status. This is
  what makes "cancellation releases the ledger exactly once" hold under
  concurrent transition requests: only the caller whose expected status
  matched performs the follow-up release.

IMPLEMENTATIONS:
  - queue/store/memory.go: In-memory for testing/dev
  - store/sqlite/sqlite.go: Durable SQLite

SEE ALSO:
  - lifecycle.go: The only caller of UpdateStatus
  - admission.go: The only caller of SaveToken
*/
package queue

import "context"

// =============================================================================
// DOCTOR REGISTRY - Consumed collaborator
// =============================================================================

// DoctorRegistry resolves doctor profiles. The queue engine only reads.
type DoctorRegistry interface {
	// GetDoctor returns the doctor or ErrDoctorNotFound.
	GetDoctor(ctx context.Context, id DoctorID) (*Doctor, error)
}

// DoctorStore extends the registry with the CRUD the API layer exposes.
type DoctorStore interface {
	DoctorRegistry

	SaveDoctor(ctx context.Context, d Doctor) error
	ListDoctors(ctx context.Context) ([]Doctor, error)
}

// =============================================================================
// TOKEN STORE - Token persistence
// =============================================================================

// TokenStore persists tokens. Tokens are never deleted; terminal tokens
// remain as history.
type TokenStore interface {
	// SaveToken persists a newly admitted token.
	SaveToken(ctx context.Context, t Token) error

	// GetToken returns the token or ErrTokenNotFound.
	GetToken(ctx context.Context, id TokenID) (*Token, error)

	// TokensByDoctorAndDay returns every token admitted for the doctor on
	// the given day, in arrival order.
	TokensByDoctorAndDay(ctx context.Context, doctorID DoctorID, day Day) ([]Token, error)

	// UpdateStatus atomically moves the token from `from` to `to` and
	// returns the updated token. Returns ErrTokenNotFound if the token is
	// absent, ErrConcurrentModification if its current status is not `from`.
	UpdateStatus(ctx context.Context, id TokenID, from, to Status) (*Token, error)

	// CountAdmitted returns the number of tokens admitted on the given day
	// across all doctors.
	//
	// Deprecated: numbering must come from TokenSequencer, never from a row
	// count - counting races under concurrent admissions. Retained only as
	// a fallback read path for reporting.
	CountAdmitted(ctx context.Context, day Day) (int, error)
}
