package core

import (
	"context"
	"crypto/ed25519"

	"github.com/labstack/echo/v4"
)

// QuestionCache is the narrow surface x/question needs from
// x/searchcache: evict any similarity-search snapshot mentioning a
// question whenever that question's store row changes.
type QuestionCache interface {
	InvalidateForQuestion(questionID string)
}

// SigningService validates inbound SignedEnvelopes against a user's
// registered public key and produces server-signed receipts for
// outbound responses.
type SigningService interface {
	VerifyEnvelope(ctx context.Context, envelope SignedEnvelope, publicKey ed25519.PublicKey) error
	Receipt(ctx context.Context, message []byte) (ServerReceipt, error)
	ServerPublicKey() ed25519.PublicKey
}

// BoardService is the append-only bulletin board: every accepted
// command becomes a leaf, leaves are periodically folded into branches,
// and branches are periodically committed to a published root.
type BoardService interface {
	Append(ctx context.Context, payload, signature string) (BulletinBoardLeaf, error)
	Fold(ctx context.Context) (*BulletinBoardBranch, error)
	Publish(ctx context.Context) (*PublishedRoot, error)
	LatestRoot(ctx context.Context) (*PublishedRoot, error)
	Path(ctx context.Context, leafHash string) ([]string, error)
	// ParentlessUnpublished returns the frontier of top-level nodes not
	// yet covered by any PublishedRoot.
	ParentlessUnpublished(ctx context.Context) ([]string, error)
	// Lookup resolves a hash to whichever kind of node holds it, or nil
	// if the hash is unknown.
	Lookup(ctx context.Context, hash string) (*BoardNode, error)
	// Redact overwrites each named leaf's payload with a sentinel in
	// place, preserving hash/parent/signature.
	Redact(ctx context.Context, leafHashes []string) error
}

// IdentityService owns the user registry: registration, profile edits,
// badge issuance and the electorate join table.
type IdentityService interface {
	Register(ctx context.Context, cmd NewRegistrationCommand, publicKey string) (User, error)
	Edit(ctx context.Context, uid string, cmd EditUserCommand) (User, error)
	Get(ctx context.Context, uid string) (User, error)
	GetUserList(ctx context.Context) ([]User, error)
	SearchUser(ctx context.Context, q string, wantBadges []BadgeKind) ([]User, error)
	GrantBadge(ctx context.Context, userID uint, kind BadgeKind, what string) (Badge, error)
	RevokeBadge(ctx context.Context, userID uint, kind BadgeKind, what string) error
	HasBadge(ctx context.Context, userID uint, kind BadgeKind, what string) (bool, error)
	SetBlockStatus(ctx context.Context, uid string, blocked bool) error
	// SetVerifiedEmail stamps the user's verified-email and
	// verification-timestamp fields once an email-proof succeeds for
	// AccountValidation.
	SetVerifiedEmail(ctx context.Context, userID uint, email string) error
	// HasVerifiedEmail backs the require_validated_email config gate.
	HasVerifiedEmail(ctx context.Context, userID uint) (bool, error)
}

// EmailProofService runs the request/validate code flow that backs
// account validation and MP/organisation badge issuance.
type EmailProofService interface {
	Request(ctx context.Context, userID uint, cmd RequestEmailValidationCommand) (PendingEmailProof, error)
	Validate(ctx context.Context, cmd EmailProofCommand) (ServerReceipt, error)

	// PutOnDoNotEmailList / TakeOffDoNotEmailList are admin operations
	// that add or remove an address from the addresses the server must
	// never send to.
	PutOnDoNotEmailList(ctx context.Context, email string) error
	TakeOffDoNotEmailList(ctx context.Context, email string) error
	GetDoNotEmailList(ctx context.Context) ([]DoNotEmail, error)

	// GetTimesSent reports the current rate-limit counters for a
	// timescale, one row per email address with a counter for that
	// timescale, including rows whose window has already ended. ResetTimesSent zeroes every counter for a
	// timescale; TakeOffTimesSentList drops an address's rate-limit
	// history entirely, across every timescale.
	GetTimesSent(ctx context.Context, ts Timescale) ([]EmailRateLimitHistory, error)
	ResetTimesSent(ctx context.Context, ts Timescale) error
	TakeOffTimesSentList(ctx context.Context, email string) error
}

// QuestionService owns questions, answers, votes and reports.
type QuestionService interface {
	Create(ctx context.Context, userID uint, cmd NewQuestionCommand) (Question, error)
	Edit(ctx context.Context, userID uint, cmd EditQuestionCommand) (Question, error)
	Get(ctx context.Context, questionID string) (Question, error)
	Answer(ctx context.Context, userID uint, cmd NewAnswerCommand) (Answer, error)
	Vote(ctx context.Context, userID uint, cmd VoteCommand) error
	Report(ctx context.Context, userID uint, cmd ReportCommand) error
	// GetHistory returns the ordered sequence of bulletin-board leaves
	// that touch a question, most recent first; censored entries appear
	// as sentinels rather than being removed.
	GetHistory(ctx context.Context, questionID string) ([]HistoryEntry, error)
	// List returns every question, most recently created first.
	List(ctx context.Context) ([]Question, error)
	// ListByCreator returns every question a given user asked.
	ListByCreator(ctx context.Context, uid string) ([]Question, error)
	// ListFollowups returns every question that names questionID as
	// its IsFollowupTo parent.
	ListFollowups(ctx context.Context, questionID string) ([]Question, error)
}

// CensorshipService drives the censorship status state machine.
type CensorshipService interface {
	Flag(ctx context.Context, questionID string, answerVersion *string) error
	MarkStructureChanged(ctx context.Context, questionID string) error
	Censor(ctx context.Context, cmd CensorCommand) error
	// GetReportedQuestions lists every question with at least one report
	// on file; GetReasonsReported lists the reports filed against one.
	GetReportedQuestions(ctx context.Context) ([]string, error)
	GetReasonsReported(ctx context.Context, questionID string) ([]ReportedReason, error)
}

// SimilarityService ranks and paginates questions against a text +
// metadata query.
type SimilarityService interface {
	Search(ctx context.Context, cmd SimilarQuestionsCommand) (PageResult, error)
}

// DispatchService is the single entry point every wire command passes
// through: signature verification and routing to the owning service.
// SignedAt is not checked, so replayed or stale envelopes are not
// rejected here.
type DispatchService interface {
	IdentifyUser(next echo.HandlerFunc) echo.HandlerFunc
	Handle(ctx context.Context, kind string, envelope SignedEnvelope) (any, error)
}

// SchemaService reports and advances the persisted schema version so
// migrations can run exactly once.
type SchemaService interface {
	Current(ctx context.Context) (uint, error)
	Advance(ctx context.Context, to uint) error
}
