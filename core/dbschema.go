package core

import (
	"time"

	"github.com/lib/pq"
)

// SchemaVersion is the single-row marker read by every migration run.
type SchemaVersion struct {
	ID      uint `json:"id" gorm:"primaryKey;autoIncrement"`
	Version uint `json:"version" gorm:"not null"`
}

// User is a registered citizen, MP office, committee, or organisation
// account. It is never destroyed, only soft-managed via Blocked.
type User struct {
	ID          uint             `json:"id" gorm:"primaryKey;autoIncrement"`
	UID         string           `json:"uid" gorm:"type:varchar(30);not null"`
	UIDUpper    string           `json:"-" gorm:"type:varchar(30);uniqueIndex:idx_uid_upper;not null"`
	DisplayName string           `json:"displayName" gorm:"type:text;not null"`
	State       *string          `json:"state,omitempty" gorm:"type:varchar(8)"`
	PublicKey   string           `json:"publicKey" gorm:"type:text;not null"` // base64 raw Ed25519
	Email       *string          `json:"-" gorm:"type:text"`
	EmailAt     *time.Time       `json:"-"`
	Blocked     bool             `json:"blocked" gorm:"not null;default:false"`
	Electorates []UserElectorate `json:"electorates,omitempty" gorm:"foreignKey:UserID"`
	Badges      []Badge          `json:"badges,omitempty" gorm:"foreignKey:UserID"`
	CDate       time.Time        `json:"cdate" gorm:"->;<-:create;autoCreateTime"`
	MDate       time.Time        `json:"mdate" gorm:"autoUpdateTime"`
}

// Electorate is one canonical (chamber, name) pair. Users attach to
// many via UserElectorate.
type Electorate struct {
	ID             uint    `json:"id" gorm:"primaryKey;autoIncrement"`
	Chamber        Chamber `json:"chamber" gorm:"type:varchar(48);uniqueIndex:idx_electorate_pair;not null"`
	ElectorateName string  `json:"electorateName" gorm:"type:text;uniqueIndex:idx_electorate_pair;not null"`
}

// UserElectorate is the join relation, replace-all on edit_user.
type UserElectorate struct {
	UserID       uint `json:"userId" gorm:"primaryKey"`
	ElectorateID uint `json:"electorateId" gorm:"primaryKey"`
}

// Badge is issued by the email-proof subsystem, except Moderator
// badges, which are granted administratively. Uniqueness is on
// (user, kind, what) so a user may hold badges for several distinct
// MPs/organisations at once (Open Question decision, see DESIGN.md).
type Badge struct {
	ID     uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID uint      `json:"userId" gorm:"uniqueIndex:idx_badge_unique;not null"`
	Kind   BadgeKind `json:"kind" gorm:"type:varchar(16);uniqueIndex:idx_badge_unique;not null"`
	What   string    `json:"what" gorm:"type:text;uniqueIndex:idx_badge_unique;not null"`
	CDate  time.Time `json:"cdate" gorm:"->;<-:create;autoCreateTime"`
}

// Question's ID is a content hash of its defining fields, stable
// across edits; Version is the current bulletin-board leaf hash.
type Question struct {
	ID                          string              `json:"questionId" gorm:"primaryKey;type:char(64)"` // hex sha256
	Version                     string              `json:"version" gorm:"type:char(64);not null"`
	Text                        string              `json:"text" gorm:"type:varchar(280);not null"`
	Background                  *string             `json:"background,omitempty" gorm:"type:text"`
	CreatedBy                   uint                `json:"createdBy" gorm:"not null"`
	IsFollowupTo                *string             `json:"isFollowupTo,omitempty" gorm:"type:char(64)"`
	CanOthersSetWhoShouldAsk    bool                `json:"canOthersSetWhoShouldAsk" gorm:"not null;default:false"`
	CanOthersSetWhoShouldAnswer bool                `json:"canOthersSetWhoShouldAnswer" gorm:"not null;default:false"`
	AnswerAccepted              bool                `json:"answerAccepted" gorm:"not null;default:false"`
	TotalVotes                  int64               `json:"totalVotes" gorm:"not null;default:0"`
	NetVotes                    int64               `json:"netVotes" gorm:"not null;default:0"`
	CensorshipStatus            CensorshipStatus    `json:"censorshipStatus" gorm:"type:varchar(32);not null;default:'NotFlagged'"`
	NumFlags                    int                 `json:"numFlags" gorm:"not null;default:0"`
	People                      []PersonForQuestion `json:"people,omitempty" gorm:"foreignKey:QuestionID"`
	HansardLinks                pq.StringArray      `json:"hansardLinks,omitempty" gorm:"type:text[]"`
	CDate                       time.Time           `json:"cdate" gorm:"->;<-:create;autoCreateTime"`
	MDate                       time.Time           `json:"mdate" gorm:"autoUpdateTime"`
}

// PersonForQuestion names exactly one target for the ask/answer role;
// the store enforces "exactly one populated" at the service layer.
type PersonForQuestion struct {
	ID           uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	QuestionID   string     `json:"questionId" gorm:"type:char(64);index;not null"`
	Role         PersonRole `json:"role" gorm:"type:varchar(8);not null"`
	User         *uint      `json:"user,omitempty"`
	MP           *string    `json:"mp,omitempty" gorm:"type:text"`
	Organisation *string    `json:"organisation,omitempty" gorm:"type:text"`
	Committee    *string    `json:"committee,omitempty" gorm:"type:text"`
	Minister     *string    `json:"minister,omitempty" gorm:"type:text"`
}

// Answer belongs to a question; Version is the hash of its creation
// leaf and is the key censorship acts on.
type Answer struct {
	Version          string           `json:"version" gorm:"primaryKey;type:char(64)"`
	QuestionID       string           `json:"questionId" gorm:"type:char(64);index;not null"`
	AuthorID         uint             `json:"authorId" gorm:"not null"`
	MP               string           `json:"mp" gorm:"type:text;not null"` // the "hat" being worn
	Text             string           `json:"text" gorm:"type:text;not null"`
	CensorshipStatus CensorshipStatus `json:"censorshipStatus" gorm:"type:varchar(32);not null;default:'NotFlagged'"`
	CDate            time.Time        `json:"cdate" gorm:"->;<-:create;autoCreateTime"`
}

// Vote ledger enforces at-most-one (user, question) row; the
// question's TotalVotes/NetVotes counters are the authoritative
// aggregate, updated in the same transaction as this row.
type Vote struct {
	QuestionID string `json:"questionId" gorm:"primaryKey;type:char(64)"`
	UserID     uint   `json:"userId" gorm:"primaryKey"`
	Value      int    `json:"value" gorm:"not null"` // +1 or -1
}

// ReportedReason is unique on its full tuple: one user cannot submit
// the same reason twice against the same question/answer.
type ReportedReason struct {
	ID            uint         `json:"id" gorm:"primaryKey;autoIncrement"`
	QuestionID    string       `json:"questionId" gorm:"type:char(64);uniqueIndex:idx_report_unique;not null"`
	Reason        ReportReason `json:"reason" gorm:"type:varchar(48);uniqueIndex:idx_report_unique;not null"`
	AnswerVersion *string      `json:"answerVersion,omitempty" gorm:"type:char(64);uniqueIndex:idx_report_unique"`
	UserID        uint         `json:"userId" gorm:"uniqueIndex:idx_report_unique;not null"`
	CDate         time.Time    `json:"cdate" gorm:"->;<-:create;autoCreateTime"`
}

// EmailRateLimitHistory is periodically truncated by Timescale.
type EmailRateLimitHistory struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Email     string    `json:"email" gorm:"type:text;uniqueIndex:idx_rate_email_scale;not null"`
	Timescale Timescale `json:"timescale" gorm:"type:varchar(8);uniqueIndex:idx_rate_email_scale;not null"`
	Count     int       `json:"count" gorm:"not null;default:0"`
	WindowEnd time.Time `json:"windowEnd" gorm:"not null"`
}

// DoNotEmail is the set of addresses the server must never send to.
type DoNotEmail struct {
	Email string    `json:"email" gorm:"primaryKey;type:text"`
	CDate time.Time `json:"cdate" gorm:"->;<-:create;autoCreateTime"`
}

// PendingEmailProof is the single-use code record created by
// request_email_validation and consumed (or replayed) by email_proof.
type PendingEmailProof struct {
	ID          string    `json:"id" gorm:"primaryKey;type:char(64)"` // deterministic hash, doubles as "email id"
	UserID      uint      `json:"userId" gorm:"not null;index"`
	Email       string    `json:"email" gorm:"type:text;not null"`
	Why         string    `json:"why" gorm:"type:json;not null"` // JSON-encoded EmailProofPurpose
	Code        string    `json:"-" gorm:"type:char(6);not null"`
	Consumed    bool      `json:"consumed" gorm:"not null;default:false"`
	ReceiptJSON *string   `json:"-" gorm:"type:json"` // cached ServerReceipt, set once Consumed
	SentOK      bool      `json:"sentOk" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"createdAt" gorm:"->;<-:create;autoCreateTime"`
	ExpiresAt   time.Time `json:"expiresAt" gorm:"not null"`
}

// BulletinBoardLeaf is a signed, content-addressed payload. Leaves
// without a parent branch are the "pending" set. Redacted leaves keep
// their Hash/ParentHash/Signature so any published root that already
// covers them stays structurally valid; only Payload is overwritten,
// with a sentinel that erases content but keeps the leaf's position.
type BulletinBoardLeaf struct {
	Hash       string    `json:"hash" gorm:"primaryKey;type:char(64)"`
	Payload    string    `json:"payload" gorm:"type:json;not null"`
	Signature  string    `json:"signature" gorm:"type:text;not null"`
	ParentHash *string   `json:"parentHash,omitempty" gorm:"type:char(64);index"`
	Redacted   bool      `json:"redacted" gorm:"not null;default:false"`
	CDate      time.Time `json:"cdate" gorm:"->;<-:create;autoCreateTime"`
}

// BulletinBoardBranch combines two child hashes (leaf or branch) into
// one node; this is how the Merkle structure is built up incrementally
// between publications.
type BulletinBoardBranch struct {
	Hash       string    `json:"hash" gorm:"primaryKey;type:char(64)"`
	LHS        string    `json:"lhs" gorm:"type:char(64);not null"`
	RHS        string    `json:"rhs" gorm:"type:char(64);not null"`
	ParentHash *string   `json:"parentHash,omitempty" gorm:"type:char(64);index"`
	CDate      time.Time `json:"cdate" gorm:"->;<-:create;autoCreateTime"`
}

// QuestionHistoryEntry links a question to every bulletin-board leaf
// that touches it -- its creation, each accepted edit and each
// answer -- in the
// order they were appended, so get_question_history can be served
// without walking the whole board.
type QuestionHistoryEntry struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	QuestionID string    `json:"questionId" gorm:"type:char(64);index;not null"`
	LeafHash   string    `json:"leafHash" gorm:"type:char(64);not null"`
	CDate      time.Time `json:"cdate" gorm:"->;<-:create;autoCreateTime"`
}

// PublishedRoot is a signed commitment to a prefix of board history.
// Root chain is monotonic: RootHash always covers every leaf covered
// by PreviousRoot.
type PublishedRoot struct {
	RootHash     string    `json:"rootHash" gorm:"primaryKey;type:char(64)"`
	PreviousRoot *string   `json:"previousRoot,omitempty" gorm:"type:char(64)"`
	Signature    string    `json:"signature" gorm:"type:text;not null"`
	PublishedAt  time.Time `json:"publishedAt" gorm:"->;<-:create;autoCreateTime"`
}
