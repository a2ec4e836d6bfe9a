package core

import "time"

// SignedEnvelope is the three-slot wire shape spec.md §9 pins down:
// {message, user, signature}. `Message` is the raw JSON string the
// user's Ed25519 key signed; dispatch never mutates it before
// verifying, byte-for-byte, so re-serialization can't shift the
// signature out from under a client.
type SignedEnvelope struct {
	Message   string `json:"message"`
	User      string `json:"user"`
	Signature string `json:"signature"`
}

// ServerReceipt is the outbound counterpart: the server signs
// {message, signature} so a client can offline-verify provenance
// against the server's published public key.
type ServerReceipt struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// NewRegistrationCommand is the body of a new_registration message.
type NewRegistrationCommand struct {
	UID         string           `json:"uid"`
	DisplayName string           `json:"displayName"`
	PublicKey   string           `json:"publicKey"`
	State       *string          `json:"state,omitempty"`
	Electorates []ElectoratePair `json:"electorates,omitempty"`
	SignedAt    time.Time        `json:"signedAt"`
}

type ElectoratePair struct {
	Chamber        Chamber `json:"chamber"`
	ElectorateName string  `json:"electorateName"`
}

// EditUserCommand: absent fields (nil pointer) mean "no change";
// present-but-empty means an explicit clear where the target type
// allows it (e.g. State).
type EditUserCommand struct {
	DisplayName *string          `json:"displayName,omitempty"`
	State       *string          `json:"state,omitempty"`
	Electorates []ElectoratePair `json:"electorates,omitempty"` // replace-all when non-nil
	SignedAt    time.Time        `json:"signedAt"`
}

// NewQuestionCommand is the body of a new_question message.
type NewQuestionCommand struct {
	Text                       string     `json:"text"`
	Background                 *string    `json:"background,omitempty"`
	IsFollowupTo               *string    `json:"isFollowupTo,omitempty"`
	CanOthersSetWhoShouldAsk   bool       `json:"canOthersSetWhoShouldAsk"`
	CanOthersSetWhoShouldAnswer bool      `json:"canOthersSetWhoShouldAnswer"`
	AskedOf                    *PersonRef `json:"askedOf,omitempty"`
	SignedAt                   time.Time  `json:"signedAt"`
}

// PersonRef names exactly one target of an ask/answer role.
type PersonRef struct {
	User         *string `json:"user,omitempty"`
	MP           *string `json:"mp,omitempty"`
	Organisation *string `json:"organisation,omitempty"`
	Committee    *string `json:"committee,omitempty"`
	Minister     *string `json:"minister,omitempty"`
}

// EditQuestionCommand carries the optimistic-concurrency precondition
// (QuestionID, Version) plus any subset of the mutable fields.
type EditQuestionCommand struct {
	QuestionID    string     `json:"questionId"`
	Version       string     `json:"version"`
	Background    *string    `json:"background,omitempty"`
	AskedOf       *PersonRef `json:"askedOf,omitempty"`
	AnsweredOf    *PersonRef `json:"answeredOf,omitempty"`
	HansardLinks  []string   `json:"hansardLinks,omitempty"`
	SignedAt      time.Time  `json:"signedAt"`
}

// NewAnswerCommand attaches an answer to a question. MP is the "hat"
// the author is answering under.
type NewAnswerCommand struct {
	QuestionID string    `json:"questionId"`
	MP         string    `json:"mp"`
	Text       string    `json:"text"`
	SignedAt   time.Time `json:"signedAt"`
}

// VoteCommand is +1 or -1 on a question.
type VoteCommand struct {
	QuestionID string    `json:"questionId"`
	Value      int       `json:"value"`
	SignedAt   time.Time `json:"signedAt"`
}

// RequestEmailValidationCommand is the body of request_email_validation.
type RequestEmailValidationCommand struct {
	Name     string             `json:"name"`
	Why      EmailProofPurpose  `json:"why"`
	Email    string             `json:"email"`
	SignedAt time.Time          `json:"signedAt"`
}

// EmailProofCommand is the body of email_proof.
type EmailProofCommand struct {
	EmailID  string    `json:"hash"`
	Code     string    `json:"code"`
	SignedAt time.Time `json:"signedAt"`
}

// ReportCommand covers both report_question and report_answer.
type ReportCommand struct {
	QuestionID    string       `json:"questionId"`
	Reason        ReportReason `json:"reason"`
	AnswerVersion *string      `json:"answerVersion,omitempty"`
	SignedAt      time.Time    `json:"signedAt"`
}

// CensorCommand is the moderator-only censor_question body.
type CensorCommand struct {
	QuestionID string    `json:"questionId"`
	Version    string    `json:"version"`
	NumFlags   int       `json:"numFlags"`
	Reason     *string   `json:"reason,omitempty"` // nil => Allowed, set => Censored
	CensorLogs bool      `json:"censorLogs"`
	JustAnswer []string  `json:"justAnswer"` // answer versions; empty => whole-question mode
	SignedAt   time.Time `json:"signedAt"`
}

// SetBlockStatusCommand is the moderator-only set_block_status body;
// Blocked true blocks the user and false unblocks them.
type SetBlockStatusCommand struct {
	UID      string    `json:"uid"`
	Blocked  bool      `json:"blocked"`
	SignedAt time.Time `json:"signedAt"`
}

// DoNotEmailCommand is the moderator-only body shared by
// put_on_do_not_email_list and take_off_do_not_email_list.
type DoNotEmailCommand struct {
	Email    string    `json:"email"`
	SignedAt time.Time `json:"signedAt"`
}

// ResetTimesSentCommand is the moderator-only reset_times_sent body.
type ResetTimesSentCommand struct {
	Timescale Timescale `json:"timescale"`
	SignedAt  time.Time `json:"signedAt"`
}

// TakeOffTimesSentCommand is the moderator-only
// take_off_times_sent_list body.
type TakeOffTimesSentCommand struct {
	Email    string    `json:"email"`
	SignedAt time.Time `json:"signedAt"`
}

// SimilarQuestionsCommand is the body of similar_questions /
// get_similar_questions.
type SimilarQuestionsCommand struct {
	QuestionText           string     `json:"questionText"`
	MPWhoShouldAsk         *string    `json:"mpWhoShouldAsk,omitempty"`
	EntityWhoShouldAnswer  *PersonRef `json:"entityWhoShouldAnswer,omitempty"`
	Weights                Weights    `json:"weights"`
	Page                   PageRequest `json:"page"`
}

type Weights struct {
	Text                float64 `json:"text"`
	Metadata            float64 `json:"metadata"`
	TotalVotes          float64 `json:"totalVotes"`
	NetVotes            float64 `json:"netVotes"`
	Recentness          float64 `json:"recentness"`
	RecentnessTimescale float64 `json:"recentnessTimescale"` // seconds
}

type PageRequest struct {
	From  int     `json:"from"`
	To    int     `json:"to"`
	Token *string `json:"token,omitempty"`
}

type PageResult struct {
	Questions []ScoredQuestion `json:"questions"`
	Token     string           `json:"token"`
}

type ScoredQuestion struct {
	QuestionID string  `json:"questionId"`
	Score      float64 `json:"score"`
}

// BoardNode is a unified read of a bulletin-board hash, whichever kind
// of node holds it. Exactly one of the leaf fields (Payload/Signature)
// or the branch fields (LHS/RHS) is populated, distinguished by
// IsBranch.
type BoardNode struct {
	Hash       string  `json:"hash"`
	IsBranch   bool    `json:"isBranch"`
	Payload    *string `json:"payload,omitempty"`
	Signature  *string `json:"signature,omitempty"`
	Redacted   bool    `json:"redacted,omitempty"`
	LHS        *string `json:"lhs,omitempty"`
	RHS        *string `json:"rhs,omitempty"`
	ParentHash *string `json:"parentHash,omitempty"`
}

// HistoryEntry is one bulletin-board leaf in a question's ordered
// history. A censored entry keeps its place with Redacted set and its
// Payload replaced by a sentinel.
type HistoryEntry struct {
	LeafHash  string    `json:"leafHash"`
	Payload   string    `json:"payload"`
	Signature string    `json:"signature"`
	Redacted  bool      `json:"redacted"`
	CDate     time.Time `json:"cdate"`
}
