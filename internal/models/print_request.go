package models

import "time"

// Classification is the document label produced by the classifier.
type Classification string

const (
	ClassificationOfficial     Classification = "official"
	ClassificationPersonal     Classification = "personal"
	ClassificationConfidential Classification = "confidential"
)

// Valid reports whether the label is one of the known classifications.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationOfficial, ClassificationPersonal, ClassificationConfidential:
		return true
	}
	return false
}

// BlockReason explains why the evaluator refused a print.
type BlockReason string

const (
	BlockReasonPersonal      BlockReason = "personal"
	BlockReasonDailyLimit    BlockReason = "daily_limit"
	BlockReasonCopiesLimit   BlockReason = "copies_limit"
	BlockReasonPagesLimit    BlockReason = "pages_limit"
	BlockReasonDailyQuota    BlockReason = "daily_quota"
	BlockReasonColorDisabled BlockReason = "color_disabled"
)

// PrintStatus is the lifecycle of a PrintRequest.
type PrintStatus string

const (
	PrintStatusPendingClassification PrintStatus = "pending_classification"
	PrintStatusBlocked               PrintStatus = "blocked"
	PrintStatusApproved              PrintStatus = "approved"
	PrintStatusExecuted              PrintStatus = "executed"
	PrintStatusCancelled             PrintStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s PrintStatus) Terminal() bool {
	return s == PrintStatusExecuted || s == PrintStatusCancelled
}

// PrintRequest is one uploaded document moving through classification and policy checks.
type PrintRequest struct {
	ID                  string          `db:"id" json:"id"`
	RequesterEPF        string          `db:"requester_epf" json:"requesterEpf"`
	DocumentKey         string          `db:"document_key" json:"-"`
	FileName            string          `db:"file_name" json:"fileName"`
	ContentType         string          `db:"content_type" json:"contentType"`
	FileHash            string          `db:"file_hash" json:"fileHash"`
	SizeBytes           int64           `db:"size_bytes" json:"sizeBytes"`
	Pages               int             `db:"pages" json:"pages"`
	Copies              int             `db:"copies" json:"copies"`
	Color               bool            `db:"color" json:"color"`
	Classification      *Classification `db:"classification" json:"classification,omitempty"`
	Confidence          float64         `db:"confidence" json:"confidence"`
	DuplicateSimilarity float64         `db:"duplicate_similarity" json:"duplicateSimilarity"`
	Status              PrintStatus     `db:"status" json:"status"`
	BlockReason         *BlockReason    `db:"block_reason" json:"blockReason,omitempty"`
	BlockDetails        *BlockDetails   `db:"block_details" json:"blockDetails,omitempty"`
	EscalationEligible  bool            `db:"escalation_eligible" json:"escalationEligible"`
	Warning             *string         `db:"warning" json:"warning,omitempty"`
	Summary             *string         `db:"summary" json:"summary,omitempty"`
	FailureReason       *string         `db:"failure_reason" json:"failureReason,omitempty"`
	ExecutorJobID       *string         `db:"executor_job_id" json:"executorJobId,omitempty"`
	Exempt              bool            `db:"exempt" json:"exempt"`
	ExecutedAt          *time.Time      `db:"executed_at" json:"executedAt,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updatedAt"`
}

// PrintFilter constrains listing queries.
type PrintFilter struct {
	RequesterEPF string
	Status       PrintStatus
	Limit        int
	Offset       int
}

// PrintOutcome is the evaluation result persisted after classification.
type PrintOutcome struct {
	Classification      Classification
	Confidence          float64
	DuplicateSimilarity float64
	Status              PrintStatus
	BlockReason         *BlockReason
	BlockDetails        *BlockDetails
	EscalationEligible  bool
	Warning             *string
	Summary             *string
}
