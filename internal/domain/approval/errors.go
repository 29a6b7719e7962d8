package approval

import "errors"

var (
	// ErrReviewerNotInChain is returned when the voter has no slot in the claim's chain
	ErrReviewerNotInChain = errors.New("reviewer not in approval chain")

	// ErrOutOfSequence is returned when an earlier reviewer has not voted yet
	ErrOutOfSequence = errors.New("vote out of sequence")

	// ErrClaimAlreadyTerminal is returned for any mutation of an approved or rejected claim
	ErrClaimAlreadyTerminal = errors.New("claim already terminal")

	// ErrInvalidRuleConfiguration covers out-of-range percentages, unknown
	// designated approvers and malformed chains
	ErrInvalidRuleConfiguration = errors.New("invalid rule configuration")

	// ErrAlreadyVoted is returned when the reviewer's vote is no longer undecided
	ErrAlreadyVoted = errors.New("reviewer already voted")

	// ErrInvalidDecision is returned when a vote is neither approve nor reject
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrUnknownStatus is returned for a claim whose status is not a claim state
	ErrUnknownStatus = errors.New("unknown claim status")
)
