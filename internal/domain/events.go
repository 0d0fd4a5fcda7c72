package domain

// EventType names a state change visible to off-chain indexers.
type EventType string

const (
	EventGenesis = EventType("genesis.completed")

	EventReputationInitialized = EventType("reputation.initialized")
	EventReputationUpdated     = EventType("reputation.updated")
	EventReputationVerified    = EventType("reputation.verified")
	EventReportSubmitted       = EventType("reputation.report_submitted")
	EventReportVerified        = EventType("reputation.report_verified")
	EventPenaltyApplied        = EventType("reputation.penalty_applied")
	EventSpecializationAdded   = EventType("reputation.specialization_added")

	EventFollowed         = EventType("social.followed")
	EventUnfollowed       = EventType("social.unfollowed")
	EventInteraction      = EventType("social.interaction")
	EventExtendedGraphSet = EventType("social.extended_graph_set")

	EventRecommendationCreated   = EventType("recommendation.created")
	EventRecommendationEngaged   = EventType("recommendation.engaged")
	EventRecommendationVoted     = EventType("recommendation.voted")
	EventRecommendationValidated = EventType("recommendation.validated")

	EventRewardDistributed = EventType("reward.distributed")
	EventMinted            = EventType("supply.minted")
	EventBurned            = EventType("supply.burned")
	EventHalving           = EventType("supply.halving")

	EventEscrowCreated = EventType("escrow.created")
	EventEscrowClaimed = EventType("escrow.claimed")
	EventEscrowExpired = EventType("escrow.expired")

	EventAccountStatus      = EventType("account.status")
	EventTransfer           = EventType("account.transfer")
	EventReferralRegistered = EventType("referral.registered")

	EventStaked            = EventType("governance.staked")
	EventUnstaked          = EventType("governance.unstaked")
	EventProposalCreated   = EventType("governance.proposal_created")
	EventVoteCast          = EventType("governance.vote_cast")
	EventProposalFinalized = EventType("governance.proposal_finalized")
	EventProposalExecuted  = EventType("governance.proposal_executed")
	EventProposalCanceled  = EventType("governance.proposal_canceled")
)

// Event is appended to the ledger log inside the transaction that caused it
// and published once that transaction commits.
type Event struct {
	Seq     uint64            `cbor:"seq" json:"seq"`
	ID      string            `cbor:"id" json:"id"`
	Type    EventType         `cbor:"type" json:"type"`
	At      int64             `cbor:"at" json:"at"`
	Actor   string            `cbor:"actor,omitempty" json:"actor,omitempty"`
	Subject string            `cbor:"subject,omitempty" json:"subject,omitempty"`
	Amount  int64             `cbor:"amount,omitempty" json:"amount,omitempty"`
	Attrs   map[string]string `cbor:"attrs,omitempty" json:"attrs,omitempty"`
}
