package domain

// Core ledger entities. Every type here is stored as a CBOR document keyed
// by (kind, id); the cbor tags are the stable wire names.

// Object kinds used as the first half of a store key.
const (
	KindGenesisObj     = "genesis"
	KindSupplyObj      = "supply"
	KindParamsObj      = "params"
	KindReputationObj  = "reputation"
	KindReportObj      = "report"
	KindGraphObj       = "graph"
	KindRecObj         = "recommendation"
	KindContentIdx     = "content"
	KindEngagementIdx  = "engagement"
	KindRecVoteIdx     = "rec_vote"
	KindAccountObj     = "account"
	KindHoldObj        = "hold"
	KindHoldDueIdx     = "hold_due"
	KindReferralObj    = "referral"
	KindStakeObj       = "stake"
	KindGovRegistryObj = "governance"
	KindProposalObj    = "proposal"
	KindProposalDueIdx = "proposal_due"
	KindBallotIdx      = "ballot"
)

// Singleton ids.
const (
	SingletonID = "current"
)

type VerificationLevel uint8

const (
	VerificationNone VerificationLevel = iota
	VerificationBasic
	VerificationVerified
	VerificationExpert
)

func (v VerificationLevel) String() string {
	switch v {
	case VerificationBasic:
		return "basic"
	case VerificationVerified:
		return "verified"
	case VerificationExpert:
		return "expert"
	default:
		return "none"
	}
}

func (v VerificationLevel) Valid() bool { return v <= VerificationExpert }

type ReputationScore struct {
	Owner           string            `cbor:"owner" json:"owner"`
	Score           int64             `cbor:"score" json:"score"`
	Level           VerificationLevel `cbor:"level" json:"level"`
	LevelsGranted   map[uint8]bool    `cbor:"levels,omitempty" json:"levels_granted,omitempty"`
	Specializations []string          `cbor:"tags,omitempty" json:"specializations,omitempty"`

	TotalRecommendations int64 `cbor:"recs" json:"total_recommendations"`
	UpvotesReceived      int64 `cbor:"ups" json:"upvotes_received"`
	DownvotesReceived    int64 `cbor:"downs" json:"downvotes_received"`
	VotesCast            int64 `cbor:"votes" json:"votes_cast"`

	RecentQuality     int64 `cbor:"recent_q" json:"recent_quality"`
	HistoricalQuality int64 `cbor:"hist_q" json:"historical_quality"`
	AvgContentTrust   int64 `cbor:"avg_trust" json:"avg_content_trust"`
	QualitySamples    int64 `cbor:"samples" json:"quality_samples"`
	SpamReports       int64 `cbor:"spam" json:"spam_reports"`
	CreatedAt         int64 `cbor:"created" json:"created_at"`
	UpdatedAt         int64 `cbor:"updated" json:"updated_at"`
}

type ViolationType uint8

const (
	ViolationSpam ViolationType = iota + 1
	ViolationFakeRelationship
	ViolationHarassment
	ViolationImpersonation
)

func (v ViolationType) Valid() bool {
	return v >= ViolationSpam && v <= ViolationImpersonation
}

func (v ViolationType) String() string {
	switch v {
	case ViolationSpam:
		return "spam"
	case ViolationFakeRelationship:
		return "fake_relationship"
	case ViolationHarassment:
		return "harassment"
	case ViolationImpersonation:
		return "impersonation"
	default:
		return "unknown"
	}
}

// Penalty is the score deduction (x100) for the violation type.
func (v ViolationType) Penalty() int64 {
	switch v {
	case ViolationSpam:
		return 50
	case ViolationFakeRelationship:
		return 100
	case ViolationHarassment:
		return 250
	case ViolationImpersonation:
		return 500
	default:
		return 0
	}
}

type ViolationReport struct {
	ID          string          `cbor:"id" json:"id"`
	Reporter    string          `cbor:"reporter" json:"reporter"`
	Target      string          `cbor:"target" json:"target"`
	Type        ViolationType   `cbor:"type" json:"type"`
	EvidenceCID string          `cbor:"evidence,omitempty" json:"evidence_cid,omitempty"`
	Verifiers   map[string]bool `cbor:"verifiers,omitempty" json:"verifiers,omitempty"`
	Approved    bool            `cbor:"approved" json:"approved"`
	Applied     bool            `cbor:"applied" json:"applied"`
	CreatedAt   int64           `cbor:"created" json:"created_at"`
}

type HopType uint8

const (
	HopDirect HopType = iota + 1
	HopFriendOfFriend
)

type TrustConnection struct {
	Target          string  `cbor:"target" json:"target"`
	Weight          int64   `cbor:"weight" json:"weight"`
	Hop             HopType `cbor:"hop" json:"hop"`
	Interactions    int64   `cbor:"interactions" json:"interactions"`
	LastInteraction int64   `cbor:"last" json:"last_interaction"`
}

type SocialGraph struct {
	Owner            string            `cbor:"owner" json:"owner"`
	Followers        map[string]bool   `cbor:"followers,omitempty" json:"followers,omitempty"`
	Following        map[string]bool   `cbor:"following,omitempty" json:"following,omitempty"`
	Mutual           int64             `cbor:"mutual" json:"mutual"`
	Strong           int64             `cbor:"strong" json:"strong"`
	Weak             int64             `cbor:"weak" json:"weak"`
	Connections      []TrustConnection `cbor:"connections,omitempty" json:"connections,omitempty"`
	ExtendedGraphCID string            `cbor:"extended,omitempty" json:"extended_graph_cid,omitempty"`
}

// Connection returns the trust connection to target, if tracked.
func (g *SocialGraph) Connection(target string) (int, bool) {
	for i := range g.Connections {
		if g.Connections[i].Target == target {
			return i, true
		}
	}
	return -1, false
}

type EngagementKind uint8

const (
	EngageSave EngagementKind = iota + 1
	EngageComment
)

func (k EngagementKind) Valid() bool { return k == EngageSave || k == EngageComment }

func (k EngagementKind) String() string {
	switch k {
	case EngageSave:
		return "save"
	case EngageComment:
		return "comment"
	default:
		return "unknown"
	}
}

type Location struct {
	LatE6 int64 `cbor:"lat" json:"lat_e6"`
	LngE6 int64 `cbor:"lng" json:"lng_e6"`
}

type Recommendation struct {
	ID         string   `cbor:"id" json:"id"`
	Author     string   `cbor:"author" json:"author"`
	ContentCID string   `cbor:"cid" json:"content_cid"`
	Category   string   `cbor:"category" json:"category"`
	Location   Location `cbor:"loc" json:"location"`
	Rating     int64    `cbor:"rating" json:"rating"`

	EngagementPoints int64 `cbor:"points" json:"engagement_points"`
	Saves            int64 `cbor:"saves" json:"saves"`
	Comments         int64 `cbor:"comments" json:"comments"`

	Upvotes        int64 `cbor:"ups" json:"upvotes"`
	Downvotes      int64 `cbor:"downs" json:"downvotes"`
	UpvoteWeight   int64 `cbor:"up_w" json:"upvote_weight"`
	DownvoteWeight int64 `cbor:"down_w" json:"downvote_weight"`
	SocialTrust    int64 `cbor:"social" json:"social_trust"`
	TrustScore     int64 `cbor:"trust" json:"trust_score"`

	Validated     bool  `cbor:"validated" json:"validated"`
	ValidatedAt   int64 `cbor:"validated_at,omitempty" json:"validated_at,omitempty"`
	RewardClaimed bool  `cbor:"claimed" json:"reward_claimed"`
	CreatedAt     int64 `cbor:"created" json:"created_at"`
}

type Standing uint8

const (
	StandingNew Standing = iota
	StandingEstablished
	StandingTrusted
)

func (s Standing) Valid() bool { return s <= StandingTrusted }

func (s Standing) String() string {
	switch s {
	case StandingEstablished:
		return "established"
	case StandingTrusted:
		return "trusted"
	default:
		return "new"
	}
}

// Account is a direct token balance plus the identity status supplied by the
// external user-status service.
type Account struct {
	Owner     string   `cbor:"owner" json:"owner"`
	Balance   Balance  `cbor:"balance" json:"balance"`
	Verified  bool     `cbor:"verified" json:"verified"`
	Standing  Standing `cbor:"standing" json:"standing"`
	UpdatedAt int64    `cbor:"updated" json:"updated_at"`
}

type HoldKind uint8

const (
	HoldShort HoldKind = iota + 1
	HoldLong
)

func (k HoldKind) String() string {
	if k == HoldShort {
		return "short"
	}
	return "long"
}

type EscrowHold struct {
	ID        string   `cbor:"id" json:"id"`
	Kind      HoldKind `cbor:"kind" json:"kind"`
	Holder    string   `cbor:"holder" json:"holder"`
	Pending   Balance  `cbor:"pending" json:"pending"`
	Reference string   `cbor:"ref,omitempty" json:"reference,omitempty"`
	CreatedAt int64    `cbor:"created" json:"created_at"`
	ReleaseAt int64    `cbor:"release" json:"release_at"`
	ExpiresAt int64    `cbor:"expires,omitempty" json:"expires_at,omitempty"`
	Claimed   bool     `cbor:"claimed" json:"claimed"`
	Expired   bool     `cbor:"expired" json:"expired"`
}

type Referral struct {
	Referee   string `cbor:"referee" json:"referee"`
	Referrer  string `cbor:"referrer" json:"referrer"`
	Paid      bool   `cbor:"paid" json:"paid"`
	CreatedAt int64  `cbor:"created" json:"created_at"`
}

type Bucket uint8

const (
	BucketRewards Bucket = iota + 1
	BucketDevelopment
	BucketEcosystem
	BucketTeam
)

var Buckets = []Bucket{BucketRewards, BucketDevelopment, BucketEcosystem, BucketTeam}

func (b Bucket) Valid() bool { return b >= BucketRewards && b <= BucketTeam }

func (b Bucket) String() string {
	switch b {
	case BucketRewards:
		return "rewards"
	case BucketDevelopment:
		return "development"
	case BucketEcosystem:
		return "ecosystem"
	case BucketTeam:
		return "team"
	default:
		return "unknown"
	}
}

type TokenSupply struct {
	TotalCap     int64            `cbor:"cap" json:"total_cap"`
	Circulating  int64            `cbor:"circulating" json:"circulating"`
	Burned       int64            `cbor:"burned" json:"burned"`
	Allocations  map[Bucket]int64 `cbor:"alloc" json:"allocations"`
	Remaining    map[Bucket]int64 `cbor:"remaining" json:"remaining"`
	EmissionRate int64            `cbor:"rate" json:"emission_rate_bps"`
	HalvingIndex int64            `cbor:"halvings" json:"halving_index"`
	HalvingStep  int64            `cbor:"step" json:"halving_step"`
	Authority    string           `cbor:"authority" json:"authority"`
	Treasury     string           `cbor:"treasury" json:"treasury"`
}

// Distributed is the amount minted out of all buckets so far.
func (s *TokenSupply) Distributed() int64 {
	var total int64
	for _, b := range Buckets {
		total += s.Allocations[b] - s.Remaining[b]
	}
	return total
}

// Accounted is circulating + burned + every remaining bucket; it equals
// TotalCap at all times.
func (s *TokenSupply) Accounted() int64 {
	total := s.Circulating + s.Burned
	for _, b := range Buckets {
		total += s.Remaining[b]
	}
	return total
}

type Genesis struct {
	Authority string `cbor:"authority" json:"authority"`
	Treasury  string `cbor:"treasury" json:"treasury"`
	At        int64  `cbor:"at" json:"at"`
}

type StakeTier uint8

const (
	TierNone StakeTier = iota
	TierExplorer
	TierCurator
	TierValidator
)

func (t StakeTier) Valid() bool { return t >= TierExplorer && t <= TierValidator }

func (t StakeTier) String() string {
	switch t {
	case TierExplorer:
		return "explorer"
	case TierCurator:
		return "curator"
	case TierValidator:
		return "validator"
	default:
		return "none"
	}
}

// TierPolicy is the minimum stake, minimum lock and vote multiplier (x1000)
// of a stake tier.
type TierPolicy struct {
	MinStake   int64
	LockMillis int64
	Multiplier int64
}

var tierPolicies = map[StakeTier]TierPolicy{
	TierExplorer:  {MinStake: 100 * Token, LockMillis: 30 * Day, Multiplier: 1000},
	TierCurator:   {MinStake: 1_000 * Token, LockMillis: 90 * Day, Multiplier: 1250},
	TierValidator: {MinStake: 10_000 * Token, LockMillis: 180 * Day, Multiplier: 1500},
}

func (t StakeTier) Policy() TierPolicy { return tierPolicies[t] }

type StakedTokens struct {
	Staker    string    `cbor:"staker" json:"staker"`
	Locked    Balance   `cbor:"locked" json:"locked"`
	Tier      StakeTier `cbor:"tier" json:"tier"`
	LockUntil int64     `cbor:"until" json:"lock_until"`
	Penalties int64     `cbor:"penalties" json:"accumulated_penalties"`
	StakedAt  int64     `cbor:"staked" json:"staked_at"`
}

// VotingPower is the locked balance scaled by the tier multiplier.
func (s *StakedTokens) VotingPower() int64 {
	if !s.Tier.Valid() {
		return 0
	}
	return MulDiv(s.Locked.Amount(), s.Tier.Policy().Multiplier, WeightScale)
}

type GovernanceRegistry struct {
	NextProposalID uint64  `cbor:"next" json:"next_proposal_id"`
	PenaltyPool    Balance `cbor:"penalty_pool" json:"penalty_pool"`
	TotalStaked    int64   `cbor:"staked" json:"total_staked"`
}

type ProposalType uint8

const (
	ProposalParameter ProposalType = iota + 1
	ProposalUpgrade
	ProposalTreasury
	ProposalContentPolicy
)

func (p ProposalType) Valid() bool {
	return p >= ProposalParameter && p <= ProposalContentPolicy
}

func (p ProposalType) String() string {
	switch p {
	case ProposalParameter:
		return "parameter"
	case ProposalUpgrade:
		return "upgrade"
	case ProposalTreasury:
		return "treasury"
	case ProposalContentPolicy:
		return "content_policy"
	default:
		return "unknown"
	}
}

type ProposalState uint8

const (
	ProposalDraft ProposalState = iota + 1
	ProposalActive
	ProposalPassed
	ProposalFailed
	ProposalExecuted
	ProposalCanceled
)

func (s ProposalState) String() string {
	switch s {
	case ProposalDraft:
		return "draft"
	case ProposalActive:
		return "active"
	case ProposalPassed:
		return "passed"
	case ProposalFailed:
		return "failed"
	case ProposalExecuted:
		return "executed"
	case ProposalCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

type Proposal struct {
	ID             uint64       `cbor:"id" json:"id"`
	Proposer       string       `cbor:"proposer" json:"proposer"`
	Type           ProposalType `cbor:"type" json:"type"`
	Title          string       `cbor:"title" json:"title"`
	DescriptionCID string       `cbor:"desc,omitempty" json:"description_cid,omitempty"`
	ParamNames     []string     `cbor:"names,omitempty" json:"param_names,omitempty"`
	ParamValues    []string     `cbor:"values,omitempty" json:"param_values,omitempty"`
	Critical       bool         `cbor:"critical" json:"critical"`

	ForWeight     int64 `cbor:"for" json:"for_weight"`
	AgainstWeight int64 `cbor:"against" json:"against_weight"`
	Voters        int64 `cbor:"voters" json:"unique_voters"`

	State       ProposalState `cbor:"state" json:"state"`
	CreatedAt   int64         `cbor:"created" json:"created_at"`
	VotingStart int64         `cbor:"start" json:"voting_start"`
	VotingEnd   int64         `cbor:"end" json:"voting_end"`
	TimelockEnd int64         `cbor:"timelock,omitempty" json:"timelock_end,omitempty"`
	ExecutedAt  int64         `cbor:"executed,omitempty" json:"executed_at,omitempty"`
}

type Ballot struct {
	ProposalID uint64 `cbor:"proposal" json:"proposal_id"`
	Voter      string `cbor:"voter" json:"voter"`
	Support    bool   `cbor:"support" json:"support"`
	Weight     int64  `cbor:"weight" json:"weight"`
	At         int64  `cbor:"at" json:"at"`
}

// Marker records that a keyed (actor, object, kind) action happened.
type Marker struct {
	At    int64 `cbor:"at" json:"at"`
	Value int64 `cbor:"value,omitempty" json:"value,omitempty"`
}
