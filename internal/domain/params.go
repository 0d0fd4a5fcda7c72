package domain

import (
	"sort"
	"strconv"
)

// Params holds every tunable threshold, weight and rate the ledger reads.
// Governance mutates it through Apply; the emission rate is deliberately not
// here because it only ever halves.
type Params struct {
	ValidationThreshold int64 `cbor:"validation_threshold" json:"validation_threshold"`
	SavePoints          int64 `cbor:"save_points" json:"save_points"`
	CommentPoints       int64 `cbor:"comment_points" json:"comment_points"`
	TierWeightNew       int64 `cbor:"tier_new" json:"tier_weight_new"`
	TierWeightEstab     int64 `cbor:"tier_established" json:"tier_weight_established"`
	TierWeightTrusted   int64 `cbor:"tier_trusted" json:"tier_weight_trusted"`

	CreationReward      int64 `cbor:"reward_creation" json:"reward_creation"`
	SaveReward          int64 `cbor:"reward_save" json:"reward_save"`
	CommentReward       int64 `cbor:"reward_comment" json:"reward_comment"`
	ValidationBonus     int64 `cbor:"reward_validation" json:"reward_validation"`
	FirstReviewerReward int64 `cbor:"reward_first" json:"reward_first_reviewer"`
	ReferralReward      int64 `cbor:"reward_referral" json:"reward_referral"`
	TrustMultiplierCap  int64 `cbor:"trust_cap" json:"trust_multiplier_cap"`

	ShortHoldMillis int64 `cbor:"short_hold" json:"short_hold_ms"`
	LongHoldMillis  int64 `cbor:"long_hold" json:"long_hold_ms"`

	VotingDelayMillis      int64 `cbor:"voting_delay" json:"voting_delay_ms"`
	VotingPeriodMillis     int64 `cbor:"voting_period" json:"voting_period_ms"`
	TimelockMillis         int64 `cbor:"timelock" json:"timelock_ms"`
	CriticalTimelockMillis int64 `cbor:"critical_timelock" json:"critical_timelock_ms"`
	MinUniqueVoters        int64 `cbor:"min_voters" json:"min_unique_voters"`
	QuorumWeight           int64 `cbor:"quorum_weight" json:"quorum_weight"`
	EarlyUnstakePenaltyBPS int64 `cbor:"unstake_penalty" json:"early_unstake_penalty_bps"`
	MinProposerReputation  int64 `cbor:"min_proposer_rep" json:"min_proposer_reputation"`
}

func DefaultParams() Params {
	return Params{
		ValidationThreshold: 3000,
		SavePoints:          1000,
		CommentPoints:       500,
		TierWeightNew:       500,
		TierWeightEstab:     1000,
		TierWeightTrusted:   1500,

		CreationReward:      Token,
		SaveReward:          Token / 10,
		CommentReward:       Token / 20,
		ValidationBonus:     Token,
		FirstReviewerReward: Token / 2,
		ReferralReward:      2 * Token,
		TrustMultiplierCap:  3000,

		ShortHoldMillis: 7 * Day,
		LongHoldMillis:  180 * Day,

		VotingDelayMillis:      0,
		VotingPeriodMillis:     7 * Day,
		TimelockMillis:         7 * Day,
		CriticalTimelockMillis: 90 * Day,
		MinUniqueVoters:        1000,
		QuorumWeight:           0,
		EarlyUnstakePenaltyBPS: 500,
		MinProposerReputation:  200,
	}
}

// TierWeight maps an account standing to its engagement weight (x1000).
func (p Params) TierWeight(s Standing) int64 {
	switch s {
	case StandingEstablished:
		return p.TierWeightEstab
	case StandingTrusted:
		return p.TierWeightTrusted
	default:
		return p.TierWeightNew
	}
}

func (p Params) EngagementPoints(k EngagementKind) int64 {
	if k == EngageComment {
		return p.CommentPoints
	}
	return p.SavePoints
}

func (p Params) EngagementReward(k EngagementKind) int64 {
	if k == EngageComment {
		return p.CommentReward
	}
	return p.SaveReward
}

// Parameter describes one governable field.
type Parameter struct {
	Name     string
	Min, Max int64
	Critical bool
	field    func(*Params) *int64
}

var parameters = map[string]Parameter{}

func register(name string, min, max int64, critical bool, field func(*Params) *int64) {
	parameters[name] = Parameter{Name: name, Min: min, Max: max, Critical: critical, field: field}
}

func init() {
	register("recommendation.validation_threshold", 500, 100_000, false, func(p *Params) *int64 { return &p.ValidationThreshold })
	register("recommendation.save_points", 1, 10_000, false, func(p *Params) *int64 { return &p.SavePoints })
	register("recommendation.comment_points", 1, 10_000, false, func(p *Params) *int64 { return &p.CommentPoints })
	register("tier.weight_new", 0, 5000, false, func(p *Params) *int64 { return &p.TierWeightNew })
	register("tier.weight_established", 0, 5000, false, func(p *Params) *int64 { return &p.TierWeightEstab })
	register("tier.weight_trusted", 0, 5000, false, func(p *Params) *int64 { return &p.TierWeightTrusted })

	register("rewards.creation", 0, 100*Token, false, func(p *Params) *int64 { return &p.CreationReward })
	register("rewards.save", 0, 10*Token, false, func(p *Params) *int64 { return &p.SaveReward })
	register("rewards.comment", 0, 10*Token, false, func(p *Params) *int64 { return &p.CommentReward })
	register("rewards.validation_bonus", 0, 100*Token, false, func(p *Params) *int64 { return &p.ValidationBonus })
	register("rewards.first_reviewer", 0, 100*Token, false, func(p *Params) *int64 { return &p.FirstReviewerReward })
	register("rewards.referral", 0, 100*Token, false, func(p *Params) *int64 { return &p.ReferralReward })
	register("rewards.trust_multiplier_cap", 1000, 5000, true, func(p *Params) *int64 { return &p.TrustMultiplierCap })

	register("escrow.short_hold_ms", Hour, 90*Day, false, func(p *Params) *int64 { return &p.ShortHoldMillis })
	register("escrow.long_hold_ms", Day, 730*Day, true, func(p *Params) *int64 { return &p.LongHoldMillis })

	register("governance.voting_delay_ms", 0, 30*Day, false, func(p *Params) *int64 { return &p.VotingDelayMillis })
	register("governance.voting_period_ms", Hour, 90*Day, false, func(p *Params) *int64 { return &p.VotingPeriodMillis })
	register("governance.timelock_ms", 0, 90*Day, true, func(p *Params) *int64 { return &p.TimelockMillis })
	register("governance.critical_timelock_ms", Day, 365*Day, true, func(p *Params) *int64 { return &p.CriticalTimelockMillis })
	register("governance.min_unique_voters", 1, 1_000_000, true, func(p *Params) *int64 { return &p.MinUniqueVoters })
	register("governance.quorum_weight", 0, 1<<62, true, func(p *Params) *int64 { return &p.QuorumWeight })
	register("governance.early_unstake_penalty_bps", 0, 5000, true, func(p *Params) *int64 { return &p.EarlyUnstakePenaltyBPS })
	register("governance.min_proposer_reputation", 0, MaxScore, false, func(p *Params) *int64 { return &p.MinProposerReputation })
}

// LookupParameter returns the governable parameter registered under name.
func LookupParameter(name string) (Parameter, bool) {
	p, ok := parameters[name]
	return p, ok
}

// ParameterNames lists governable parameters in lexical order.
func ParameterNames() []string {
	names := make([]string, 0, len(parameters))
	for n := range parameters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseValue checks raw against the parameter's range.
func (p Parameter) ParseValue(raw string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrInvalidArgument.On(p.Name)
	}
	if v < p.Min || v > p.Max {
		return 0, ErrParameterRange.On(p.Name)
	}
	return v, nil
}

// Apply sets the named parameter after validating raw.
func (p *Params) Apply(name, raw string) error {
	def, ok := LookupParameter(name)
	if !ok {
		return ErrUnknownParameter.On(name)
	}
	v, err := def.ParseValue(raw)
	if err != nil {
		return err
	}
	*def.field(p) = v
	return nil
}

// Get returns the current value of a governable parameter.
func (p *Params) Get(name string) (int64, bool) {
	def, ok := LookupParameter(name)
	if !ok {
		return 0, false
	}
	return *def.field(p), true
}
