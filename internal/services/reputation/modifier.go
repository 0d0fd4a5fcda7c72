package reputation

import (
	"context"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
)

// Trust modifier bounds (x100).
const (
	BaseModifier = 100
	MinModifier  = 10
	MaxModifier  = 300
)

var levelModifier = map[domain.VerificationLevel]int64{
	domain.VerificationBasic:    10,
	domain.VerificationVerified: 25,
	domain.VerificationExpert:   50,
}

// Modifier derives the trust multiplier (x100) that scales every trust
// weight the user contributes.
func Modifier(rs domain.ReputationScore) int64 {
	m := int64(BaseModifier)
	m += levelModifier[rs.Level]

	decile := domain.Clamp(rs.Score, 0, domain.MaxScore) / 100
	m += (decile - 5) * 5

	if rs.QualitySamples > 0 {
		switch {
		case rs.AvgContentTrust >= 700:
			m += 20
		case rs.AvgContentTrust >= 500:
			m += 10
		case rs.AvgContentTrust < 200:
			m -= 10
		}
	}

	m -= 10 * rs.SpamReports
	return domain.Clamp(m, MinModifier, MaxModifier)
}

// TrustModifierTx is TrustModifier inside an open transaction.
func (s *Service) TrustModifierTx(ctx context.Context, tx *ledger.Tx, user string) (int64, error) {
	rs, err := s.Load(ctx, tx, user)
	if err != nil {
		return 0, err
	}
	return Modifier(rs), nil
}

func (s *Service) TrustModifier(ctx context.Context, user string) (int64, error) {
	var out int64
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = s.TrustModifierTx(ctx, tx, user)
		return err
	})
	return out, err
}
