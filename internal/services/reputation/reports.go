package reputation

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
)

// ReportApprovals is the number of distinct verifiers that approves a report.
const ReportApprovals = 3

// SubmitViolationReport files a report against target. evidence is an
// optional content reference to off-chain evidence.
func (s *Service) SubmitViolationReport(ctx context.Context, reporter, target string, typ domain.ViolationType, evidence string) (domain.ViolationReport, error) {
	if !typ.Valid() {
		return domain.ViolationReport{}, domain.ErrInvalidArgument.On("type")
	}
	if reporter == target {
		return domain.ViolationReport{}, domain.ErrSelfReport.On("target")
	}
	if evidence != "" {
		if _, err := cid.Decode(evidence); err != nil {
			return domain.ViolationReport{}, domain.ErrInvalidContentHash.On("evidence")
		}
	}
	var out domain.ViolationReport
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		if _, err := s.Load(ctx, tx, reporter); err != nil {
			return err
		}
		if _, err := s.Load(ctx, tx, target); err != nil {
			return err
		}
		out = domain.ViolationReport{
			ID:          uuid.NewString(),
			Reporter:    reporter,
			Target:      target,
			Type:        typ,
			EvidenceCID: evidence,
			CreatedAt:   tx.Now(),
		}
		if err := tx.Put(ctx, domain.KindReportObj, out.ID, out); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventReportSubmitted,
			Actor:   reporter,
			Subject: target,
			Attrs:   map[string]string{"report": out.ID, "violation": typ.String()},
		})
		return nil
	})
	return out, err
}

func (s *Service) loadReport(ctx context.Context, tx *ledger.Tx, id string) (domain.ViolationReport, error) {
	return ledger.Get[domain.ViolationReport](ctx, tx, domain.KindReportObj, id)
}

func (s *Service) Report(ctx context.Context, id string) (domain.ViolationReport, error) {
	var out domain.ViolationReport
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = s.loadReport(ctx, tx, id)
		return err
	})
	return out, err
}

// AddVerification records verifier's endorsement of a report. The third
// distinct endorsement approves it.
func (s *Service) AddVerification(ctx context.Context, reportID, verifier string) (domain.ViolationReport, error) {
	var out domain.ViolationReport
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		r, err := s.loadReport(ctx, tx, reportID)
		if err != nil {
			return err
		}
		if verifier == r.Reporter || verifier == r.Target {
			return domain.ErrNotAuthorized.On("verifier")
		}
		if r.Verifiers[verifier] {
			return domain.ErrAlreadyVerified.On("verifier")
		}
		if _, err := s.Load(ctx, tx, verifier); err != nil {
			return err
		}
		if r.Verifiers == nil {
			r.Verifiers = make(map[string]bool)
		}
		r.Verifiers[verifier] = true
		if len(r.Verifiers) >= ReportApprovals {
			r.Approved = true
		}
		if err := tx.Put(ctx, domain.KindReportObj, r.ID, r); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventReportVerified,
			Actor:   verifier,
			Subject: r.Target,
			Attrs: map[string]string{
				"report":    r.ID,
				"verifiers": strconv.Itoa(len(r.Verifiers)),
				"approved":  strconv.FormatBool(r.Approved),
			},
		})
		out = r
		return nil
	})
	return out, err
}

// ApplyPenalty deducts an approved report's penalty from its target once.
func (s *Service) ApplyPenalty(ctx context.Context, reportID string) (domain.ReputationScore, error) {
	var out domain.ReputationScore
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		r, err := s.loadReport(ctx, tx, reportID)
		if err != nil {
			return err
		}
		if !r.Approved {
			return domain.ErrNotApproved.On("report")
		}
		if r.Applied {
			return domain.ErrAlreadyApplied.On("report")
		}
		rs, err := s.Load(ctx, tx, r.Target)
		if err != nil {
			return err
		}
		penalty := r.Type.Penalty()
		rs.Score = domain.Max(rs.Score-penalty, 0)
		if r.Type == domain.ViolationSpam {
			rs.SpamReports++
		}
		if err := s.save(ctx, tx, rs); err != nil {
			return err
		}
		r.Applied = true
		if err := tx.Put(ctx, domain.KindReportObj, r.ID, r); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventPenaltyApplied,
			Subject: r.Target,
			Amount:  penalty,
			Attrs:   map[string]string{"report": r.ID, "violation": r.Type.String()},
		})
		out = rs
		out.UpdatedAt = tx.Now()
		return nil
	})
	if err != nil {
		return out, err
	}
	s.log.Info().
		Str("report", reportID).
		Str("target", out.Owner).
		Int64("score", out.Score).
		Msg("violation penalty applied")
	return out, nil
}
