// Package report turns a raw score result into the final audit report. The
// scoring service's own ethics_flag and final_score are treated as an
// informative echo only; everything that matters is re-derived here so the
// report is reproducible from the same inputs.
package report

import (
	"math"

	"call-audit-go/internal/config"
	"call-audit-go/internal/types"
)

type Assembler struct {
	nonFatalDeduction float64
	clampMin          float64
	fatalSetsFlag     bool
	passThreshold     float64
}

func NewAssembler(cfg config.Config) *Assembler {
	return &Assembler{
		nonFatalDeduction: cfg.NonFatalDeduction,
		clampMin:          cfg.ClampMin,
		fatalSetsFlag:     cfg.FatalSetsFlag,
		passThreshold:     cfg.PassThreshold,
	}
}

// Assemble recomputes the scores block from ethics violations and attaches
// summary statistics. Pure and idempotent: the same result and rubric always
// produce the same report.
func (a *Assembler) Assemble(res types.ScoreResult, rub types.Rubric) types.Report {
	fatal := map[string]bool{}
	for _, c := range rub.Ethics {
		fatal[c.ID] = c.Fatal
	}

	ethicsFlag := false
	deduction := 0.0
	violations := 0
	for _, check := range res.Blocks.Ethics {
		if !check.Violation {
			continue
		}
		violations++
		if fatal[check.ID] {
			if a.fatalSetsFlag {
				ethicsFlag = true
			}
		} else {
			deduction += a.nonFatalDeduction
		}
	}

	finalScore := math.Max(res.Scores.FinalScore-deduction, a.clampMin)

	scored := append(append([]types.CriterionScore{}, res.Blocks.Mandatory...), res.Blocks.General...)
	passed := 0
	for _, c := range scored {
		if c.Max > 0 && c.Score/c.Max >= a.passThreshold {
			passed++
		}
	}
	passRate := 0.0
	if len(scored) > 0 {
		passRate = float64(passed) / float64(len(scored))
	}

	res.Scores = types.Scores{
		MandatoryAvg:    blockAvg(res.Blocks.Mandatory),
		GeneralAvg:      blockAvg(res.Blocks.General),
		EthicsFlag:      ethicsFlag,
		FinalScore:      finalScore,
		EthicsDeduction: deduction,
	}

	return types.Report{
		ScoreResult: res,
		Summary: types.Summary{
			TotalCriteria:    len(scored),
			PassedCriteria:   passed,
			PassRate:         passRate,
			EthicsViolations: violations,
			TriggerCount:     len(res.Triggers.LexiconHits) + len(res.Triggers.AudioEvents),
		},
	}
}

func blockAvg(block []types.CriterionScore) float64 {
	if len(block) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range block {
		sum += c.Score
	}
	return sum / float64(len(block))
}
