package rubric

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"call-audit-go/internal/types"
)

// Builder produces the scoring rubric for a job: the static default rubric, or
// a custom one parsed from an uploaded spreadsheet when it is usable.
type Builder struct {
	log *logrus.Entry
}

func NewBuilder(log *logrus.Entry) *Builder {
	return &Builder{log: log}
}

// defaultRubric is the static configuration applied when no custom spreadsheet
// is supplied.
func defaultRubric() types.Rubric {
	return types.Rubric{
		ID:   "default-v1",
		Name: "Default call audit rubric",
		Mandatory: []types.Criterion{
			{ID: "greeting", Title: "Greeting and introduction", Max: 2},
			{ID: "needs_discovery", Title: "Needs discovery questions", Max: 3},
			{ID: "solution_offer", Title: "Relevant solution offered", Max: 3},
			{ID: "next_step", Title: "Clear next step agreed", Max: 2},
		},
		General: []types.Criterion{
			{ID: "active_listening", Title: "Active listening", Max: 2},
			{ID: "speech_clarity", Title: "Speech clarity and pace", Max: 2},
			{ID: "objection_handling", Title: "Objection handling", Max: 3},
		},
		Ethics: []types.EthicsCriterion{
			{ID: "no_profanity", Title: "No profanity or rudeness", Fatal: true},
			{ID: "no_misleading_claims", Title: "No misleading claims", Fatal: false},
			{ID: "no_pressure_tactics", Title: "No aggressive pressure tactics", Fatal: false},
		},
	}
}

// Build returns the rubric for one job. A spreadsheet that cannot be read or
// does not contain recognizable criteria falls back to the defaults; only an
// internally inconsistent result (duplicate ids) is an error.
func (b *Builder) Build(spreadsheetPath string) (types.Rubric, error) {
	r := defaultRubric()
	if spreadsheetPath != "" {
		parsed, err := parseSpreadsheet(spreadsheetPath)
		if err != nil {
			b.log.WithError(err).WithField("path", spreadsheetPath).
				Warn("custom rubric unusable, falling back to defaults")
		} else {
			b.log.WithField("rubric", parsed.Name).Info("custom rubric loaded")
			r = parsed
		}
	}
	if err := Validate(r); err != nil {
		return types.Rubric{}, err
	}
	return r, nil
}

// Validate enforces the rubric invariant: every criterion id appears in
// exactly one of the three blocks.
func Validate(r types.Rubric) error {
	seen := map[string]bool{}
	check := func(id string) error {
		if id == "" {
			return fmt.Errorf("invalid rubric %q: empty criterion id", r.ID)
		}
		if seen[id] {
			return fmt.Errorf("invalid rubric %q: duplicate criterion id %q", r.ID, id)
		}
		seen[id] = true
		return nil
	}
	for _, c := range r.Mandatory {
		if err := check(c.ID); err != nil {
			return err
		}
	}
	for _, c := range r.General {
		if err := check(c.ID); err != nil {
			return err
		}
	}
	for _, c := range r.Ethics {
		if err := check(c.ID); err != nil {
			return err
		}
	}
	if len(r.Mandatory)+len(r.General) == 0 {
		return fmt.Errorf("invalid rubric %q: no scorable criteria", r.ID)
	}
	return nil
}

// parseSpreadsheet reads criteria from the first sheet. Expected columns are
// detected by header heuristics: block (mandatory/general/ethics), id, title,
// max points, fatal flag. This is the supported subset of the custom-rubric
// extension point; richer layouts fall back to the defaults upstream.
func parseSpreadsheet(path string) (types.Rubric, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return types.Rubric{}, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return types.Rubric{}, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return types.Rubric{}, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return types.Rubric{}, fmt.Errorf("no data rows")
	}

	blockIdx, idIdx, titleIdx, maxIdx, fatalIdx := -1, -1, -1, -1, -1
	for i, h := range rows[0] {
		n := strings.ToLower(strings.TrimSpace(h))
		switch {
		case blockIdx == -1 && (strings.Contains(n, "block") || strings.Contains(n, "section")):
			blockIdx = i
		case idIdx == -1 && (n == "id" || strings.Contains(n, "criterion id") || strings.Contains(n, "code")):
			idIdx = i
		case titleIdx == -1 && (strings.Contains(n, "title") || strings.Contains(n, "criterion") || strings.Contains(n, "name")):
			titleIdx = i
		case maxIdx == -1 && (strings.Contains(n, "max") || strings.Contains(n, "points") || strings.Contains(n, "weight")):
			maxIdx = i
		case fatalIdx == -1 && strings.Contains(n, "fatal"):
			fatalIdx = i
		}
	}
	if blockIdx == -1 || idIdx == -1 || titleIdx == -1 {
		return types.Rubric{}, fmt.Errorf("required columns not found (block/id/title)")
	}

	cell := func(row []string, idx int) string {
		if idx >= 0 && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	r := types.Rubric{
		ID:   "custom-" + sanitizeID(sheets[0]),
		Name: sheets[0],
	}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		id := cell(row, idIdx)
		title := cell(row, titleIdx)
		if id == "" || title == "" {
			continue
		}
		block := strings.ToLower(cell(row, blockIdx))
		switch {
		case strings.Contains(block, "mandat"):
			max, _ := strconv.ParseFloat(cell(row, maxIdx), 64)
			if max <= 0 {
				max = 1
			}
			r.Mandatory = append(r.Mandatory, types.Criterion{ID: id, Title: title, Max: max})
		case strings.Contains(block, "ethic"):
			fatal := parseBoolCell(cell(row, fatalIdx))
			r.Ethics = append(r.Ethics, types.EthicsCriterion{ID: id, Title: title, Fatal: fatal})
		case strings.Contains(block, "general"):
			max, _ := strconv.ParseFloat(cell(row, maxIdx), 64)
			if max <= 0 {
				max = 1
			}
			r.General = append(r.General, types.Criterion{ID: id, Title: title, Max: max})
		}
	}
	if len(r.Mandatory)+len(r.General)+len(r.Ethics) == 0 {
		return types.Rubric{}, fmt.Errorf("no criteria rows recognized")
	}
	return r, nil
}

func parseBoolCell(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "fatal":
		return true
	}
	return false
}

func sanitizeID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), "-")
}
