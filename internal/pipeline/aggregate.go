package pipeline

import (
	"fmt"

	"course-report/internal/model"
	"course-report/pkg/utils"
)

// Policy selects the percent denominator of a level.
type Policy int

const (
	// GroupSize divides by the unfiltered member count. A zero sum is reported as 0.
	GroupSize Policy = iota
	// EligiblePublished divides published by the eligible count and every other
	// metric by the count of eligible published members.
	EligiblePublished
)

func (p Policy) String() string {
	switch p {
	case GroupSize:
		return "group_size"
	case EligiblePublished:
		return "eligible_published"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// KeyFunc extracts one grouping key from a record. ok=false leaves the record
// out of the level.
type KeyFunc func(model.CourseRecord) (key model.GroupValue, ok bool)

// Eligibility decides whether a member contributes to sums.
type Eligibility func(model.CourseRecord) (bool, error)

// LevelSpec describes one rollup level as data.
type LevelSpec struct {
	Name           string
	Keys           []KeyFunc // outer to inner
	Depth          int       // rows are emitted for key paths of this length
	Eligible       Eligibility
	Policy         Policy
	ReportEligible bool
}

// Aggregator turns enriched course records into rollup rows.
type Aggregator struct {
	Term      string
	Metrics   []model.MetricSpec
	Precision int
}

// NewAggregator creates an aggregator for one term.
func NewAggregator(term string, metrics []model.MetricSpec, precision int) *Aggregator {
	return &Aggregator{Term: term, Metrics: metrics, Precision: precision}
}

// ---------------- Levels ----------------

// DivisionKey groups by the division label.
func DivisionKey(r model.CourseRecord) (model.GroupValue, bool) {
	return model.GroupValue{Label: r.Division}, r.Division != ""
}

// ProgramKey groups by the program label.
func ProgramKey(r model.CourseRecord) (model.GroupValue, bool) {
	return model.GroupValue{Label: r.Program}, r.Program != ""
}

// AccountKey groups by owning account id. Empty names are kept.
func AccountKey(r model.CourseRecord) (model.GroupValue, bool) {
	return model.GroupValue{ID: r.AccountID, Label: r.AccountName}, true
}

// TopLevelKey groups by the child of the root that owns the course.
func TopLevelKey(h *model.Hierarchy) KeyFunc {
	return func(r model.CourseRecord) (model.GroupValue, bool) {
		top, ok := h.TopLevel(r.AccountID)
		if !ok {
			return model.GroupValue{}, false
		}
		return model.GroupValue{ID: top.ID, Label: top.Name}, true
	}
}

// MinEnrollment admits members whose enrollment is at least min. A min of
// zero or less admits everyone without reading enrollment.
func MinEnrollment(min int) Eligibility {
	if min <= 0 {
		return nil
	}
	return func(r model.CourseRecord) (bool, error) {
		n, err := r.Value(model.OptionEnrollment)
		if err != nil {
			return false, err
		}
		return n >= min, nil
	}
}

// DepartmentsLevel rolls courses up by division then program.
func DepartmentsLevel() LevelSpec {
	return LevelSpec{
		Name:   "departments",
		Keys:   []KeyFunc{DivisionKey, ProgramKey},
		Depth:  2,
		Policy: GroupSize,
	}
}

// DivisionsLevel rolls courses up by division.
func DivisionsLevel() LevelSpec {
	return LevelSpec{
		Name:   "divisions",
		Keys:   []KeyFunc{DivisionKey},
		Depth:  1,
		Policy: GroupSize,
	}
}

// SubaccountsLevel rolls courses up by owning account.
func SubaccountsLevel(enrollmentMin int) LevelSpec {
	return LevelSpec{
		Name:           "subaccounts",
		Keys:           []KeyFunc{AccountKey},
		Depth:          1,
		Eligible:       MinEnrollment(enrollmentMin),
		Policy:         EligiblePublished,
		ReportEligible: true,
	}
}

// InstitutionLevel rolls courses up by top-level sub-account. Each row covers
// the courses of the sub-account and of its direct children.
func InstitutionLevel(h *model.Hierarchy, enrollmentMin int) LevelSpec {
	return LevelSpec{
		Name:           "institution",
		Keys:           []KeyFunc{TopLevelKey(h)},
		Depth:          1,
		Eligible:       MinEnrollment(enrollmentMin),
		Policy:         EligiblePublished,
		ReportEligible: true,
	}
}

// ---------------- Accumulation ----------------

// eligibility is the per-group view the accumulator needs.
type eligibility struct {
	mask              []bool
	eligible          int
	eligiblePublished int
}

func (a *Aggregator) hasPublished() bool {
	return model.HasMetric(a.Metrics, model.OptionPublished)
}

func (a *Aggregator) eligibility(members []model.CourseRecord, level LevelSpec) (eligibility, error) {
	e := eligibility{mask: make([]bool, len(members))}
	published := a.hasPublished()
	for i, m := range members {
		ok := true
		if level.Eligible != nil {
			var err error
			if ok, err = level.Eligible(m); err != nil {
				return eligibility{}, err
			}
		}
		if !ok {
			continue
		}
		e.mask[i] = true
		e.eligible++
		if published {
			v, err := m.Value(model.OptionPublished)
			if err != nil {
				return eligibility{}, err
			}
			if v == 1 {
				e.eligiblePublished++
			}
		}
	}
	if !published {
		e.eligiblePublished = e.eligible
	}
	return e, nil
}

// Accumulate sums metric over the eligible members of one group and derives
// its percent under the level's denominator policy.
func (a *Aggregator) Accumulate(members []model.CourseRecord, metric model.MetricSpec, level LevelSpec) (model.MetricResult, error) {
	e, err := a.eligibility(members, level)
	if err != nil {
		return model.MetricResult{}, err
	}
	return a.accumulate(members, metric, level.Policy, e)
}

func (a *Aggregator) accumulate(members []model.CourseRecord, metric model.MetricSpec, policy Policy, e eligibility) (model.MetricResult, error) {
	sum := 0
	for i, m := range members {
		v, err := m.Value(metric.Name)
		if err != nil {
			return model.MetricResult{}, err
		}
		if e.mask[i] {
			sum += v
		}
	}

	result := model.MetricResult{Sum: sum}
	if !metric.HasPercent() {
		return result, nil
	}

	switch policy {
	case GroupSize:
		if sum == 0 && len(members) > 0 {
			result.Percent = model.Percent{Valid: true}
			return result, nil
		}
		result.Percent = a.percent(sum, len(members))
	case EligiblePublished:
		denom := e.eligiblePublished
		if metric.Name == model.OptionPublished {
			denom = e.eligible
		}
		result.Percent = a.percent(sum, denom)
	default:
		return model.MetricResult{}, fmt.Errorf("unknown denominator policy %v", policy)
	}
	return result, nil
}

// percent is empty for a zero denominator.
func (a *Aggregator) percent(sum, denom int) model.Percent {
	if denom == 0 {
		return model.Percent{}
	}
	ratio := float64(sum) / float64(denom)
	return model.Percent{
		Value:     utils.RoundSigFigs(ratio, a.Precision),
		Valid:     true,
		Precision: a.Precision,
	}
}

// Summarize builds the rollup row for one group of members.
func (a *Aggregator) Summarize(level LevelSpec, keys []model.GroupValue, members []model.CourseRecord) (model.RollupRecord, error) {
	e, err := a.eligibility(members, level)
	if err != nil {
		return model.RollupRecord{}, err
	}

	row := model.RollupRecord{
		Term:           a.Term,
		Level:          level.Name,
		Keys:           append([]model.GroupValue(nil), keys...),
		Count:          len(members),
		HasEligibility: level.ReportEligible,
		Metrics:        make(map[string]model.MetricResult, len(a.Metrics)),
	}
	if level.ReportEligible {
		row.EligibleCount = e.eligible
	}
	for _, metric := range a.Metrics {
		res, err := a.accumulate(members, metric, level.Policy, e)
		if err != nil {
			return model.RollupRecord{}, fmt.Errorf("%s %v: %w", level.Name, keys, err)
		}
		row.Metrics[metric.Name] = res
	}
	return row, nil
}

// ---------------- Grouping ----------------

// groupNode keeps its children in first-seen order and the flattened members
// of its whole subtree.
type groupNode struct {
	key      model.GroupValue
	members  []model.CourseRecord
	children []*groupNode
	index    map[model.GroupValue]*groupNode
}

func (n *groupNode) child(key model.GroupValue) *groupNode {
	if n.index == nil {
		n.index = make(map[model.GroupValue]*groupNode)
	}
	c, ok := n.index[key]
	if !ok {
		c = &groupNode{key: key}
		n.index[key] = c
		n.children = append(n.children, c)
	}
	return c
}

// Group partitions records by the level's nested keys and summarizes every
// key path of the level's depth. Records excluded by any key are skipped.
func (a *Aggregator) Group(records []model.CourseRecord, level LevelSpec) ([]model.RollupRecord, error) {
	if level.Depth < 1 || level.Depth > len(level.Keys) {
		return nil, fmt.Errorf("level %s: depth %d outside 1..%d", level.Name, level.Depth, len(level.Keys))
	}

	root := &groupNode{}
	keys := make([]model.GroupValue, len(level.Keys))
	for _, rec := range records {
		included := true
		for i, fn := range level.Keys {
			k, ok := fn(rec)
			if !ok {
				included = false
				break
			}
			keys[i] = k
		}
		if !included {
			continue
		}
		n := root
		for _, k := range keys {
			n = n.child(k)
			n.members = append(n.members, rec)
		}
	}

	var rows []model.RollupRecord
	var walk func(n *groupNode, path []model.GroupValue) error
	walk = func(n *groupNode, path []model.GroupValue) error {
		if len(path) == level.Depth {
			if len(n.members) == 0 {
				return nil
			}
			row, err := a.Summarize(level, path, n.members)
			if err != nil {
				return err
			}
			rows = append(rows, row)
			return nil
		}
		for _, c := range n.children {
			if err := walk(c, append(path, c.key)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, make([]model.GroupValue, 0, level.Depth)); err != nil {
		return nil, err
	}
	return rows, nil
}
