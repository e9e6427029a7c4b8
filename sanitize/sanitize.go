// Package sanitize coerces untrusted split documents into the normalized
// shape the storages expect. It is pure: no I/O, no storage mutation.
package sanitize

import (
	"errors"

	"github.com/sirupsen/logrus"

	"flagclient/models"
	"flagclient/util"
)

// RawSplit is a split definition as decoded from an untrusted source.
// Pointer fields distinguish missing/null from legitimate zero values.
type RawSplit struct {
	Name                  string             `json:"name"`
	TrafficTypeName       *string            `json:"trafficTypeName"`
	TrafficAllocation     *int               `json:"trafficAllocation"`
	TrafficAllocationSeed *int64             `json:"trafficAllocationSeed"`
	Seed                  *int64             `json:"seed"`
	Status                *string            `json:"status"`
	Killed                *bool              `json:"killed"`
	DefaultTreatment      *string            `json:"defaultTreatment"`
	ChangeNumber          *int64             `json:"changeNumber"`
	Algo                  *int               `json:"algo"`
	Conditions            []models.Condition `json:"conditions"`
	Configurations        map[string]string  `json:"configurations"`
}

// RawDocument is an untrusted splitChanges-shaped document.
type RawDocument struct {
	Splits []RawSplit `json:"splits"`
	Since  *int64     `json:"since"`
	Till   *int64     `json:"till"`
}

// ErrUnusableDocument is returned when the decoded input cannot be coerced
// into a split document at all.
var ErrUnusableDocument = errors.New("split document is structurally unusable")

// Sanitizer applies the coercion rules. The clock is injectable because two
// field defaults are the current epoch time.
type Sanitizer struct {
	logger *logrus.Logger
	now    func() int64
}

// New returns a Sanitizer using the wall clock.
func New(logger *logrus.Logger) *Sanitizer {
	return NewWithClock(logger, util.NowMillis)
}

// NewWithClock returns a Sanitizer with a custom epoch-ms clock.
func NewWithClock(logger *logrus.Logger, now func() int64) *Sanitizer {
	return &Sanitizer{logger: logger, now: now}
}

// Document sanitizes a whole decoded document. Splits without a usable name
// are dropped; every surviving split satisfies the default-rule invariant.
func (s *Sanitizer) Document(doc *RawDocument) (*models.SplitChanges, error) {
	if doc == nil {
		return nil, ErrUnusableDocument
	}

	out := &models.SplitChanges{}

	out.Till = -1
	if doc.Till != nil && *doc.Till >= -1 {
		out.Till = *doc.Till
	}
	out.Since = out.Till
	if doc.Since != nil && *doc.Since >= -1 && *doc.Since <= out.Till {
		out.Since = *doc.Since
	}

	out.Splits = make([]models.Split, 0, len(doc.Splits))
	for _, raw := range doc.Splits {
		split := s.Split(raw)
		if split == nil {
			continue
		}
		out.Splits = append(out.Splits, *split)
	}
	return out, nil
}

// Split sanitizes a single raw split. Returns nil when the split has no
// usable name and must be dropped.
func (s *Sanitizer) Split(raw RawSplit) *models.Split {
	if isBlank(raw.Name) {
		s.logger.Warn("dropping split definition without a name")
		return nil
	}

	split := models.Split{
		Name:                  raw.Name,
		TrafficTypeName:       s.stringField(raw.Name, "trafficTypeName", raw.TrafficTypeName, "user", nil, nil),
		TrafficAllocation:     s.intField(raw.Name, "trafficAllocation", raw.TrafficAllocation, 100, ptrInt(0), ptrInt(100)),
		TrafficAllocationSeed: s.int64Field(raw.Name, "trafficAllocationSeed", raw.TrafficAllocationSeed, s.now(), ptrInt64(0), nil),
		Seed:                  s.int64Field(raw.Name, "seed", raw.Seed, s.now(), ptrInt64(0), nil),
		Status:                s.stringField(raw.Name, "status", raw.Status, models.StatusActive, []string{models.StatusActive, models.StatusArchived}, nil),
		Killed:                s.boolField(raw.Killed, false),
		DefaultTreatment:      s.stringField(raw.Name, "defaultTreatment", raw.DefaultTreatment, "on", nil, []string{"", " "}),
		ChangeNumber:          s.int64Field(raw.Name, "changeNumber", raw.ChangeNumber, 0, ptrInt64(0), nil),
		Algo:                  s.intField(raw.Name, "algo", raw.Algo, 2, ptrInt(2), ptrInt(2)),
		Conditions:            raw.Conditions,
		Configurations:        raw.Configurations,
	}
	if split.Conditions == nil {
		split.Conditions = []models.Condition{}
	}
	s.ensureDefaultRule(&split)
	return &split
}

// ensureDefaultRule appends a 100%-off ROLLOUT/ALL_KEYS condition when no
// ROLLOUT condition with an ALL_KEYS matcher is present.
func (s *Sanitizer) ensureDefaultRule(split *models.Split) {
	for _, condition := range split.Conditions {
		if condition.ConditionType != models.ConditionTypeRollout {
			continue
		}
		for _, matcher := range condition.MatcherGroup.Matchers {
			if matcher.MatcherType == models.MatcherTypeAllKeys {
				return
			}
		}
	}

	s.logger.Debugf("split %s is missing a default rule condition, appending 100%% off", split.Name)
	split.Conditions = append(split.Conditions, DefaultRuleCondition())
}

// DefaultRuleCondition is the rule appended to splits lacking one: every key
// rolls out to treatment "off".
func DefaultRuleCondition() models.Condition {
	return models.Condition{
		ConditionType: models.ConditionTypeRollout,
		MatcherGroup: models.MatcherGroup{
			Combiner: "AND",
			Matchers: []models.Matcher{
				{
					KeySelector: &models.KeySelector{TrafficType: "user"},
					MatcherType: models.MatcherTypeAllKeys,
					Negate:      false,
				},
			},
		},
		Partitions: []models.Partition{
			{Treatment: "on", Size: 0},
			{Treatment: "off", Size: 100},
		},
		Label: "default rule",
	}
}

func (s *Sanitizer) stringField(split, field string, val *string, def string, in []string, notIn []string) string {
	if val == nil {
		return s.coercedString(split, field, def)
	}
	if in != nil && !contains(in, *val) {
		return s.coercedString(split, field, def)
	}
	if notIn != nil && contains(notIn, *val) {
		return s.coercedString(split, field, def)
	}
	return *val
}

func (s *Sanitizer) intField(split, field string, val *int, def int, lower, upper *int) int {
	if val == nil {
		return s.coercedInt(split, field, def)
	}
	if lower != nil && *val < *lower {
		return s.coercedInt(split, field, def)
	}
	if upper != nil && *val > *upper {
		return s.coercedInt(split, field, def)
	}
	return *val
}

func (s *Sanitizer) int64Field(split, field string, val *int64, def int64, lower, upper *int64) int64 {
	if val == nil {
		return s.coerced64(split, field, def)
	}
	if lower != nil && *val < *lower {
		return s.coerced64(split, field, def)
	}
	if upper != nil && *val > *upper {
		return s.coerced64(split, field, def)
	}
	return *val
}

func (s *Sanitizer) boolField(val *bool, def bool) bool {
	if val == nil {
		return def
	}
	return *val
}

func (s *Sanitizer) coercedString(split, field, def string) string {
	s.logger.Debugf("sanitized field %s to %q in split %s", field, def, split)
	return def
}

func (s *Sanitizer) coercedInt(split, field string, def int) int {
	s.logger.Debugf("sanitized field %s to %d in split %s", field, def, split)
	return def
}

func (s *Sanitizer) coerced64(split, field string, def int64) int64 {
	s.logger.Debugf("sanitized field %s to %d in split %s", field, def, split)
	return def
}

func isBlank(name string) bool {
	for _, r := range name {
		if r != ' ' && r != '\t' {
			return false
		}
	}
	return true
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}

func ptrInt(v int) *int       { return &v }
func ptrInt64(v int64) *int64 { return &v }
