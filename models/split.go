// Package models declares the wire and storage shapes shared by the
// synchronizer, the storages and the impressions pipeline.
package models

// Split statuses accepted from the backend.
const (
	StatusActive   = "ACTIVE"
	StatusArchived = "ARCHIVED"
)

// Condition types.
const (
	ConditionTypeWhitelist = "WHITELIST"
	ConditionTypeRollout   = "ROLLOUT"
)

// Matcher types the core needs to recognize.
const (
	MatcherTypeAllKeys   = "ALL_KEYS"
	MatcherTypeWhitelist = "WHITELIST"
	MatcherTypeInSegment = "IN_SEGMENT"
)

// KeySelector identifies which part of the evaluation key a matcher reads.
type KeySelector struct {
	TrafficType string  `json:"trafficType"`
	Attribute   *string `json:"attribute"`
}

// WhitelistData carries the explicit key list of a WHITELIST matcher.
type WhitelistData struct {
	Whitelist []string `json:"whitelist"`
}

// SegmentData names the segment referenced by an IN_SEGMENT matcher.
type SegmentData struct {
	SegmentName string `json:"segmentName"`
}

// Matcher is a single predicate inside a matcher group. Only the fields the
// core inspects are modeled; the evaluator owns the rest of the matcher
// payloads and receives them untouched.
type Matcher struct {
	KeySelector        *KeySelector   `json:"keySelector,omitempty"`
	MatcherType        string         `json:"matcherType"`
	Negate             bool           `json:"negate"`
	Whitelist          *WhitelistData `json:"whitelistMatcherData,omitempty"`
	UserDefinedSegment *SegmentData   `json:"userDefinedSegmentMatcherData,omitempty"`
}

// MatcherGroup combines matchers under a single combiner.
type MatcherGroup struct {
	Combiner string    `json:"combiner"`
	Matchers []Matcher `json:"matchers"`
}

// Partition assigns a share of traffic to a treatment.
type Partition struct {
	Treatment string `json:"treatment"`
	Size      int    `json:"size"`
}

// Condition is one ordered rule of a split.
type Condition struct {
	ConditionType string       `json:"conditionType"`
	MatcherGroup  MatcherGroup `json:"matcherGroup"`
	Partitions    []Partition  `json:"partitions"`
	Label         string       `json:"label"`
}

// Split is a normalized feature-flag definition.
type Split struct {
	Name                  string            `json:"name"`
	TrafficTypeName       string            `json:"trafficTypeName"`
	TrafficAllocation     int               `json:"trafficAllocation"`
	TrafficAllocationSeed int64             `json:"trafficAllocationSeed"`
	Seed                  int64             `json:"seed"`
	Status                string            `json:"status"`
	Killed                bool              `json:"killed"`
	DefaultTreatment      string            `json:"defaultTreatment"`
	ChangeNumber          int64             `json:"changeNumber"`
	Algo                  int               `json:"algo"`
	Conditions            []Condition       `json:"conditions"`
	Configurations        map[string]string `json:"configurations,omitempty"`
}

// SegmentNames returns the segments referenced by this split's matchers.
func (s *Split) SegmentNames() []string {
	var names []string
	for _, condition := range s.Conditions {
		for _, matcher := range condition.MatcherGroup.Matchers {
			if matcher.MatcherType == MatcherTypeInSegment && matcher.UserDefinedSegment != nil {
				names = append(names, matcher.UserDefinedSegment.SegmentName)
			}
		}
	}
	return names
}

// SplitChanges is the payload of the splitChanges endpoint. Convergence is
// reached when Since == Till.
type SplitChanges struct {
	Splits []Split `json:"splits"`
	Since  int64   `json:"since"`
	Till   int64   `json:"till"`
}
