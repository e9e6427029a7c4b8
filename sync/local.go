package sync

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"flagclient/api"
	"flagclient/models"
	"flagclient/sanitize"
	"flagclient/storage"
)

// LocalhostMode selects the on-disk format of the split file.
type LocalhostMode int

const (
	// LocalhostLegacy is the line-oriented "feature treatment" format.
	LocalhostLegacy LocalhostMode = iota
	// LocalhostYAML is a sequence of single-key feature mappings.
	LocalhostYAML
	// LocalhostJSON is a full splitChanges document.
	LocalhostJSON
)

var (
	legacyCommentRe    = regexp.MustCompile(`^#.*$`)
	legacyDefinitionRe = regexp.MustCompile(`^(?P<feature>[\w_-]+)\s+(?P<treatment>[\w_-]+)$`)
)

// Synthetic values used for splits built from legacy and YAML files.
const (
	localSplitChangeNumber = 123
	localSplitAllocSeed    = 123456
	localSplitSeed         = 321654
	localConditionLabel    = "some_other_label"
)

// LocalSynchronizer loads split definitions from a file instead of the
// backend. All failure kinds surface as the same *api.Error the remote
// synchronizer produces, so callers handle one error kind.
type LocalSynchronizer struct {
	filename  string
	storage   storage.SplitStorage
	mode      LocalhostMode
	sanitizer *sanitize.Sanitizer
	logger    *logrus.Logger

	currentJSONSha string
}

// NewLocalSynchronizer builds a local-mode synchronizer for the given file.
func NewLocalSynchronizer(filename string, splitStorage storage.SplitStorage, mode LocalhostMode, logger *logrus.Logger) *LocalSynchronizer {
	return &LocalSynchronizer{
		filename:  filename,
		storage:   splitStorage,
		mode:      mode,
		sanitizer: sanitize.New(logger),
		logger:    logger,
	}
}

// SynchronizeSplits reloads the file into storage. The till argument exists
// for interface parity with the remote synchronizer and is ignored.
func (s *LocalSynchronizer) SynchronizeSplits(ctx context.Context, _ *int64) ([]string, error) {
	s.logger.Debug("synchronizing splits from file")
	var segments []string
	var err error
	if s.mode == LocalhostJSON {
		segments, err = s.synchronizeJSON(ctx)
	} else {
		err = s.synchronizeLegacy(ctx)
	}
	if err != nil {
		s.logger.Errorf("local split sync failed: %v", err)
		return nil, api.NewError("error fetching splits information", 0, err)
	}
	return segments, nil
}

// synchronizeLegacy handles the legacy and YAML formats: load the file, put
// every parsed split and remove the ones no longer present.
func (s *LocalSynchronizer) synchronizeLegacy(ctx context.Context) error {
	var fetched map[string]models.Split
	var err error
	lower := strings.ToLower(s.filename)
	if s.mode == LocalhostYAML || strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		fetched, err = s.readSplitsFromYAMLFile()
	} else {
		fetched, err = s.readSplitsFromLegacyFile()
	}
	if err != nil {
		return err
	}

	names, err := s.storage.SplitNames(ctx)
	if err != nil {
		return err
	}
	for _, split := range fetched {
		if err := s.storage.Put(ctx, split); err != nil {
			return err
		}
	}
	for _, name := range names {
		if _, ok := fetched[name]; !ok {
			if err := s.storage.Remove(ctx, name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *LocalSynchronizer) readSplitsFromLegacyFile() (map[string]models.Split, error) {
	file, err := os.Open(s.filename)
	if err != nil {
		return nil, fmt.Errorf("error parsing file %s, make sure it's readable: %w", s.filename, err)
	}
	defer file.Close()

	splits := make(map[string]models.Split)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || legacyCommentRe.MatchString(line) {
			continue
		}
		match := legacyDefinitionRe.FindStringSubmatch(line)
		if match == nil {
			s.logger.Warnf("invalid line in local split definition file: %q", line)
			continue
		}
		feature, treatment := match[1], match[2]
		splits[feature] = makeLocalSplit(feature, []models.Condition{makeAllKeysCondition(treatment)}, nil)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error parsing file %s, make sure it's readable: %w", s.filename, err)
	}
	return splits, nil
}

// localYAMLEntry is one statement of the YAML format:
// `- feature: {treatment: on, keys: [k1], config: "{...}"}`.
type localYAMLEntry struct {
	Treatment string      `yaml:"treatment"`
	Keys      interface{} `yaml:"keys"`
	Config    string      `yaml:"config"`
}

func (s *LocalSynchronizer) readSplitsFromYAMLFile() (map[string]models.Split, error) {
	raw, err := os.ReadFile(s.filename)
	if err != nil {
		return nil, fmt.Errorf("error parsing file %s, make sure it's readable: %w", s.filename, err)
	}

	var parsed []map[string]localYAMLEntry
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("error parsing yaml file %s: %w", s.filename, err)
	}

	type group struct {
		whitelist []models.Condition
		allKeys   []models.Condition
		configs   map[string]string
	}
	groups := make(map[string]*group)
	for _, statement := range parsed {
		for feature, data := range statement {
			g, ok := groups[feature]
			if !ok {
				g = &group{configs: make(map[string]string)}
				groups[feature] = g
			}
			if keys := yamlKeyList(data.Keys); keys != nil {
				g.whitelist = append(g.whitelist, makeWhitelistCondition(keys, data.Treatment))
			} else {
				g.allKeys = append(g.allKeys, makeAllKeysCondition(data.Treatment))
			}
			if data.Config != "" {
				g.configs[data.Treatment] = data.Config
			}
		}
	}

	splits := make(map[string]models.Split, len(groups))
	for feature, g := range groups {
		// whitelist conditions must precede all-keys ones: evaluation stops
		// at the first matching condition
		conditions := append(g.whitelist, g.allKeys...)
		configs := g.configs
		if len(configs) == 0 {
			configs = nil
		}
		splits[feature] = makeLocalSplit(feature, conditions, configs)
	}
	return splits, nil
}

// yamlKeyList promotes a scalar key to a singleton list; nil means the
// statement had no keys and becomes an all-keys condition.
func yamlKeyList(keys interface{}) []string {
	switch v := keys.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprintf("%v", item))
			}
		}
		return out
	default:
		return []string{fmt.Sprintf("%v", v)}
	}
}

// synchronizeJSON handles a full splitChanges document on disk. A file whose
// splits array hashes identically to the previous read is a no-op.
func (s *LocalSynchronizer) synchronizeJSON(ctx context.Context) ([]string, error) {
	changes, rawSplits, err := s.readSplitsFromJSONFile()
	if err != nil {
		return nil, err
	}

	fetchedSha := hashSplitsPayload(rawSplits)
	if fetchedSha == s.currentJSONSha {
		return nil, nil
	}
	s.currentJSONSha = fetchedSha

	changeNumber, err := s.storage.ChangeNumber(ctx)
	if err != nil {
		return nil, err
	}
	if changeNumber > changes.Till {
		return nil, nil
	}

	var segments []string
	for _, split := range changes.Splits {
		if split.Status == models.StatusActive {
			if err := s.storage.Put(ctx, split); err != nil {
				return nil, err
			}
			s.logger.Debugf("split %s is updated", split.Name)
			segments = append(segments, split.SegmentNames()...)
		} else {
			if err := s.storage.Remove(ctx, split.Name); err != nil {
				return nil, err
			}
		}
	}
	if err := s.storage.SetChangeNumber(ctx, changes.Till); err != nil {
		return nil, err
	}
	return segments, nil
}

// readSplitsFromJSONFile decodes and sanitizes the document, returning the
// sanitized changes plus the raw (pre-sanitization) splits payload used for
// the change detection hash.
func (s *LocalSynchronizer) readSplitsFromJSONFile() (*models.SplitChanges, []byte, error) {
	raw, err := os.ReadFile(s.filename)
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing file %s, make sure it's readable: %w", s.filename, err)
	}

	var doc struct {
		Splits json.RawMessage `json:"splits"`
		Since  *int64          `json:"since"`
		Till   *int64          `json:"till"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("error reading splits from json: %w", err)
	}

	var rawSplits []sanitize.RawSplit
	if len(doc.Splits) > 0 {
		if err := json.Unmarshal(doc.Splits, &rawSplits); err != nil {
			return nil, nil, fmt.Errorf("error reading splits from json: %w", err)
		}
	}

	changes, err := s.sanitizer.Document(&sanitize.RawDocument{
		Splits: rawSplits,
		Since:  doc.Since,
		Till:   doc.Till,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error reading splits from json: %w", err)
	}
	return changes, doc.Splits, nil
}

// hashSplitsPayload hashes the pre-sanitization splits array after a stable
// stringification of the raw bytes.
func hashSplitsPayload(rawSplits []byte) string {
	if len(rawSplits) == 0 {
		rawSplits = []byte("[]")
	}
	var compacted bytes.Buffer
	if err := json.Compact(&compacted, rawSplits); err != nil {
		compacted.Reset()
		compacted.Write(rawSplits)
	}
	sum := sha256.Sum256(compacted.Bytes())
	return hex.EncodeToString(sum[:])
}

func makeLocalSplit(name string, conditions []models.Condition, configs map[string]string) models.Split {
	return models.Split{
		Name:                  name,
		TrafficTypeName:       "user",
		TrafficAllocation:     100,
		TrafficAllocationSeed: localSplitAllocSeed,
		Seed:                  localSplitSeed,
		Status:                models.StatusActive,
		Killed:                false,
		DefaultTreatment:      "control",
		ChangeNumber:          localSplitChangeNumber,
		Algo:                  2,
		Conditions:            conditions,
		Configurations:        configs,
	}
}

func makeAllKeysCondition(treatment string) models.Condition {
	return models.Condition{
		ConditionType: models.ConditionTypeWhitelist,
		MatcherGroup: models.MatcherGroup{
			Combiner: "AND",
			Matchers: []models.Matcher{
				{MatcherType: models.MatcherTypeAllKeys, Negate: false},
			},
		},
		Partitions: []models.Partition{{Treatment: treatment, Size: 100}},
		Label:      localConditionLabel,
	}
}

func makeWhitelistCondition(whitelist []string, treatment string) models.Condition {
	return models.Condition{
		ConditionType: models.ConditionTypeWhitelist,
		MatcherGroup: models.MatcherGroup{
			Combiner: "AND",
			Matchers: []models.Matcher{
				{
					MatcherType: models.MatcherTypeWhitelist,
					Negate:      false,
					Whitelist:   &models.WhitelistData{Whitelist: whitelist},
				},
			},
		},
		Partitions: []models.Partition{{Treatment: treatment, Size: 100}},
		Label:      localConditionLabel,
	}
}
