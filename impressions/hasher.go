// Package impressions transforms raw flag evaluations into the impressions
// actually shipped upstream: an LRU observer annotates repeats, a bucketed
// counter and a unique-keys tracker accumulate aggregates, and a pluggable
// strategy decides what is emitted.
package impressions

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"flagclient/models"
)

// Fingerprint identifies "the same evaluation outcome": key, feature,
// treatment, label and change number. Time fields are excluded on purpose.
func Fingerprint(imp models.Impression) uint64 {
	digest := xxhash.New()
	writeField(digest, imp.KeyName)
	writeField(digest, imp.FeatureName)
	writeField(digest, imp.Treatment)
	writeField(digest, imp.Label)
	writeField(digest, strconv.FormatInt(imp.ChangeNumber, 10))
	return digest.Sum64()
}

func writeField(digest *xxhash.Digest, field string) {
	// Write on xxhash.Digest never returns an error
	_, _ = digest.WriteString(field)
	_, _ = digest.WriteString(":")
}
