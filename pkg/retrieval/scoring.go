package retrieval

import (
	"sort"
	"time"

	"github.com/omnii-ai/brainmem/pkg/brain"
)

const (
	// The working window spans three rolling weeks around now: two weeks
	// back and one week forward, so scheduled future messages surface too.
	workingLookback  = 14 * 24 * time.Hour
	workingLookahead = 7 * 24 * time.Hour

	recentlyModifiedWindow = 2 * time.Hour
	episodicWindow         = 168 * time.Hour

	semanticActivationThreshold = 0.3

	bonusPreviousWeek     = 0.1
	bonusCurrentWeek      = 0.3
	bonusNextWeek         = 0.2
	bonusRecentlyModified = 0.4

	weightWorking  = 0.4
	weightEpisodic = 0.35
	weightSemantic = 0.25

	// Expected tier sizes used as density denominators. Working memory's
	// denominator is the configured size instead.
	expectedEpisodicThreads = 5
	expectedActiveConcepts  = 10
)

func bucketOf(ts, now time.Time) brain.TimeBucket {
	if ts.After(now) {
		return brain.BucketNextWeek
	}

	if ts.Before(now.Add(-7 * 24 * time.Hour)) {
		return brain.BucketPreviousWeek
	}

	return brain.BucketCurrentWeek
}

func bucketBonus(bucket brain.TimeBucket) float64 {
	switch bucket {
	case brain.BucketPreviousWeek:
		return bonusPreviousWeek
	case brain.BucketCurrentWeek:
		return bonusCurrentWeek
	case brain.BucketNextWeek:
		return bonusNextWeek
	}

	return 0
}

// scoreMessages buckets, scores, and ranks the working-window messages.
// The returned stats count every in-window message, not just the kept ones.
func scoreMessages(msgs []brain.ChatMessage, now time.Time, size int) ([]brain.ScoredMessage, brain.TimeWindowStats) {
	scored := make([]brain.ScoredMessage, 0, len(msgs))

	var stats brain.TimeWindowStats
	for _, msg := range msgs {
		bucket := bucketOf(msg.Timestamp, now)
		switch bucket {
		case brain.BucketPreviousWeek:
			stats.PreviousWeek++
		case brain.BucketCurrentWeek:
			stats.CurrentWeek++
		case brain.BucketNextWeek:
			stats.NextWeek++
		}

		recent := !msg.LastModified.Before(now.Add(-recentlyModifiedWindow))

		score := msg.ImportanceScore + bucketBonus(bucket)
		if recent {
			score += bonusRecentlyModified
		}

		scored = append(scored, brain.ScoredMessage{
			ChatMessage:      msg,
			Bucket:           bucket,
			RecentlyModified: recent,
			CompositeScore:   score,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].CompositeScore != scored[j].CompositeScore {
			return scored[i].CompositeScore > scored[j].CompositeScore
		}

		return scored[i].Timestamp.After(scored[j].Timestamp)
	})

	if len(scored) > size {
		scored = scored[:size]
	}

	return scored, stats
}

// groupThreads buckets episodic memories into conversation threads keyed on
// channel plus source identifier. Each thread's semantic weight is the mean
// consolidation strength of its member edges.
func groupThreads(memories []brain.Memory, strengths map[string][]float64) []brain.EpisodicThread {
	type key struct {
		channel brain.Channel
		source  string
	}

	order := make([]key, 0)
	byKey := make(map[key][]brain.Memory)
	for _, mem := range memories {
		k := key{channel: mem.Channel, source: mem.SourceIdentifier}
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], mem)
	}

	threads := make([]brain.EpisodicThread, 0, len(order))
	for _, k := range order {
		members := byKey[k]

		var sum float64
		var count int
		for _, mem := range members {
			for _, strength := range strengths[mem.ID] {
				sum += strength
				count++
			}
		}

		weight := 0.0
		if count > 0 {
			weight = sum / float64(count)
		}

		threads = append(threads, brain.EpisodicThread{
			Channel:          k.channel,
			SourceIdentifier: k.source,
			Memories:         members,
			SemanticWeight:   weight,
		})
	}

	return threads
}

func density(count, expected int) float64 {
	if expected <= 0 {
		return 0
	}

	return brain.ClampUnit(float64(count) / float64(expected))
}

// memoryStrength blends the three tier densities into one scalar.
func memoryStrength(workingCount, workingSize, threadCount, conceptCount int) float64 {
	return weightWorking*density(workingCount, workingSize) +
		weightEpisodic*density(threadCount, expectedEpisodicThreads) +
		weightSemantic*density(conceptCount, expectedActiveConcepts)
}

// consolidationScore measures how settled the episodic tier is: consolidated
// memories count in full, consolidating ones at half weight.
func consolidationScore(memories []brain.Memory) float64 {
	if len(memories) == 0 {
		return 0
	}

	var sum float64
	for _, mem := range memories {
		switch mem.Status {
		case brain.StatusConsolidated:
			sum += 1.0
		case brain.StatusConsolidating:
			sum += 0.5
		}
	}

	return sum / float64(len(memories))
}
