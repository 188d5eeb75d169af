package export

import (
	"context"
	"math"
	"sort"
	"time"
)

const timeFormat = "2006-01-02 15:04:05"

// HourlySeries is per-type message counts bucketed by wall-clock hour.
type HourlySeries struct {
	X        []string           `json:"x"`
	Types    []string           `json:"types"`
	Data     map[string][]int64 `json:"data"`
	Metadata HourlyMetadata     `json:"metadata"`
}

type HourlyMetadata struct {
	TotalMessages  int64                  `json:"total_messages"`
	MessagesByType map[string]interface{} `json:"messages_by_type"`
	GeneratedAt    string                 `json:"generated_at"`
}

// SendersSeries counts distinct logical and physical senders per hour.
type SendersSeries struct {
	X                     []string        `json:"x"`
	UniqueSenders         []int64         `json:"unique_senders"`
	UniquePhysicalSenders []int64         `json:"unique_physical_senders"`
	Metadata              SendersMetadata `json:"metadata"`
}

type SendersMetadata struct {
	TotalUniqueSenders                  int64   `json:"total_unique_senders"`
	TotalUniquePhysicalSenders          int64   `json:"total_unique_physical_senders"`
	AverageUniqueSendersPerHour         float64 `json:"average_unique_senders_per_hour"`
	AverageUniquePhysicalSendersPerHour float64 `json:"average_unique_physical_senders_per_hour"`
	GeneratedAt                         string  `json:"generated_at"`
}

// BuildHourlySeries derives both series over the last horizonHours hours.
// Buckets are aligned to wall-clock hour boundaries and zero-filled, so
// the series always has exactly horizonHours entries.
func (e *Engine) BuildHourlySeries(ctx context.Context, horizonHours int) (*HourlySeries, *SendersSeries, error) {
	nowT := e.now()
	curHour := nowT.Truncate(time.Hour)
	firstBucket := curHour.Add(-time.Duration(horizonHours-1) * time.Hour)

	msgs, err := e.store.QueryMessages(ctx, firstBucket.Unix(), nowT.Unix())
	if err != nil {
		return nil, nil, err
	}

	labels := make([]string, horizonHours)
	for i := 0; i < horizonHours; i++ {
		labels[i] = firstBucket.Add(time.Duration(i) * time.Hour).Format("2006-01-02 15:04")
	}

	typeCounts := make(map[string][]int64)
	senders := make([]map[int64]struct{}, horizonHours)
	physical := make([]map[int64]struct{}, horizonHours)
	for i := range senders {
		senders[i] = make(map[int64]struct{})
		physical[i] = make(map[int64]struct{})
	}
	totalSenders := make(map[int64]struct{})
	totalPhysical := make(map[int64]struct{})

	var total int64
	for _, m := range msgs {
		bucket := int((m.Timestamp - firstBucket.Unix()) / 3600)
		if bucket < 0 || bucket >= horizonHours {
			continue
		}

		total++
		if _, ok := typeCounts[m.Type]; !ok {
			typeCounts[m.Type] = make([]int64, horizonHours)
		}
		typeCounts[m.Type][bucket]++

		senders[bucket][m.Sender] = struct{}{}
		physical[bucket][m.PhysicalSender] = struct{}{}
		totalSenders[m.Sender] = struct{}{}
		totalPhysical[m.PhysicalSender] = struct{}{}
	}

	typeNames := make([]string, 0, len(typeCounts))
	for name := range typeCounts {
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)

	// Percentages are against the total over the whole horizon, not per
	// bucket.
	byType := make(map[string]interface{}, len(typeNames)*2)
	for _, name := range typeNames {
		var n int64
		for _, c := range typeCounts[name] {
			n += c
		}
		byType[name] = n
		byType[name+"_percentage"] = round2(float64(n) * 100 / float64(total))
	}

	generatedAt := nowT.Format(timeFormat)

	hourly := &HourlySeries{
		X:     labels,
		Types: typeNames,
		Data:  typeCounts,
		Metadata: HourlyMetadata{
			TotalMessages:  total,
			MessagesByType: byType,
			GeneratedAt:    generatedAt,
		},
	}

	uniqueSenders := make([]int64, horizonHours)
	uniquePhysical := make([]int64, horizonHours)
	var senderSum, physicalSum int64
	for i := 0; i < horizonHours; i++ {
		uniqueSenders[i] = int64(len(senders[i]))
		uniquePhysical[i] = int64(len(physical[i]))
		senderSum += uniqueSenders[i]
		physicalSum += uniquePhysical[i]
	}

	sendersSeries := &SendersSeries{
		X:                     labels,
		UniqueSenders:         uniqueSenders,
		UniquePhysicalSenders: uniquePhysical,
		Metadata: SendersMetadata{
			TotalUniqueSenders:                  int64(len(totalSenders)),
			TotalUniquePhysicalSenders:          int64(len(totalPhysical)),
			AverageUniqueSendersPerHour:         round2(float64(senderSum) / float64(horizonHours)),
			AverageUniquePhysicalSendersPerHour: round2(float64(physicalSum) / float64(horizonHours)),
			GeneratedAt:                         generatedAt,
		},
	}

	return hourly, sendersSeries, nil
}

func round2(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Round(v*100) / 100
}
