package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
	"github.com/classboard/notification-engine/internal/repository"
	"go.uber.org/zap"
)

// StatusCounts is a status breakdown of a delivery set. Sent counts
// deliveries confirmed or awaiting confirmation; Failed counts only terminal
// failures, not deliveries still inside the retry ladder.
type StatusCounts struct {
	Total     int `json:"total"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Retrying  int `json:"retrying"`
	Pending   int `json:"pending"`
	Cancelled int `json:"cancelled"`
	Expired   int `json:"expired"`
}

// DeliveryRate is the percentage of attempted deliveries that reached SENT
// or DELIVERED. Cancelled and expired deliveries were never attempted and
// stay out of the denominator.
func (c StatusCounts) DeliveryRate() float64 {
	attempted := c.Total - c.Cancelled - c.Expired
	if attempted <= 0 {
		return 0
	}
	return float64(c.Sent+c.Delivered) / float64(attempted) * 100
}

// DailyTrend is one day's delivery volume.
type DailyTrend struct {
	Date   string `json:"date"` // YYYY-MM-DD, UTC
	Counts StatusCounts
}

// Report aggregates delivery outcomes over a time range.
type Report struct {
	From                       time.Time                                `json:"from"`
	To                         time.Time                                `json:"to"`
	Overall                    StatusCounts                             `json:"overall"`
	OverallDeliveryRate        float64                                  `json:"overallDeliveryRate"`
	ByChannel                  map[domain.Channel]StatusCounts          `json:"byChannel"`
	ByType                     map[domain.NotificationType]StatusCounts `json:"byType"`
	AverageDeliveryTimeSeconds float64                                  `json:"averageDeliveryTimeSeconds"`
	FailureReasons             map[string]int                           `json:"failureReasons"`
	DailyTrends                []DailyTrend                             `json:"dailyTrends"`
}

// AnalyticsService aggregates delivery outcomes for reporting. Aggregation
// scans the range in one pass; the result is a point-in-time snapshot, not a
// live view.
type AnalyticsService struct {
	deliveries repository.DeliveryRepository
	logger     *zap.Logger
}

func NewAnalyticsService(deliveries repository.DeliveryRepository, logger *zap.Logger) (*AnalyticsService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{deliveries: deliveries, logger: logger}, nil
}

// Aggregate builds a delivery report for [from, to).
func (s *AnalyticsService) Aggregate(ctx context.Context, from, to time.Time) (*Report, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: report range end must be after start", domain.ErrValidation)
	}

	deliveries, err := s.deliveries.GetInRange(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to load deliveries for report: %w", err)
	}

	report := &Report{
		From:           from.UTC(),
		To:             to.UTC(),
		ByChannel:      make(map[domain.Channel]StatusCounts),
		ByType:         make(map[domain.NotificationType]StatusCounts),
		FailureReasons: make(map[string]int),
	}

	daily := make(map[string]StatusCounts)
	var deliveryTimeTotal time.Duration
	deliveryTimeSamples := 0

	for i := range deliveries {
		delivery := &deliveries[i]

		tally(&report.Overall, delivery)

		channelCounts := report.ByChannel[delivery.Channel]
		tally(&channelCounts, delivery)
		report.ByChannel[delivery.Channel] = channelCounts

		typeCounts := report.ByType[delivery.NotificationType]
		tally(&typeCounts, delivery)
		report.ByType[delivery.NotificationType] = typeCounts

		day := delivery.CreatedAt.UTC().Format("2006-01-02")
		dayCounts := daily[day]
		tally(&dayCounts, delivery)
		daily[day] = dayCounts

		if delivery.Status == domain.DeliveryFailed && delivery.IsTerminal() && delivery.FailureReason != nil {
			report.FailureReasons[*delivery.FailureReason]++
		}

		if delivery.SentAt != nil {
			deliveryTimeTotal += delivery.SentAt.Sub(delivery.CreatedAt)
			deliveryTimeSamples++
		}
	}

	report.OverallDeliveryRate = report.Overall.DeliveryRate()
	if deliveryTimeSamples > 0 {
		report.AverageDeliveryTimeSeconds = deliveryTimeTotal.Seconds() / float64(deliveryTimeSamples)
	}

	days := make([]string, 0, len(daily))
	for day := range daily {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		report.DailyTrends = append(report.DailyTrends, DailyTrend{Date: day, Counts: daily[day]})
	}

	return report, nil
}

func tally(counts *StatusCounts, delivery *domain.Delivery) {
	counts.Total++
	switch delivery.Status {
	case domain.DeliverySent:
		counts.Sent++
	case domain.DeliveryDelivered:
		counts.Delivered++
	case domain.DeliveryFailed:
		if delivery.IsTerminal() {
			counts.Failed++
		} else {
			counts.Retrying++
		}
	case domain.DeliveryPending, domain.DeliveryProcessing, domain.DeliveryScheduled:
		counts.Pending++
	case domain.DeliveryCancelled:
		counts.Cancelled++
	case domain.DeliveryExpired:
		counts.Expired++
	}
}
