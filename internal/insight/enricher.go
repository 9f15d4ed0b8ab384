package insight

import (
	"context"
	"fmt"
	"time"

	"github.com/eljaska/telara/internal/store"
	"github.com/eljaska/telara/pkg/llm"
	"github.com/eljaska/telara/pkg/logging"
	"github.com/eljaska/telara/pkg/models"
)

const enrichTimeout = 90 * time.Second

// Broadcaster delivers the enriched alert to connected clients.
type Broadcaster interface {
	BroadcastAlertEnriched(alert *models.AlertEvent)
}

// Enricher generates short AI insights for alerts, persists them and
// re-broadcasts the enriched alert. Enrichment is best-effort: failures are
// logged and the original alert stands on its own.
type Enricher struct {
	provider llm.Provider
	store    *store.Store
	hub      Broadcaster
	logger   logging.Logger
}

func NewEnricher(provider llm.Provider, st *store.Store, hub Broadcaster, logger logging.Logger) *Enricher {
	return &Enricher{provider: provider, store: st, hub: hub, logger: logger}
}

// EnrichAsync runs enrichment on its own goroutine so alert delivery is never
// blocked on the model.
func (e *Enricher) EnrichAsync(alert *models.AlertEvent) {
	if e == nil || e.provider == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), enrichTimeout)
		defer cancel()
		if err := e.Enrich(ctx, alert); err != nil {
			e.logger.WithError(err).WithFields(logging.Fields{
				"alert_id": alert.AlertID,
			}).Warn("Alert enrichment failed")
		}
	}()
}

// Enrich builds the context prompt, calls the provider and publishes the
// result.
func (e *Enricher) Enrich(ctx context.Context, alert *models.AlertEvent) error {
	prompt := e.buildPrompt(ctx, alert)

	insight, err := e.provider.Complete(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return fmt.Errorf("generate insight: %w", err)
	}
	if insight == "" {
		return nil
	}

	if err := e.store.UpdateAlertInsight(ctx, alert.AlertID, insight); err != nil {
		e.logger.WithError(err).WithFields(logging.Fields{
			"alert_id": alert.AlertID,
		}).Warn("Failed to persist alert insight")
	}

	enriched := *alert
	enriched.Insight = insight
	if e.hub != nil {
		e.hub.BroadcastAlertEnriched(&enriched)
	}
	return nil
}

// buildPrompt assembles the alert plus a 30-minute vitals summary and the
// user's baseline. Context lookups are best-effort.
func (e *Enricher) buildPrompt(ctx context.Context, alert *models.AlertEvent) string {
	vitalsSummary := "no recent data"
	if vitals, err := e.store.RecentVitals(ctx, alert.UserID, 30); err == nil && len(vitals) > 0 {
		if len(vitals) > 20 {
			vitals = vitals[:20]
		}
		var hrSum, hrvSum float64
		var hrN, hrvN int
		for _, v := range vitals {
			if v.HeartRate != nil {
				hrSum += *v.HeartRate
				hrN++
			}
			if v.HRVMs != nil {
				hrvSum += *v.HRVMs
				hrvN++
			}
		}
		vitalsSummary = fmt.Sprintf("%d readings in the last 30 minutes", len(vitals))
		if hrN > 0 {
			vitalsSummary += fmt.Sprintf(", avg HR %.1f bpm", hrSum/float64(hrN))
		}
		if hrvN > 0 {
			vitalsSummary += fmt.Sprintf(", avg HRV %.1f ms", hrvSum/float64(hrvN))
		}
	}

	baselineSummary := "Not established"
	if baseline, ok, err := e.store.GetBaseline(ctx, alert.UserID); err == nil && ok {
		baselineSummary = fmt.Sprintf("HR %.1f bpm, HRV %.1f ms (%d data points)",
			baseline.MeanHR, baseline.MeanHRV, baseline.DataPoints)
	}

	return fmt.Sprintf(`Based on this health alert, generate a brief 2-3 sentence insight for the user:

Alert Type: %s
Severity: %s
Description: %s

Context:
- Recent vitals: %s
- User baseline: %s

Provide:
1. A brief explanation of what this means
2. One specific action they can take right now

Keep it concise and actionable. Don't be alarmist but be direct.`,
		alert.AlertType, alert.Severity, alert.Description, vitalsSummary, baselineSummary)
}
