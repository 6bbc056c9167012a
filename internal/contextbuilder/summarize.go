package contextbuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/getmira/mira-core/pkg/models"
)

// Thresholds for the multi-level summarizer (spec §4.4.3): "promotions
// are triggered by simple thresholds and run out-of-band" — callers
// invoke MaybeSummarize from a background sweep, never from the
// request path Build() serves.
const (
	level1Threshold  = 50 // unsummarized messages before rolling up a session
	combineThreshold = 5  // lower-level summaries before combining into the next level
)

// MaybeSummarize rolls up old messages for sessionID into an L1
// summary when the unsummarized backlog crosses level1Threshold, then
// combines L1 summaries into an L2 (daily) and L2s into an L3 (weekly)
// whenever combineThreshold of the lower level have accumulated for
// projectID. It is a no-op below every threshold.
func (b *Builder) MaybeSummarize(ctx context.Context, sessionID, projectID string) error {
	if err := b.maybeSummarizeL1(ctx, sessionID, projectID); err != nil {
		return err
	}
	if err := b.maybeCombine(ctx, projectID, models.SummaryLevel1, models.SummaryLevel2); err != nil {
		return err
	}
	return b.maybeCombine(ctx, projectID, models.SummaryLevel2, models.SummaryLevel3)
}

func (b *Builder) maybeSummarizeL1(ctx context.Context, sessionID, projectID string) error {
	n, err := b.Store.UnsummarizedCount(ctx, sessionID)
	if err != nil {
		return err
	}
	if n < level1Threshold {
		return nil
	}
	start, end, ok, err := b.Store.OldestUnsummarizedRange(ctx, sessionID, level1Threshold)
	if err != nil || !ok {
		return err
	}
	msgs, err := b.Store.MessagesByRange(ctx, sessionID, start, end)
	if err != nil {
		return err
	}
	summary := &models.Summary{
		ID:                fmt.Sprintf("sum-l1-%s-%d-%d", sessionID, start, end),
		ProjectID:         projectID,
		Level:             models.SummaryLevel1,
		Text:              digestMessages(msgs),
		MessageRangeStart: start,
		MessageRangeEnd:   end,
		CreatedAt:         b.Now(),
	}
	if err := b.Store.InsertSummary(ctx, summary); err != nil {
		return err
	}
	return b.Store.MarkSummarized(ctx, sessionID, start, end)
}

func (b *Builder) maybeCombine(ctx context.Context, projectID string, from, to models.SummaryLevel) error {
	if projectID == "" {
		return nil
	}
	lower, err := b.Store.SummariesByLevel(ctx, projectID, from)
	if err != nil {
		return err
	}
	if len(lower) < combineThreshold {
		return nil
	}
	batch := lower[:combineThreshold]
	combined := &models.Summary{
		ID:                fmt.Sprintf("sum-l%d-%s-%d", to, projectID, b.Now().UnixNano()),
		ProjectID:         projectID,
		Level:             to,
		Text:              digestSummaries(batch),
		MessageRangeStart: batch[0].MessageRangeStart,
		MessageRangeEnd:   batch[len(batch)-1].MessageRangeEnd,
		CreatedAt:         b.Now(),
	}
	if err := b.Store.InsertSummary(ctx, combined); err != nil {
		return err
	}
	ids := make([]string, len(batch))
	for i, s := range batch {
		ids[i] = s.ID
	}
	return b.Store.DeleteSummaries(ctx, ids)
}

// digestMessages produces a deterministic, dependency-free rollup of a
// message range: one line per turn. A production deployment may prefer
// routing this through an LLM call for a denser summary; the Operation
// Engine does not require one to function.
func digestMessages(msgs []*models.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, truncate(m.Content, 200))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func digestSummaries(summaries []*models.Summary) string {
	var sb strings.Builder
	for _, s := range summaries {
		sb.WriteString(truncate(s.Text, 500))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
