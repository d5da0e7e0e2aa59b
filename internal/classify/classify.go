// Package classify turns raw backend event-log entries into conversation
// messages and citation records. All functions are pure and best-effort:
// malformed or unrecognized events are skipped, never reported as errors,
// because the client does not control the event stream.
package classify

import (
	"strings"

	"github.com/careguide/careguide-go/internal/models"
)

// DisclaimerMarker is the backend's end-of-turn signal: the final assistant
// message of a turn contains this sentence. Matching is substring-based.
// A structured turn_complete event kind would be sturdier; until the backend
// grows one, this is the single place the literal lives.
const DisclaimerMarker = "This guidance is educational and is not a substitute for advice from your kidney care team."

// LiteratureSearchTool is the tool identifier whose results are surfaced as
// paper citations.
const LiteratureSearchTool = "search_medical_qa"

// correlationDelimiter separates a correlation id from its per-event suffix,
// e.g. "abc::2" belongs to turn "abc".
const correlationDelimiter = "::"

// defaultAgentSources are the event source tags recognized as
// assistant-authored.
var defaultAgentSources = []string{"agent", "assistant", "supervisor"}

// Classifier inspects raw events. The zero value is not usable; construct
// with New.
type Classifier struct {
	sources map[string]struct{}
}

// New creates a Classifier. extraSources extends the built-in allow-list of
// agent-identifying source tags, typically with the configured agent id.
func New(extraSources ...string) *Classifier {
	sources := make(map[string]struct{}, len(defaultAgentSources)+len(extraSources))
	for _, s := range defaultAgentSources {
		sources[s] = struct{}{}
	}
	for _, s := range extraSources {
		if s != "" {
			sources[s] = struct{}{}
		}
	}
	return &Classifier{sources: sources}
}

// BaseCorrelationID strips the per-event suffix from a correlation id,
// returning "unknown" when the id is empty.
func BaseCorrelationID(id string) string {
	if id == "" {
		return "unknown"
	}
	if i := strings.Index(id, correlationDelimiter); i >= 0 {
		return id[:i]
	}
	return id
}

// GroupByCorrelation buckets events by base correlation id. This is what lets
// a status event be matched to its message event even when their exact
// correlation ids differ by suffix.
func GroupByCorrelation(events []models.RawEvent) map[string][]models.RawEvent {
	groups := make(map[string][]models.RawEvent)
	for _, ev := range events {
		key := BaseCorrelationID(ev.CorrelationID)
		groups[key] = append(groups[key], ev)
	}
	return groups
}

// ExtractAssistantMessages selects message events from recognized agent
// sources and converts them to conversation messages, in event order. Events
// without extractable text are skipped. Each message carries the most recent
// status reported for its turn, defaulting to "ready".
func (c *Classifier) ExtractAssistantMessages(events []models.RawEvent) []models.ConversationMessage {
	statuses := latestStatuses(events)

	var msgs []models.ConversationMessage
	for _, ev := range events {
		if ev.Kind != models.EventMessage {
			continue
		}
		if _, ok := c.sources[ev.Source]; !ok {
			continue
		}
		text, ok := extractText(ev.Data)
		if !ok {
			continue
		}

		base := BaseCorrelationID(ev.CorrelationID)
		status := models.StatusReady
		if s, ok := statuses[base]; ok {
			status = s
		}

		msgs = append(msgs, models.ConversationMessage{
			ID:            messageID(ev),
			Role:          models.RoleAssistant,
			Text:          text,
			CreatedAt:     eventTime(ev),
			Status:        status,
			CorrelationID: base,
			Attachment:    extractAttachment(ev.Data),
		})
	}
	return msgs
}

// ExtractPaperResults selects literature-search tool results and maps them to
// citation records. Mapping is defensive: missing fields stay empty, except
// the id, which falls back to a synthesized unique key.
func (c *Classifier) ExtractPaperResults(events []models.RawEvent) []models.CitationRecord {
	var papers []models.CitationRecord
	for _, ev := range events {
		if ev.Kind != models.EventTool {
			continue
		}
		payload, ok := decodeObject(ev.Data)
		if !ok {
			continue
		}
		if toolName(payload) != LiteratureSearchTool {
			continue
		}
		for _, item := range unwrapResultList(payload) {
			if rec, ok := mapPaper(item); ok {
				papers = append(papers, rec)
			}
		}
	}
	return papers
}

// HasDisclaimer reports whether any of the messages contains the
// end-of-turn disclaimer.
func HasDisclaimer(msgs []models.ConversationMessage) bool {
	for _, m := range msgs {
		if strings.Contains(m.Text, DisclaimerMarker) {
			return true
		}
	}
	return false
}

// latestStatuses maps base correlation id to the status carried by the last
// status event of the batch for that turn.
func latestStatuses(events []models.RawEvent) map[string]string {
	statuses := make(map[string]string)
	for _, ev := range events {
		if ev.Kind != models.EventStatus {
			continue
		}
		if s, ok := extractStatus(ev.Data); ok {
			statuses[BaseCorrelationID(ev.CorrelationID)] = s
		}
	}
	return statuses
}
