package classify

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/careguide/careguide-go/internal/models"
)

// textFields are the payload field names that may carry display text, in
// priority order.
var textFields = []string{"message", "text", "content", "utterance", "response"}

// textStrategy attempts to pull display text out of a decoded payload.
// Strategies compose in order; the first match wins.
type textStrategy func(any) (string, bool)

var textStrategies = []textStrategy{
	plainString,
	namedField,
	nestedField,
}

// extractText decodes the event payload and runs the strategy chain.
func extractText(data json.RawMessage) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", false
	}
	for _, strategy := range textStrategies {
		if text, ok := strategy(payload); ok {
			return text, true
		}
	}
	return "", false
}

// plainString matches a payload that is itself a text value.
func plainString(payload any) (string, bool) {
	s, ok := payload.(string)
	return s, ok && s != ""
}

// namedField matches an object with a known text field holding a string.
func namedField(payload any) (string, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return "", false
	}
	for _, field := range textFields {
		if s, ok := obj[field].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// nestedField matches an object whose text field is itself an object,
// descending exactly one level with the same field names.
func nestedField(payload any) (string, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return "", false
	}
	for _, field := range textFields {
		inner, ok := obj[field].(map[string]any)
		if !ok {
			continue
		}
		if s, ok := namedField(inner); ok {
			return s, true
		}
	}
	return "", false
}

// extractStatus pulls the status string from a status event payload: either
// the payload itself or its "status" field.
func extractStatus(data json.RawMessage) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", false
	}
	if s, ok := payload.(string); ok && s != "" {
		return s, true
	}
	if obj, ok := payload.(map[string]any); ok {
		if s, ok := obj["status"].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// extractAttachment decodes a structured content block riding on a message
// event: {"kind": "...", "payload": {...}}. Unknown kinds and malformed
// blocks yield nil.
func extractAttachment(data json.RawMessage) *models.Attachment {
	var envelope struct {
		Kind    models.AttachmentKind `json:"kind"`
		Payload json.RawMessage       `json:"payload"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || len(envelope.Payload) == 0 {
		return nil
	}

	att := &models.Attachment{Kind: envelope.Kind}
	switch envelope.Kind {
	case models.AttachmentNutritionAnalysis:
		var n models.NutritionAnalysis
		if json.Unmarshal(envelope.Payload, &n) != nil {
			return nil
		}
		att.Nutrition = &n
	case models.AttachmentDishCandidates:
		if json.Unmarshal(envelope.Payload, &att.Dishes) != nil {
			return nil
		}
	case models.AttachmentRecommendedDishes:
		if json.Unmarshal(envelope.Payload, &att.Recommended) != nil {
			return nil
		}
	case models.AttachmentIngredientTable:
		if json.Unmarshal(envelope.Payload, &att.Ingredients) != nil {
			return nil
		}
	default:
		return nil
	}
	return att
}

// decodeObject unmarshals a payload expected to be a JSON object.
func decodeObject(data json.RawMessage) (map[string]any, bool) {
	if len(data) == 0 {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// toolName reads the tool identifier from a tool event payload.
func toolName(payload map[string]any) string {
	if s, ok := payload["tool"].(string); ok {
		return s
	}
	if s, ok := payload["name"].(string); ok {
		return s
	}
	return ""
}

// unwrapResultList finds the list of result items in a tool payload. The list
// may sit under "papers" or "results", directly or inside an "output" or
// "result" wrapper, or the wrapper may itself be the list.
func unwrapResultList(payload map[string]any) []map[string]any {
	candidates := []any{payload["output"], payload["result"], payload}
	for _, c := range candidates {
		switch v := c.(type) {
		case map[string]any:
			for _, key := range []string{"papers", "results"} {
				if list, ok := v[key].([]any); ok {
					return objectItems(list)
				}
			}
		case []any:
			return objectItems(v)
		}
	}
	return nil
}

func objectItems(list []any) []map[string]any {
	items := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if obj, ok := entry.(map[string]any); ok {
			items = append(items, obj)
		}
	}
	return items
}

// idFields are provider identifier field names, in preference order.
var idFields = []string{"pmid", "id", "doi", "paperId"}

// mapPaper converts one raw result item into a citation record. Only items
// with neither an id nor a title are rejected.
func mapPaper(item map[string]any) (models.CitationRecord, bool) {
	var rec models.CitationRecord

	for _, field := range idFields {
		switch v := item[field].(type) {
		case string:
			if v != "" {
				rec.ID = v
			}
		case float64:
			rec.ID = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if rec.ID != "" {
			break
		}
	}

	rec.Title, _ = item["title"].(string)
	rec.Abstract, _ = item["abstract"].(string)
	rec.Source, _ = item["source"].(string)
	rec.URL, _ = item["url"].(string)
	if score, ok := item["score"].(float64); ok {
		rec.Score = score
	}
	switch authors := item["authors"].(type) {
	case []any:
		for _, a := range authors {
			if s, ok := a.(string); ok {
				rec.Authors = append(rec.Authors, s)
			}
		}
	case string:
		if authors != "" {
			rec.Authors = []string{authors}
		}
	}

	if rec.ID == "" {
		if rec.Title == "" {
			return models.CitationRecord{}, false
		}
		// Synthesized key: title plus a random suffix keeps ids unique even
		// for identically-titled results.
		rec.ID = rec.Title + "-" + uuid.NewString()[:8]
	}
	return rec, true
}

// messageID returns a stable id for the derived message, falling back to a
// generated one when the backend omitted the event id.
func messageID(ev models.RawEvent) string {
	if ev.ID != "" {
		return ev.ID
	}
	return uuid.NewString()
}

func eventTime(models.RawEvent) time.Time {
	// The event log carries no timestamps; message creation time is local
	// arrival time, which preserves render order. This is the one field that
	// makes re-classifying the same events not byte-identical: equality over
	// derived messages must ignore CreatedAt.
	return time.Now().UTC()
}
