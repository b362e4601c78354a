package spin

import "github.com/Riqtu/hohma-sync/go/internal/models"

// ItemDict is the canonical key/value wire representation of one item for
// outbound create/update requests. The wire contract wants every optional
// field present with an explicit neutral value, never omitted.
func ItemDict(item models.Item) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"label":       item.Label,
		"name":        item.Name,
		"eliminated":  item.Eliminated,
		"winner":      item.Winner,
		"description": item.Description,
		"pattern":     item.Pattern,
		"poster":      item.Poster,
		"genre":       item.Genre,
		"rating":      item.Rating,
		"year":        item.Year,
		"labelColor":  item.LabelColor,
		"labelHidden": item.LabelHidden,
		"wheelId":     item.SessionID,
		"userId":      item.OwnerID,
	}
}

// ItemDicts serializes a collection in order.
func ItemDicts(items []models.Item) []map[string]any {
	out := make([]map[string]any, len(items))
	for i, item := range items {
		out[i] = ItemDict(item)
	}
	return out
}
