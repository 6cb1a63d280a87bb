package stream

import (
	"strings"

	"github.com/tidwall/gjson"
)

// textValue extracts user-facing text from an arbitrarily shaped value: a
// plain string, an array of text parts, or an object carrying the text under
// one of the conventional field names.
func textValue(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.String()
	}
	if v.IsArray() {
		var b strings.Builder
		for _, entry := range v.Array() {
			b.WriteString(textValue(entry))
		}
		return b.String()
	}
	if v.IsObject() {
		for _, key := range []string{"text", "output_text", "content"} {
			if s := textValue(v.Get(key)); s != "" {
				return s
			}
		}
	}
	return ""
}

// ItemText returns the item's full accumulated text, checking the
// conventional carrier fields in priority order.
func ItemText(item []byte) string {
	root := gjson.ParseBytes(item)
	if !root.IsObject() {
		return ""
	}
	for _, key := range []string{"text", "output_text", "content", "payload"} {
		if s := textValue(root.Get(key)); s != "" {
			return s
		}
	}
	return ""
}

// ItemDelta returns an explicitly carried incremental delta, if any.
func ItemDelta(item []byte) string {
	root := gjson.ParseBytes(item)
	if !root.IsObject() {
		return ""
	}
	if s := textValue(root.Get("delta")); s != "" {
		return s
	}
	return textValue(root.Get("payload.delta"))
}

// TextUpdate is the outcome of folding one item update into the tracked text.
type TextUpdate struct {
	NextText string
	Delta    string
}

// ComputeTextUpdate derives the delta for one streamed-text item update.
// When the current full text extends the previous one, the delta is the new
// suffix. A non-monotonic update (current does not start with previous)
// yields the entire current text as the delta rather than failing. When no
// full text is carried, an explicit delta field is appended instead, unless
// the tracked text already ends with it.
func ComputeTextUpdate(previous string, item []byte) TextUpdate {
	current := ItemText(item)
	explicitDelta := ItemDelta(item)

	if current != "" && strings.HasPrefix(current, previous) {
		return TextUpdate{NextText: current, Delta: current[len(previous):]}
	}
	if current != "" && current != previous {
		return TextUpdate{NextText: current, Delta: current}
	}
	if explicitDelta != "" {
		if strings.HasSuffix(previous, explicitDelta) {
			return TextUpdate{NextText: previous}
		}
		return TextUpdate{NextText: previous + explicitDelta, Delta: explicitDelta}
	}
	return TextUpdate{NextText: previous}
}

func itemID(item []byte) string {
	if v := gjson.GetBytes(item, "id"); v.Type == gjson.String {
		return v.String()
	}
	return ""
}

func itemType(item []byte) string {
	if v := gjson.GetBytes(item, "type"); v.Type == gjson.String {
		return v.String()
	}
	return ""
}
