package stream

import (
	"regexp"
	"strings"
)

var (
	reasoningPattern  = regexp.MustCompile(`(^|[./_-])reasoning([./_-]|$)`)
	assistantPattern  = regexp.MustCompile(`(^|[./_-])assistant([./_-]|$)`)
	agentPattern      = regexp.MustCompile(`(^|[./_-])agent([./_-]|$)`)
	messagePattern    = regexp.MustCompile(`(^|[./_-])message([./_-]|$)`)
	outputTextPattern = regexp.MustCompile(`(^|[./_-])output[_-]?text([./_-]|$)`)
)

func normalizeItemType(itemType string) string {
	return strings.ToLower(strings.TrimSpace(itemType))
}

// isReasoningItemType reports whether the item is an internal reasoning
// trace, which streams under its own downstream event names.
func isReasoningItemType(itemType string) bool {
	normalized := normalizeItemType(itemType)
	if normalized == "" {
		return false
	}
	return normalized == "reasoning" || reasoningPattern.MatchString(normalized)
}

// isAgentMessageItemType reports whether the item is the user-facing message.
func isAgentMessageItemType(itemType string) bool {
	normalized := normalizeItemType(itemType)
	if normalized == "" {
		return false
	}
	switch normalized {
	case "agent_message", "assistant_message", "message", "text", "output_text":
		return true
	}
	return assistantPattern.MatchString(normalized) ||
		agentPattern.MatchString(normalized) ||
		messagePattern.MatchString(normalized) ||
		outputTextPattern.MatchString(normalized)
}

// isStreamedTextItemType reports whether delta tracking applies to the item.
func isStreamedTextItemType(itemType string) bool {
	return isAgentMessageItemType(itemType) || isReasoningItemType(itemType)
}
