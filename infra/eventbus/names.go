package eventbus

import (
	"fmt"
	"strings"

	"github.com/amirasaad/topupledger/pkg/domain/events"
)

const defaultTopicPrefix = "topupledger.events"

// streamNameFor maps "TopUp.Completed" to "events:topup:completed".
func streamNameFor(eventType events.EventType) string {
	return nameFor("events", eventType)
}

func dlqStreamName(eventType events.EventType) string {
	return nameFor("dlq", eventType)
}

func groupNameFor(eventType events.EventType) string {
	return nameFor("group", eventType)
}

func nameFor(prefix string, eventType events.EventType) string {
	parts := strings.Split(strings.ToLower(eventType.String()), ".")
	return prefix + ":" + strings.Join(parts, ":")
}

func topicNameFor(prefix string, eventType events.EventType) string {
	return fmt.Sprintf("%s.%s", topicPrefix(prefix), strings.ToLower(eventType.String()))
}

func dlqTopicNameFor(prefix string, eventType events.EventType) string {
	return fmt.Sprintf("%s.dlq.%s", topicPrefix(prefix), strings.ToLower(eventType.String()))
}

func topicPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return defaultTopicPrefix
	}
	return prefix
}

func parseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
