package mqtt

import "fmt"

// TopicCommand carries control commands from devices.
func TopicCommand(prefix string) string {
	return fmt.Sprintf("%s/command", prefix)
}

// TopicReply carries the outcome of one command.
func TopicReply(prefix, requestID string) string {
	return fmt.Sprintf("%s/reply/%s", prefix, requestID)
}

// TopicEvent carries session events of the given type.
func TopicEvent(prefix, eventType string) string {
	return fmt.Sprintf("%s/event/%s", prefix, eventType)
}

// TopicResult carries final session results.
func TopicResult(prefix string) string {
	return fmt.Sprintf("%s/result", prefix)
}
