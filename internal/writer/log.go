package writer

import "postfetcher/pkg/logger"

// LogNotifier writes broadcasts to the process log. Used when no webhook
// is configured.
type LogNotifier struct{}

func (LogNotifier) Broadcast(tag, message string) error {
	logger.Logger.Printf("[%s] %s", tag, message)
	return nil
}
