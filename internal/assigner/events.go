package assigner

import "log"

// Every branch of Assign emits a structured, taskId-keyed log line, per
// spec.md §4.1's logging contract: operators reconstruct decisions from
// this log. Severities follow the teacher's bracket-tagged log.Printf
// convention ("[assigner] taskId=... ...").

func logDebug(taskID int64, format string, args ...any) {
	log.Printf("[assigner] level=debug taskId=%d "+format, append([]any{taskID}, args...)...)
}

func logInfo(taskID int64, format string, args ...any) {
	log.Printf("[assigner] level=info taskId=%d "+format, append([]any{taskID}, args...)...)
}

func logWarning(taskID int64, format string, args ...any) {
	log.Printf("[assigner] level=warning taskId=%d "+format, append([]any{taskID}, args...)...)
}

func logError(taskID int64, format string, args ...any) {
	log.Printf("[assigner] level=error taskId=%d "+format, append([]any{taskID}, args...)...)
}
