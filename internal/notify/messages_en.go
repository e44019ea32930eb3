package notify

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, "task.started", ":rocket: Task started: *%s*")
	message.SetString(lang, "task.started.with_summary", ":rocket: Task started: *%s* - %s")
	message.SetString(lang, "task.blocked", ":no_entry: Task blocked: %s")
	message.SetString(lang, "task.block_resolved", ":large_green_circle: Block resolved, task back in progress")
	message.SetString(lang, "task.paused", ":double_vertical_bar: Task paused")
	message.SetString(lang, "task.paused.with_reason", ":double_vertical_bar: Task paused: %s")
	message.SetString(lang, "task.resumed", ":arrow_forward: Task resumed")
	message.SetString(lang, "task.resumed.with_summary", ":arrow_forward: Task resumed: %s")
	message.SetString(lang, "task.completed", ":white_check_mark: Task completed: %s")
	message.SetString(lang, "task.completed.with_blocks", ":white_check_mark: Task completed: %s (unresolved blocks: %s)")
	message.SetString(lang, "task.cancelled", ":x: Task cancelled")
	message.SetString(lang, "task.cancelled.with_reason", ":x: Task cancelled: %s")
}
