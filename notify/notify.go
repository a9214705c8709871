// Package notify provides the operator-paging hook the command dispatcher
// fires when a command execution produces an unexpected Error result.
package notify

import (
	"fmt"
	"time"

	"github.com/glennhenry/Stagecore/utils"
)

// Notifier is invoked fire-and-forget whenever the command dispatcher
// produces an Error result. Implementations must not block the caller for
// long; Discord dispatches its HTTP call synchronously but the dispatcher
// calls Notify from its own goroutine-safe error path, not the hot packet
// loop.
type Notifier interface {
	Notify(commandName string, message string)
}

// Noop discards every notification. It is the default Notifier.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(commandName string, message string) {}

// Discord posts command error alerts to a Discord channel via webhook.
type Discord struct {
	Webhook string
}

// NewDiscord returns a Discord notifier posting to webhook.
func NewDiscord(webhook string) *Discord {
	return &Discord{Webhook: webhook}
}

// Notify implements Notifier. The alert is timestamped by converting the
// current UTC instant to IST, matching the rest of the corpus's timestamp
// convention for operator-facing alerts.
func (d *Discord) Notify(commandName string, message string) {
	utcNow := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	timestamp, err := utils.ConvertUTCtoIST(utcNow)
	if err != nil {
		timestamp = utcNow
	}

	content := fmt.Sprintf("[%s] command %q failed: %s", timestamp, commandName, message)
	utils.SendDiscordNotification(d.Webhook, content)
}
