// Package notify is the user-visible notification collaborator boundary.
// The core only decides when something is worth telling the user; rendering
// (toast vs. banner) belongs to the host application.
package notify

import (
	"time"

	"github.com/yanun0323/logs"
)

// Variant selects the notification styling.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantSuccess     Variant = "success"
	VariantDestructive Variant = "destructive"
)

// Notification is a single user-visible alert.
type Notification struct {
	Title       string
	Description string
	Variant     Variant
	Duration    time.Duration
}

// Notifier renders notifications.
type Notifier interface {
	Show(n Notification)
}

// LogNotifier writes notifications to the log. It is the default sink when
// the host wires nothing else in.
type LogNotifier struct{}

// Show implements Notifier.
func (LogNotifier) Show(n Notification) {
	if n.Variant == VariantDestructive {
		logs.Warnf("notify: [%s] %s %s", n.Variant, n.Title, n.Description)
		return
	}
	logs.Infof("notify: [%s] %s %s", n.Variant, n.Title, n.Description)
}
