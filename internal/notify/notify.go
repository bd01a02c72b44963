package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Notifier sends system notifications.
type Notifier struct {
	Enabled bool
}

// Send sends a system notification.
// On macOS, uses osascript to display notifications.
// On other platforms, this is a no-op.
func (n *Notifier) Send(title, message string) error {
	if n == nil || !n.Enabled {
		return nil
	}

	if runtime.GOOS != "darwin" {
		// Only macOS supported for now
		return nil
	}

	return sendMacOSNotification(title, message)
}

// sendMacOSNotification uses osascript to display a notification.
func sendMacOSNotification(title, message string) error {
	// Escape quotes in title and message
	title = strings.ReplaceAll(title, `"`, `\"`)
	message = strings.ReplaceAll(message, `"`, `\"`)

	script := fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)
	cmd := exec.Command("osascript", "-e", script)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	return nil
}

// FormatPlanReady formats a generation completion notification.
func FormatPlanReady(planTitle string, outcomes int) (title, message string) {
	title = "Planloom Plan Ready"
	if planTitle == "" {
		planTitle = "your plan"
	}
	message = fmt.Sprintf("%s: %d outcomes generated", planTitle, outcomes)
	return title, message
}

// FormatPlanFailed formats a generation failure notification.
func FormatPlanFailed(idea, reason string) (title, message string) {
	title = "Planloom Generation Failed"
	if len(idea) > 60 {
		idea = idea[:60] + "…"
	}
	message = fmt.Sprintf("%s: %s", idea, reason)
	return title, message
}

// FormatAdjustmentApplied formats a notification for an applied adjustment.
func FormatAdjustmentApplied(planTitle string) (title, message string) {
	title = "Planloom Adjustment Applied"
	message = fmt.Sprintf("Plan revised: %s", planTitle)
	return title, message
}
