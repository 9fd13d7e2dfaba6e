package worker

import (
	"github.com/spec-kit/ticket-assistant/internal/service"
)

// StartTriageLogWorker registers the local triage sink on the in-memory transport.
func StartTriageLogWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
