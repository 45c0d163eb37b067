package pipeline

import (
	"time"

	"github.com/sentrycam/sentry-go/model"
	"github.com/sentrycam/sentry-go/service/camera"
	"github.com/sentrycam/sentry-go/service/config"
	"github.com/sentrycam/sentry-go/service/metrics"
	"github.com/sentrycam/sentry-go/service/storage"
	"github.com/sentrycam/sentry-go/service/webhook"
)

type ServicesFactory struct {
	CfgSvc     config.IService
	CameraSvc  camera.IService
	StorageSvc storage.IService
	WebhookSvc webhook.IService
	Metrics    *metrics.Metrics
}

// AlertData carries one check cycle's disturbances to the alerter stage.
type AlertData struct {
	Event     model.AlertEvent
	Timestamp time.Time
}
