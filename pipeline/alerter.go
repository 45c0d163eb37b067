package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sentrycam/sentry-go/hub"
	"github.com/sentrycam/sentry-go/model"
	"github.com/sentrycam/sentry-go/service/lgr"
)

// Alerter consumes the runner's alert stream and fans each event out to the
// connected clients, the snapshot store and the webhook. Failures on any one
// sink are logged and never block the others.
type Alerter struct {
	svcs ServicesFactory
	hub  *hub.Hub
}

func NewAlerter(svcs ServicesFactory, h *hub.Hub) *Alerter {
	return &Alerter{svcs: svcs, hub: h}
}

// Run drains the stream until canxCtx is cancelled.
func (a *Alerter) Run(canxCtx context.Context, stream <-chan AlertData) error {
	for {
		select {
		case <-canxCtx.Done():
			return nil
		case alert := <-stream:
			a.process(alert)
		}
	}
}

func (a *Alerter) process(alert AlertData) {
	a.svcs.Metrics.DisturbancesRaised.Add(uint64(len(alert.Event.Disturbances)))

	envelope := model.AlertEnvelope{
		Type: "alert",
		Data: alert.Event,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		lgr.Logger.Error("failed to marshal alert", slog.Any("error", err))
		return
	}
	a.hub.BroadcastAlert(payload)

	a.storeSnapshots(alert)

	if err := a.svcs.WebhookSvc.Post(map[string]interface{}{
		"timestamp":    alert.Event.Timestamp,
		"disturbances": alert.Event.Disturbances,
	}); err != nil {
		lgr.Logger.Warn("webhook post failed", slog.Any("error", err))
	}
}

func (a *Alerter) storeSnapshots(alert AlertData) {
	stamp := alert.Timestamp.Format("20060102-150405")
	for i, d := range alert.Event.Disturbances {
		if len(d.CurrentImage) == 0 {
			continue
		}
		name := fmt.Sprintf("%s_%s_%d.jpg", d.Item, stamp, i)
		path, err := a.svcs.StorageSvc.StoreAlertImage(name, d.CurrentImage)
		if err != nil {
			lgr.Logger.Warn("failed to store alert image",
				slog.String("name", name),
				slog.Any("error", err))
			continue
		}
		lgr.Logger.Debug("stored alert image", slog.String("path", path))
	}
}
