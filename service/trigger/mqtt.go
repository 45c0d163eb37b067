package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sentrycam/sentry-go/service/config"
	"github.com/sentrycam/sentry-go/service/lgr"
)

// Badge messages toggle presence: the first badge-in arms protection, the
// last badge-out disarms it. While anyone is badged in, protection is
// re-asserted periodically so a restart or manual disarm cannot leave the
// scene unguarded.
const reassertInterval = 5 * time.Second

type mqttService struct {
	cfgSvc    config.IService
	protector Protector

	client mqtt.Client

	mu    sync.Mutex
	users map[string]bool
}

func NewMQTT(cfgSvc config.IService, protector Protector) IService {
	return &mqttService{
		cfgSvc:    cfgSvc,
		protector: protector,
		users:     make(map[string]bool),
	}
}

func (s *mqttService) Run(canxCtx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", s.cfgSvc.GetMQTTBroker()))
	opts.SetClientID(fmt.Sprintf("sentry-%s", uuid.NewString()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)

	topic := s.cfgSvc.GetMQTTTopic()

	opts.OnConnect = func(c mqtt.Client) {
		lgr.Logger.Info("mqtt connected",
			slog.String("broker", s.cfgSvc.GetMQTTBroker()),
			slog.String("topic", topic))
		// Re-subscribe on every (re)connect.
		if token := c.Subscribe(topic, 0, s.onMessage); token.Wait() && token.Error() != nil {
			lgr.Logger.Error("mqtt subscribe failed", slog.Any("error", token.Error()))
		}
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		lgr.Logger.Warn("mqtt connection lost, will auto-reconnect", slog.Any("error", err))
	}

	s.client = mqtt.NewClient(opts)

	token := s.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connect timeout to %s", s.cfgSvc.GetMQTTBroker())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	ticker := time.NewTicker(reassertInterval)
	defer ticker.Stop()

	for {
		select {
		case <-canxCtx.Done():
			s.disarm()
			return nil
		case <-ticker.C:
			s.reassert()
		}
	}
}

func (s *mqttService) Finalize() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
		lgr.Logger.Info("mqtt disconnected")
	}
}

// onMessage handles one badge event. The payload is the badge UID; seeing a
// UID again means badge-out. Protection is captured only when presence goes
// from empty to occupied: re-capturing on later badge events would bless a
// moved object's new position and swallow a pending alert.
func (s *mqttService) onMessage(client mqtt.Client, msg mqtt.Message) {
	uid := string(msg.Payload())
	if uid == "" {
		return
	}

	s.mu.Lock()
	wasPresent := len(s.users)
	if s.users[uid] {
		delete(s.users, uid)
	} else {
		s.users[uid] = true
	}
	present := len(s.users)
	s.mu.Unlock()

	lgr.Logger.Info("badge event",
		slog.String("uid", uid),
		slog.Int("present", present))

	switch {
	case wasPresent == 0 && present == 1:
		result := s.protector.ActivateProtection()
		if !result.Success {
			lgr.Logger.Warn("badge-triggered activation failed",
				slog.String("message", result.Message))
		}
	case wasPresent > 0 && present == 0:
		s.protector.DeactivateProtection()
	}
}

// reassert re-arms protection while users remain badged in.
func (s *mqttService) reassert() {
	s.mu.Lock()
	present := len(s.users)
	s.mu.Unlock()

	if present == 0 || s.protector.Status().ProtectionActive {
		return
	}
	result := s.protector.ActivateProtection()
	if !result.Success {
		lgr.Logger.Debug("protection re-assert skipped",
			slog.String("message", result.Message))
	}
}

// disarm clears presence and, when anyone was still badged in, drops the
// protection that presence was holding up.
func (s *mqttService) disarm() {
	s.mu.Lock()
	present := len(s.users)
	s.users = make(map[string]bool)
	s.mu.Unlock()

	if present > 0 {
		s.protector.DeactivateProtection()
	}
}
