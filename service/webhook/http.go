package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sentrycam/sentry-go/service/config"
)

type httpService struct {
	CfgSvc config.IService
	client *http.Client
}

// NewHTTP returns a webhook poster. When no webhook URL is configured the
// service is a no-op.
func NewHTTP(cfgsvc config.IService) IService {
	return &httpService{
		CfgSvc: cfgsvc,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (svc *httpService) Post(payload map[string]interface{}) error {
	url := svc.CfgSvc.GetWebhookURL()
	if url == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := svc.client.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
