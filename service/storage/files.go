package storage

import (
	"os"
	"path/filepath"

	"github.com/sentrycam/sentry-go/service/config"
)

type filesService struct {
	CfgSvc config.IService
}

// NewFiles returns a store that writes alert snapshots to the local
// recordings folder.
func NewFiles(cfgsvc config.IService) IService {
	return &filesService{
		CfgSvc: cfgsvc,
	}
}

func (svc *filesService) StoreAlertImage(name string, data []byte) (string, error) {
	folder := svc.CfgSvc.GetRecordingsFolder()
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(folder, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
