package config

import (
	"os"
	"path/filepath"
	"strconv"
)

type envService struct {
}

// NewEnv returns a config service backed by environment variables with
// sensible defaults for a single-camera deployment.
func NewEnv() IService {
	return &envService{}
}

func (svc *envService) GetHTTPPort() int {
	return getEnvAsInt("HTTP_PORT", 5000)
}

// GetCameraType selects the frame source: "device" opens a real capture
// device, "synthetic" generates frames in-process.
func (svc *envService) GetCameraType() string {
	return getEnv("CAMERA_TYPE", "device")
}

func (svc *envService) GetCameraURL() string {
	return getEnv("CAMERA_URL", "0")
}

func (svc *envService) GetModelPath() string {
	return getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb"))
}

func (svc *envService) GetModelConfigPath() string {
	return getEnv("MODEL_CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v2_coco.pbtxt"))
}

func (svc *envService) GetLabelsPath() string {
	return getEnv("LABELS_PATH", filepath.Join(".", "models", "coco.names"))
}

// GetDetectionThreshold is the display confidence cut for per-frame
// detections.
func (svc *envService) GetDetectionThreshold() float32 {
	return getEnvAsFloat32("DETECTION_THRESHOLD", 0.55)
}

// GetCaptureThreshold is the stricter confidence cut applied when objects
// are captured into the protection catalog.
func (svc *envService) GetCaptureThreshold() float32 {
	return getEnvAsFloat32("CAPTURE_THRESHOLD", 0.7)
}

func (svc *envService) GetDefaultFrameRate() int {
	return getEnvAsInt("FRAME_RATE", 30)
}

func (svc *envService) GetCheckIntervalSeconds() int {
	return getEnvAsInt("CHECK_INTERVAL", 1)
}

func (svc *envService) GetRecordingsFolder() string {
	return getEnv("RECORDINGS_FOLDER", filepath.Join(".", "recordings"))
}

func (svc *envService) GetWebhookURL() string {
	return getEnv("WEBHOOK_URL", "")
}

func (svc *envService) GetMQTTEnabled() bool {
	return getEnvAsBool("MQTT_ENABLED", false)
}

func (svc *envService) GetMQTTBroker() string {
	return getEnv("MQTT_BROKER", "localhost:1883")
}

func (svc *envService) GetMQTTTopic() string {
	return getEnv("MQTT_TOPIC", "esp/messages")
}

func (svc *envService) GetModeMaxShutdownTime() int {
	return getEnvAsInt("MAX_SHUTDOWN_TIME", 5)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatValue)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
