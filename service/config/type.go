package config

type IService interface {
	GetHTTPPort() int
	GetCameraType() string
	GetCameraURL() string
	GetModelPath() string
	GetModelConfigPath() string
	GetLabelsPath() string
	GetDetectionThreshold() float32
	GetCaptureThreshold() float32
	GetDefaultFrameRate() int
	GetCheckIntervalSeconds() int
	GetRecordingsFolder() string
	GetWebhookURL() string
	GetMQTTEnabled() bool
	GetMQTTBroker() string
	GetMQTTTopic() string
	GetModeMaxShutdownTime() int
}
