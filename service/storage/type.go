package storage

type IService interface {
	// StoreAlertImage persists an encoded alert snapshot and returns the
	// location it was written to.
	StoreAlertImage(name string, data []byte) (string, error)
}
