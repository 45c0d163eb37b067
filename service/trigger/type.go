package trigger

import (
	"context"

	"github.com/sentrycam/sentry-go/model"
)

// Protector is the slice of the pipeline's control surface the trigger
// needs: arming, disarming and inspecting protection.
type Protector interface {
	Status() model.StatusReport
	ActivateProtection() model.ActivationResult
	DeactivateProtection()
}

type IService interface {
	Run(canxCtx context.Context) error
	Finalize()
}
