package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrInvalidParams         = errors.New("invalid params")
	ErrUnknownOperation      = errors.New("unknown operation")
	ErrProviderUnsupported   = errors.New("provider unsupported")
	ErrProviderConfig        = errors.New("provider config error")
	ErrProviderAPI           = errors.New("provider api error")
	ErrOutputMaterialization = errors.New("output materialization failed")
	ErrJobNotClaimable       = errors.New("job not claimable")
	ErrJobNotProcessing      = errors.New("job not processing")
)
