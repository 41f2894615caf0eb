package alert

import "errors"

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrClinicNotFound       = errors.New("clinic not found")
	ErrAlertNotFound        = errors.New("emergency alert not found")
	ErrInvalidEmergencyType = errors.New("emergency type must be MEDICAL, SECURITY or SYSTEM")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrNotResumable         = errors.New("alert has no interrupted notification fan-out")
	ErrInvalidInput         = errors.New("invalid input")
)
