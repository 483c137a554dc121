package errors

var (
	// Domain errors used by the resolver, intake pipeline and stores.
	ErrUserNotFound      = NotFound("user not found")
	ErrMessageNotFound   = NotFound("message not found")
	ErrEmptyContact      = InvalidArg("contact address cannot be empty")
	ErrEmptyDeliveryID   = InvalidArg("delivery id cannot be empty")
	ErrAppointmentInPast = InvalidArg("appointment date must be in the future")
	ErrEmptyMedication   = InvalidArg("medication name cannot be empty")
	ErrEmptySymptoms     = InvalidArg("symptoms cannot be empty")
)

func ErrStorageUnavailable(cause error) error {
	return Wrap(CodeUnavailable, "storage unavailable", cause)
}

func ErrDuplicateContact(cause error) error {
	return Wrap(CodeAlreadyExists, "contact address already registered", cause)
}

func ErrDuplicateDelivery(cause error) error {
	return Wrap(CodeAlreadyExists, "delivery already recorded", cause)
}
