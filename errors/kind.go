package errors

// Kind names the class of a pipeline failure.
type Kind string

const (
	KindAcquisition      Kind = "AcquisitionError"
	KindNormalization    Kind = "NormalizationError"
	KindEncoding         Kind = "EncodingError"
	KindSchemaValidation Kind = "SchemaValidationError"
	KindLoad             Kind = "LoadError"
	KindNotFound         Kind = "NotFound"
	KindUnknown          Kind = "UnknownError"
)

// Kinded is implemented by the typed errors of each pipeline stage.
type Kinded interface {
	error
	Kind() Kind
}

// KindOf returns the Kind of the outermost Kinded error in the chain.
// Errors wrapping ErrNotFound report KindNotFound; anything else is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinded
	if As(err, &k) {
		return k.Kind()
	}
	if IsNotFoundError(err) {
		return KindNotFound
	}
	return KindUnknown
}

// Retryable reports whether a failure of this kind may succeed on a later attempt.
// Only network failures qualify; schema and load failures are not transient.
func (k Kind) Retryable() bool {
	return k == KindAcquisition
}
