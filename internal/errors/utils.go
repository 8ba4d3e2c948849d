package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating a SyncError if the
// input is not already one.
func Wrap(err error, errType ErrorType, code, message string) *SyncError {
	if err == nil {
		return nil
	}

	var se *SyncError
	if errors.As(err, &se) {
		return &SyncError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       se,
			Context:     se.Context,
			Collection:  se.Collection,
			Path:        se.Path,
			Recoverable: se.Recoverable,
		}
	}

	return &SyncError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeParse || errType == ErrorTypeIO || errType == ErrorTypeValidation,
	}
}

// WrapParse wraps an error as a parse error for path.
func WrapParse(err error, path, message string) *SyncError {
	se := Wrap(err, ErrorTypeParse, ErrCodeParseFailed, message)
	if se != nil {
		se.Path = path
	}
	return se
}

// WrapIO wraps an error as an I/O error for path.
func WrapIO(err error, code, path, message string) *SyncError {
	se := Wrap(err, ErrorTypeIO, code, message)
	if se != nil {
		se.Path = path
	}
	return se
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, path, message string) *SyncError {
	se := Wrap(err, ErrorTypeConfig, ErrCodeConfigInvalid, message)
	if se != nil {
		se.Path = path
		se.Recoverable = false
	}
	return se
}

// WrapInternal wraps an error as an internal error
func WrapInternal(err error, code, message string) *SyncError {
	se := Wrap(err, ErrorTypeInternal, code, message)
	if se != nil {
		se.Recoverable = false
	}
	return se
}

// FormatError formats an error for user display: the messages of the
// chain, without the code and collection prefixes used in logs. A path is
// shown once.
func FormatError(err error) string {
	return formatError(err, "")
}

func formatError(err error, shownPath string) string {
	if err == nil {
		return ""
	}
	se, ok := err.(*SyncError)
	if !ok {
		return err.Error()
	}

	msg := se.Message
	if se.Path != "" && se.Path != shownPath {
		msg = se.Path + ": " + msg
		shownPath = se.Path
	}
	if se.Cause != nil {
		msg += ": " + formatError(se.Cause, shownPath)
	}
	return msg
}
