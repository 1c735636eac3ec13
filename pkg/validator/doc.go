// Package validator provides small composable validation rules.
//
// Every rule is a Rule value holding a Check function and the error to report
// when the check fails. Apply evaluates all rules and aggregates the failures
// into ValidationErrors, which implements error:
//
//	err := validator.Apply(
//		validator.RequiredString("title", title),
//		validator.MaxLenString("title", title, 255),
//		validator.ValidE164Phone("to", phone),
//	)
//	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
//		for _, field := range verrs.Fields() {
//			// ...
//		}
//	}
//
// # Error Handling
//
// ValidationErrors matches ErrValidationFailed with errors.Is, so callers can
// wrap it into their own sentinel with errors.Join and still test for the
// generic failure.
package validator
