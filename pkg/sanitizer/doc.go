// Package sanitizer cleans free text and contact details that arrive from
// other services before they are stored, rendered or logged.
//
// Transforms are plain func(string) string values and combine with Apply and
// Compose:
//
//	clean := sanitizer.Compose(sanitizer.StripHTML, sanitizer.SingleLine, sanitizer.MaxRunes(120))
//	title := clean(event.Title)
//
// MaskEmail and MaskPhone produce values safe to write to logs.
package sanitizer
