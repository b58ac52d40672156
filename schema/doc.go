// Package schema governs event payload schemas.
//
// A Governor keeps an append-only list of JSON Schema versions per subject (the event type).
// Registering a new version first checks it against earlier versions using the subject's
// compatibility mode; BACKWARD is the default and means the new version can read every
// payload written with the previous one. Validate checks an event payload against the latest
// version of its subject and never coerces data.
package schema
