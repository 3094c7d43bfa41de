package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldVideoID   = "video_id"
	FieldOwnerID   = "owner_id"
	FieldOrgID     = "organization_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldProgress  = "progress"

	// Media fields
	FieldCodec      = "codec"
	FieldResolution = "resolution"
	FieldDuration   = "duration_s"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath = "path"
)
