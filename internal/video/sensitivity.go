package video

// SensitivityStatus tracks the content-classification pass.
type SensitivityStatus string

const (
	SensitivityPending    SensitivityStatus = "pending"
	SensitivityProcessing SensitivityStatus = "processing"
	SensitivityCompleted  SensitivityStatus = "completed"
	SensitivityFailed     SensitivityStatus = "failed"
	SensitivitySkipped    SensitivityStatus = "skipped"
)

// SensitivityResult is the classification outcome category.
type SensitivityResult string

const (
	ResultSafe        SensitivityResult = "safe"
	ResultFlagged     SensitivityResult = "flagged"
	ResultUnderReview SensitivityResult = "under-review"
)

// CategoryFlags carries per-category classification booleans. Only the
// adult flag is currently derived; the rest await a real per-category
// model.
type CategoryFlags struct {
	Violence bool `json:"violence"`
	Adult    bool `json:"adult"`
	Hate     bool `json:"hate"`
	Drugs    bool `json:"drugs"`
	Weapons  bool `json:"weapons"`
}

// AnalysisDetails records per-run diagnostics of the classification pass.
type AnalysisDetails struct {
	FramesAnalyzed     int     `json:"framesAnalyzed"`
	AvgSuspicion       float64 `json:"avgSuspicion"`
	AvgBrightness      float64 `json:"avgBrightness"`
	AvgContrast        float64 `json:"avgContrast"`
	HighSuspicionCount int     `json:"highSuspicionCount"`
	Error              string  `json:"error,omitempty"`
}

// Sensitivity is the per-video classification sub-record. Result and
// Confidence are set if and only if Status is completed.
type Sensitivity struct {
	Status     SensitivityStatus `json:"status"`
	Result     SensitivityResult `json:"result,omitempty"`
	Confidence float64           `json:"confidence"`
	Categories CategoryFlags     `json:"categories"`
	Notes      string            `json:"notes,omitempty"`
	Details    AnalysisDetails   `json:"details"`
}

// Terminal reports whether the sensitivity pass has finished for this
// run. A terminal status may be reopened by an explicit re-analysis.
func (s SensitivityStatus) Terminal() bool {
	switch s {
	case SensitivityCompleted, SensitivityFailed, SensitivitySkipped:
		return true
	}
	return false
}
