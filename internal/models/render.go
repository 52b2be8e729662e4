package models

// RenderSpec is the engine's rendering instruction to the presentation layer.
// It carries everything needed to draw one question (or a terminal signal)
// without the presentation layer touching caches or session internals.
type RenderSpec struct {
	SessionID     string     `json:"session_id"`
	Questionnaire string     `json:"questionnaire,omitempty"`
	QuestionID    QuestionID `json:"question_id,omitempty"`
	Text          string     `json:"text,omitempty"`
	Options       []string   `json:"options,omitempty"`
	// Multi marks the question as multi-choice; Selected holds the current
	// scratch selection for checkmark rendering.
	Multi    bool     `json:"multi,omitempty"`
	Selected []string `json:"selected,omitempty"`
	// AwaitText and AwaitPhoto tell the presentation layer to accept a typed
	// message or photo attachment instead of an option tap.
	AwaitText  bool `json:"await_text,omitempty"`
	AwaitPhoto bool `json:"await_photo,omitempty"`
	// CanGoBack is true when history is non-empty. CannotGoBack reports a
	// refused GoBack at the start of history; it is not an error.
	CanGoBack    bool `json:"can_go_back,omitempty"`
	CannotGoBack bool `json:"cannot_go_back,omitempty"`
	// Done marks the active questionnaire as finished. AllComplete means the
	// pending queue is drained and the caller should hand off to booking.
	Done        bool `json:"done,omitempty"`
	AllComplete bool `json:"all_complete,omitempty"`
}
