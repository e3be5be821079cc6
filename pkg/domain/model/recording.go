package model

import "time"

// Recording is a finalized local audio capture. It is owned by the recorder
// session until handed to the upload pipeline, and the file is discarded on
// cancel or after the upload settles.
type Recording struct {
	Path     string
	Duration time.Duration
}

// RecorderStatus is the poll shape reported by an active recording session.
// Metering is a dBFS-like value clamped to [-160, 0], for UI feedback only.
type RecorderStatus struct {
	IsRecording    bool
	DurationMillis int64
	Metering       float64
}
