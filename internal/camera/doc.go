// Package camera coordinates a single camera device between its concurrent
// consumers: a preview sink, a still-capture endpoint, a video recorder and a
// frame analyzer.
//
// Architecture overview:
//
//	ProviderSource -> CaptureSession -> Binding{Preview, Still, Video, Analysis}
//	Device frames  -> ImageAnalysis (single slot) -> Analyzer goroutine
//
// All binding, capture completion and recording transitions run on one
// MainExecutor. Frame analysis runs on its own goroutine and only ever sees
// the newest undelivered frame.
package camera
