package migrate

// Observer receives run progress. Calls come from worker goroutines, so
// implementations must be safe for concurrent use.
type Observer interface {
	StateChanged(state RunState)
	EntriesPlanned(files int, bytes int64)
	TransferStarted(path string, size int64)
	UploadProgress(path string, uploaded, total int64)
	TransferFinished(rec TransferRecord)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) StateChanged(RunState) {}
func (NopObserver) EntriesPlanned(int, int64) {}
func (NopObserver) TransferStarted(string, int64) {}
func (NopObserver) UploadProgress(string, int64, int64) {}
func (NopObserver) TransferFinished(TransferRecord) {}
