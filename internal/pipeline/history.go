package pipeline

import (
	"context"
	"sync"

	"guanin/internal/logging"
	"guanin/internal/types"
)

// RunRecorder persists stage-run history entries.
type RunRecorder interface {
	UpsertStageRun(ctx context.Context, run types.StageRun) error
}

// historyService writes stage-run entries to the configured recorder.
// Implementations must be safe for concurrent use.
type historyService interface {
	PersistSync(ctx context.Context, run types.StageRun)
	PersistAsync(run types.StageRun)
	Flush()
}

type recorderHistoryService struct {
	recorder RunRecorder
	logger   logging.Logger
	wg       sync.WaitGroup
}

func newHistoryService(recorder RunRecorder, logger logging.Logger) historyService {
	if recorder == nil {
		return noopHistoryService{}
	}
	return &recorderHistoryService{recorder: recorder, logger: logger}
}

func (h *recorderHistoryService) PersistSync(ctx context.Context, run types.StageRun) {
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	h.persist(ctx, run)
}

// PersistAsync is not tied to the caller's context; a dispatched run that
// finishes after its requester went away is still recorded.
func (h *recorderHistoryService) PersistAsync(run types.StageRun) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.persist(context.Background(), run)
	}()
}

func (h *recorderHistoryService) persist(ctx context.Context, run types.StageRun) {
	if err := h.recorder.UpsertStageRun(ctx, run); err != nil {
		h.logger.Warn("stage run not recorded",
			logging.F("run_id", run.ID),
			logging.F("stage", run.Stage),
			logging.F("error", err),
		)
	}
}

func (h *recorderHistoryService) Flush() {
	h.wg.Wait()
}

type noopHistoryService struct{}

func (noopHistoryService) PersistSync(context.Context, types.StageRun) {}
func (noopHistoryService) PersistAsync(types.StageRun)                {}
func (noopHistoryService) Flush()                                     {}
