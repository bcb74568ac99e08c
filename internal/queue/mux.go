package queue

import (
	"github.com/hibiken/asynq"
)

// NewMux binds the reindex task types to their handlers. The worker binary
// owns handler construction; this keeps the task-type strings and their
// routing in one package.
func NewMux(reindex, scan asynq.Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeDocumentReindex, reindex)
	mux.Handle(TypeReindexScan, scan)
	return mux
}
