package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ExtractTextActivity)
	w.RegisterActivity(a.ChunkTextActivity)
	w.RegisterActivity(a.CleanupVectorsActivity)
	w.RegisterActivity(a.ProcessChunksActivity)
	w.RegisterActivity(a.UpsertVectorsActivity)
	w.RegisterActivity(a.UpdateDocumentStatusActivity)
}
