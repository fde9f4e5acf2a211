package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ComputeDocumentIDActivity)
	w.RegisterActivity(a.ExtractPagesActivity)
	w.RegisterActivity(a.OCRPagesActivity)
	w.RegisterActivity(a.SegmentPagesActivity)
	w.RegisterActivity(a.SaveDocumentActivity)
	w.RegisterActivity(a.UpdateDocumentStatusActivity)
}
