package workflows

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"docqa/internal/activities"
	"docqa/internal/storage"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetIngestStatus = "GetIngestStatus"

const (
	StatusProcessing = "processing"
	StatusReady      = storage.StatusReady
	StatusNeedsOCR   = storage.StatusNeedsOCR
	StatusFailed     = storage.StatusFailed
)

// WorkflowID is the id the API starts ingestion under for a document.
func WorkflowID(documentID string) string {
	return "ingest-" + sanitizeID(documentID)
}

func DocumentIngestWorkflow(ctx workflow.Context, input DocumentIngestInput) (string, error) {
	status := IngestStatus{
		DocumentID:  input.DocumentID,
		Name:        input.Name,
		CurrentStep: "init",
		Status:      StatusProcessing,
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetIngestStatus, func() (IngestStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)
	if status.Name == "" {
		status.Name = filepath.Base(input.Path)
	}

	// fail ends the run with status failed. Recording it in the store is
	// best-effort; the query handler still reports the reason.
	fail := func(reason string) (string, error) {
		status.Status = StatusFailed
		status.FailReason = reason
		status.Steps[status.CurrentStep] = StatusFailed
		logger.Warn("ingest failed", "document_id", status.DocumentID, "step", status.CurrentStep, "reason", reason)
		if err := workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
			DocumentID: status.DocumentID,
			Name:       status.Name,
			Status:     StatusFailed,
		}).Get(ctx, nil); err != nil {
			logger.Warn("record failed status", "document_id", status.DocumentID, "error", err)
		}
		return status.Status, nil
	}

	if status.DocumentID == "" {
		status.CurrentStep = "compute_document_id"
		status.Steps[status.CurrentStep] = StatusProcessing
		var idOut activities.ComputeDocumentIDOutput
		if err := workflow.ExecuteActivity(ctx, "ComputeDocumentIDActivity", activities.ComputeDocumentIDInput{Path: input.Path}).Get(ctx, &idOut); err != nil {
			return "", err
		}
		status.DocumentID = idOut.DocumentID
		status.Steps[status.CurrentStep] = "done"
	}

	status.CurrentStep = "extract_pages"
	status.Steps[status.CurrentStep] = StatusProcessing
	var extractOut activities.ExtractPagesOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractPagesActivity", activities.ExtractPagesInput{DocumentID: status.DocumentID, Path: input.Path}).Get(ctx, &extractOut); err != nil {
		if hasErrorType(err, activities.ErrTypeInvalidPDF) {
			return fail("file could not be read as a PDF")
		}
		return "", err
	}
	pagesPath := extractOut.PagesPath
	status.Pages = extractOut.Pages
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "detect_scanned"
	status.Scanned = extractOut.Scanned
	status.Steps[status.CurrentStep] = "done"

	if status.Scanned {
		if !input.RunOCR {
			status.CurrentStep = "save_document"
			status.Steps[status.CurrentStep] = StatusProcessing
			if err := saveDocument(ctx, status, input.Path, StatusNeedsOCR, pagesPath, ""); err != nil {
				return "", err
			}
			status.Steps[status.CurrentStep] = "done"
			status.CurrentStep = "done"
			status.Status = StatusNeedsOCR
			return status.Status, nil
		}
		status.CurrentStep = "ocr_pages"
		status.Steps[status.CurrentStep] = StatusProcessing
		var ocrOut activities.OCRPagesOutput
		if err := workflow.ExecuteActivity(ctx, "OCRPagesActivity", activities.OCRPagesInput{DocumentID: status.DocumentID, Path: input.Path, Name: status.Name}).Get(ctx, &ocrOut); err != nil {
			switch {
			case hasErrorType(err, activities.ErrTypeOCRUnavailable):
				return fail("ocr service not configured")
			case hasErrorType(err, activities.ErrTypeNoText):
				return fail("ocr found no text")
			}
			return "", err
		}
		pagesPath = ocrOut.PagesPath
		status.Pages = ocrOut.Pages
		status.OCRUsed = true
		status.Steps[status.CurrentStep] = "done"
	}

	status.CurrentStep = "segment_pages"
	status.Steps[status.CurrentStep] = StatusProcessing
	var segOut activities.SegmentPagesOutput
	if err := workflow.ExecuteActivity(ctx, "SegmentPagesActivity", activities.SegmentPagesInput{DocumentID: status.DocumentID, Name: status.Name, PagesPath: pagesPath}).Get(ctx, &segOut); err != nil {
		if hasErrorType(err, activities.ErrTypeNoText) {
			return fail("no extractable text found")
		}
		return "", err
	}
	status.Chunks = segOut.Chunks
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "save_document"
	status.Steps[status.CurrentStep] = StatusProcessing
	if err := saveDocument(ctx, status, input.Path, StatusReady, pagesPath, segOut.ChunksPath); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"
	status.CurrentStep = "done"
	status.Status = StatusReady
	logger.Info("ingest complete", "document_id", status.DocumentID, "pages", status.Pages, "chunks", status.Chunks, "ocr", status.OCRUsed)
	return status.Status, nil
}

func saveDocument(ctx workflow.Context, st IngestStatus, path, docStatus, pagesPath, chunksPath string) error {
	return workflow.ExecuteActivity(ctx, "SaveDocumentActivity", activities.SaveDocumentInput{
		DocumentID: st.DocumentID,
		Name:       st.Name,
		Path:       path,
		Status:     docStatus,
		PagesPath:  pagesPath,
		ChunksPath: chunksPath,
	}).Get(ctx, nil)
}

func hasErrorType(err error, typ string) bool {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type() == typ
	}
	return false
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, " ", "-")
	return s
}
