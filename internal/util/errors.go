package util

import "errors"

var (
	ErrNoExtractableText = errors.New("no extractable text found in PDF")
	ErrNeedsOCR          = errors.New("document looks scanned; run OCR to extract text")
	ErrInvalidChunking   = errors.New("chunk size must be greater than overlap")

	ErrQuotaExhausted    = errors.New("cloud quota exhausted")
	ErrNoRelevantContent = errors.New("no relevant content found in the uploaded documents")
	ErrProviderMissing   = errors.New("provider not configured")
)
