package models

import "encoding/json"

// Envelope carries the fields every submission response shares.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// Reason returns the best available explanation for an unsuccessful response.
func (e Envelope) Reason() string {
	switch {
	case present(e.Error):
		return ErrorMessage(e.Error)
	case e.Message != "":
		return e.Message
	default:
		return "request was not successful"
	}
}

type UploadCVResponse struct {
	Envelope
	BatchTaskID string `json:"batchTaskId"`
	TotalFiles  int    `json:"totalFiles"`
}

type UploadJDResponse struct {
	Envelope
	BatchTaskID string `json:"batchTaskId"`
}

type RankingRequest struct {
	Sync         bool     `json:"sync"`
	SkipHardGate bool     `json:"skipHardGate"`
	CandidateIDs []string `json:"candidateIds,omitempty"`
}

type RankingStartResponse struct {
	Envelope
	TaskID string `json:"taskId"`
}

// CVExtraction is the success payload of one CV extraction batch item.
type CVExtraction struct {
	CandidateID string `json:"candidateId"`
	FileName    string `json:"fileName,omitempty"`
}

// JDAnalysis is the success payload of the job-description batch item.
type JDAnalysis struct {
	JobPostingID string `json:"jobPostingId"`
	Title        string `json:"title,omitempty"`
}
