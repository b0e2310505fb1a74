package dto

// UploadResponse is what the gateway returns after storing a work and requesting its analysis.
type UploadResponse struct {
	Submission    WorkMeta         `json:"submission"`
	Analysis      *AnalyzeResponse `json:"analysis,omitempty"`
	AnalysisError string           `json:"analysisError,omitempty"`
}

// ServiceHealth reports the reachability of one downstream service.
type ServiceHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
