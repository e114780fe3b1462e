package handle

import "net/http"

// CheckResponse: VisionOK == nil: облачный бэкенд не настроен.
type CheckResponse struct {
	Engines  []string `json:"engines"`
	VisionOK *bool    `json:"vision_ok"`
	Disabled bool     `json:"vision_disabled"`
}

// Check runs the cloud credential self-check on demand.
func (h *Handle) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	resp := CheckResponse{Engines: h.solver.Backends()}
	if h.checker != nil {
		ctx, cancel := requestContext(r)
		defer cancel()
		ok := h.checker.CheckCredentials(ctx)
		resp.VisionOK = &ok
		resp.Disabled = h.checker.Disabled()
	}
	writeJSON(w, http.StatusOK, resp)
}
