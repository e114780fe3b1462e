package handle

import (
	"encoding/json"
	"net/http"

	"captcha-solver/api/internal/ocr"
	"captcha-solver/api/internal/util"
)

const maxBodyBytes = 10 << 20

type SolveRequest struct {
	ImageB64  string `json:"image_b64"`
	SaveDebug bool   `json:"save_debug"`
}

type RecognizeRequest struct {
	Engine   string `json:"engine"`
	ImageB64 string `json:"image_b64"`
}

type RecognizeResponse struct {
	Engine string `json:"engine"`
	Raw    string `json:"raw"`
	Text   string `json:"text"`
	Valid  bool   `json:"valid"`
}

func (h *Handle) decodeImage(w http.ResponseWriter, r *http.Request, dst any, b64 func() string) (ocr.CaptchaImage, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return ocr.CaptchaImage{}, false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return ocr.CaptchaImage{}, false
	}
	data, hint, err := util.DecodeBase64MaybeDataURL(b64())
	if err != nil || len(data) == 0 {
		writeError(w, http.StatusBadRequest, "bad image_b64")
		return ocr.CaptchaImage{}, false
	}
	img := ocr.NewCaptchaImage(data, "http:"+r.RemoteAddr)
	if img.Width == 0 {
		h.log.WithField("mime", util.PickMIME("", hint, data)).Warn("image not decodable, variants fall back to raw bytes")
	}
	return img, true
}

// Solve runs the full pipeline. An unsolved CAPTCHA is still a 200 with solved=false.
func (h *Handle) Solve(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	img, ok := h.decodeImage(w, r, &req, func() string { return req.ImageB64 })
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	var d ocr.Decision
	if req.SaveDebug {
		d = h.solver.SolveDebug(ctx, img)
	} else {
		d = h.solver.Solve(ctx, img)
	}
	writeJSON(w, http.StatusOK, d)
}

// Recognize reads the image with one engine, without preprocessing or voting.
func (h *Handle) Recognize(w http.ResponseWriter, r *http.Request) {
	var req RecognizeRequest
	img, ok := h.decodeImage(w, r, &req, func() string { return req.ImageB64 })
	if !ok {
		return
	}
	engine, err := h.engs.GetEngine(req.Engine)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	raw, err := engine.Recognize(ctx, img.Data)
	if err != nil {
		h.log.WithError(err).WithField("engine", engine.Name()).Warn("recognize failed")
		writeError(w, http.StatusBadGateway, "recognize error: "+err.Error())
		return
	}
	c := ocr.NewCandidate(raw, engine.Name(), "original")
	writeJSON(w, http.StatusOK, RecognizeResponse{Engine: c.Backend, Raw: c.Raw, Text: c.Text, Valid: c.Valid})
}
