package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/starford/nota/internal/session"
)

// TransformHandler exposes the AI transforms without a session.
type TransformHandler struct {
	ai session.Transformer
}

// NewTransformHandler creates a TransformHandler.
func NewTransformHandler(ai session.Transformer) *TransformHandler {
	return &TransformHandler{ai: ai}
}

// Summarize handles POST /api/ai/summarize.
//
//	@Summary		Summarize arbitrary text
//	@Tags			ai
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SummarizeRequest	true	"Text to summarize"
//	@Success		200		{object}	SummaryResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ai/summarize [post]
func (h *TransformHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	var req SummarizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	text, err := h.ai.Summarize(r.Context(), req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{Summary: text})
}

// Enhance handles POST /api/ai/enhance.
//
//	@Summary		Rewrite arbitrary text, streaming fragments
//	@Tags			ai
//	@Accept			json
//	@Produce		json,text/event-stream
//	@Param			body	body		TransformEnhanceRequest	true	"Text and instructions"
//	@Success		200		{object}	EnhanceResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ai/enhance [post]
func (h *TransformHandler) Enhance(w http.ResponseWriter, r *http.Request) {
	var req TransformEnhanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var onFragment func(string)
	es := &eventStream{w: w}
	if wantsEventStream(r) {
		onFragment = es.fragment
	}
	text, err := h.collect(r, req, onFragment)
	if onFragment != nil {
		es.finish(r, EnhanceResponse{Enhanced: text}, err)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EnhanceResponse{Enhanced: text})
}

func (h *TransformHandler) collect(r *http.Request, req TransformEnhanceRequest, onFragment func(string)) (string, error) {
	stream, err := h.ai.Enhance(r.Context(), req.Content, req.Instructions)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var b strings.Builder
	for {
		frag, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		b.WriteString(frag)
		if onFragment != nil {
			onFragment(frag)
		}
	}
}
