package handlers

import (
	"bytes"
	"encoding/json"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/middleware"
	"github.com/fullpos/license-server/internal/syncengine"
	"github.com/gofiber/fiber/v2"
)

// SyncHandler exchanges table deltas with a gated device.
type SyncHandler struct {
	engine *syncengine.Engine
}

func NewSyncHandler(engine *syncengine.Engine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

type pushBody struct {
	LastSyncAt string                     `json:"last_sync_at"`
	Tables     map[string]json.RawMessage `json:"tables"`
}

// decodePush reads a push body keeping numbers exact. A table whose value is not
// an array counts as empty.
func decodePush(body []byte) (syncengine.PushRequest, error) {
	req := syncengine.PushRequest{Tables: map[string][]syncengine.Record{}}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, nil
	}

	var pb pushBody
	if err := newDecoder(body).Decode(&pb); err != nil {
		return req, apperr.ErrBadRequest.WithMessage("invalid request body")
	}
	req.LastSyncAt = pb.LastSyncAt

	for name, raw := range pb.Tables {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			req.Tables[name] = nil
			continue
		}
		var records []syncengine.Record
		if err := newDecoder(trimmed).Decode(&records); err != nil {
			return req, apperr.ErrBadRecord.WithMessage(name + ": records must be objects")
		}
		req.Tables[name] = records
	}
	return req, nil
}

func newDecoder(data []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec
}

// Push applies the device's changes.
func (h *SyncHandler) Push(c *fiber.Ctx) error {
	req, err := decodePush(c.Body())
	if err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}
	res, err := h.engine.Push(c.UserContext(), middleware.GetAccess(c), req)
	if err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}
	return c.JSON(res)
}

// Pull returns every row changed after last_sync_at.
func (h *SyncHandler) Pull(c *fiber.Ctx) error {
	res, err := h.engine.Pull(c.UserContext(), middleware.GetAccess(c), c.Query("last_sync_at"))
	if err != nil {
		return middleware.Fail(c, middleware.EnvelopeOK, err)
	}
	return c.JSON(res)
}
