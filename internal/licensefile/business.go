package licensefile

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/license"
	"github.com/fullpos/license-server/internal/logger"
	"github.com/fullpos/license-server/internal/models"
	"go.uber.org/zap"
)

// BusinessPayload is the signed body of a business license token. Field order is
// the serialization order and must not change.
type BusinessPayload struct {
	V           int            `json:"v"`
	BusinessID  string         `json:"business_id"`
	ProjectCode string         `json:"project_code"`
	LicenseKey  string         `json:"license_key"`
	Plan        string         `json:"plan"`
	Estado      string         `json:"estado"`
	StartsAt    *string        `json:"starts_at"`
	ExpiresAt   *string        `json:"expires_at"`
	Features    []string       `json:"features"`
	Limits      BusinessLimits `json:"limits"`
	MaxDevices  int            `json:"max_devices"`
	IssuedAt    string         `json:"issued_at"`
}

// BusinessLimits carries the quota of a business token.
type BusinessLimits struct {
	MaxDevices int `json:"max_devices"`
}

// BusinessToken is a signed license file encoded for transport.
type BusinessToken struct {
	Token   string           `json:"license_token"`
	Payload *BusinessPayload `json:"-"`
}

// BusinessOptions configures token issuance.
type BusinessOptions struct {
	ProjectCode string
	TrialDays   int
}

// BusinessToken issues the signed token of a registered business. The newest
// customer license in the business project wins; a blocked newest license yields a
// BLOQUEADA token so the POS locks immediately. Without a usable license a TRIAL
// token is issued while the trial window is open. A nil token means there is
// nothing to grant.
func (s *Service) BusinessToken(ctx context.Context, businessID string, opts BusinessOptions) (*BusinessToken, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, apperr.ErrBadRequest.WithMessage("business_id is required")
	}
	if !s.keys.CanSign() {
		return nil, apperr.ErrMissingEnv
	}

	customer, err := s.store.CustomerByBusinessID(ctx, businessID)
	if err != nil {
		return nil, err
	}

	project, err := s.store.ResolveProject(ctx, "", opts.ProjectCode)
	if apperr.CodeOf(err) == apperr.ErrNotFound.Code {
		project, err = s.store.ResolveProject(ctx, "", "")
	}
	if err != nil {
		return nil, err
	}

	rows, err := license.NewestForCustomer(s.store.DB().WithContext(ctx), customer.ID, project.ID)
	if err != nil {
		return nil, err
	}

	now := s.store.Now()
	var payload *BusinessPayload
	if sel := license.SelectNewest(rows, now, license.SelectStarted); sel.License != nil {
		payload = businessPayload(businessID, project, sel.License, now)
	} else if trial := trialLicense(customer, opts.TrialDays, now); trial != nil {
		payload = businessPayload(businessID, project, trial, now)
	}
	if payload == nil {
		return nil, nil
	}

	f, err := Sign(s.keys, payload)
	if err != nil {
		return nil, err
	}
	body, err := f.Marshal()
	if err != nil {
		return nil, err
	}

	logger.L().Info("LicenseFile: BusinessToken",
		zap.String("business_id", businessID), zap.String("plan", payload.Plan), zap.String("estado", payload.Estado))
	return &BusinessToken{Token: base64.RawURLEncoding.EncodeToString(body), Payload: payload}, nil
}

// trialLicense synthesizes the TRIAL window of a customer, or nil once it closed.
func trialLicense(c *models.Customer, days int, now time.Time) *models.License {
	if c.TrialStartAt == nil {
		return nil
	}
	if days <= 0 {
		days = 5
	}
	start := license.Normalize(*c.TrialStartAt)
	end := license.AddDays(start, days)
	if !now.Before(end) {
		return nil
	}
	return &models.License{
		LicenseKey:      "TRIAL-" + strings.TrimSpace(*c.BusinessID),
		Tipo:            models.TipoTrial,
		Estado:          models.EstadoActiva,
		FechaInicio:     &start,
		FechaFin:        &end,
		MaxDispositivos: 1,
	}
}

func businessPayload(businessID string, project *models.Project, l *models.License, now time.Time) *BusinessPayload {
	return &BusinessPayload{
		V:           PayloadVersion,
		BusinessID:  businessID,
		ProjectCode: strings.ToUpper(project.Code),
		LicenseKey:  strings.TrimSpace(l.LicenseKey),
		Plan:        strings.ToUpper(string(l.Tipo)),
		Estado:      strings.ToUpper(string(l.Estado)),
		StartsAt:    formatTimep(l.FechaInicio),
		ExpiresAt:   formatTimep(l.FechaFin),
		Features:    []string{},
		Limits:      BusinessLimits{MaxDevices: l.MaxDispositivos},
		MaxDevices:  l.MaxDispositivos,
		IssuedAt:    FormatTime(now),
	}
}

// VerifyBusinessToken decodes and verifies a token issued by BusinessToken.
func VerifyBusinessToken(keys *Keys, token string) (*BusinessPayload, error) {
	body, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(token), "="))
	if err != nil {
		return nil, apperr.ErrInvalidFormat
	}
	return verifyAs[BusinessPayload](keys, body)
}
