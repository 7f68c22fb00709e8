package licensefile

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fullpos/license-server/internal/apperr"
	"github.com/fullpos/license-server/internal/database"
	"github.com/fullpos/license-server/internal/license"
	"github.com/fullpos/license-server/internal/logger"
	"github.com/fullpos/license-server/internal/metrics"
	"github.com/fullpos/license-server/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service exports and verifies license files for stored licenses.
type Service struct {
	store   *license.Store
	keys    *Keys
	cache   *database.Cache
	metrics *metrics.Registry
}

// NewService creates a Service. cache and m may be nil.
func NewService(store *license.Store, keys *Keys, cache *database.Cache, m *metrics.Registry) *Service {
	if keys == nil {
		keys = &Keys{}
	}
	return &Service{store: store, keys: keys, cache: cache, metrics: m}
}

// Keys returns the loaded key material.
func (s *Service) Keys() *Keys {
	return s.keys
}

// Export signs a file for the license, optionally bound to a device. With
// ensureActive a PENDIENTE license is started first.
func (s *Service) Export(ctx context.Context, licenseID, deviceID string, ensureActive bool) (*File, *models.License, error) {
	f, l, err := s.export(ctx, licenseID, deviceID, ensureActive)
	s.metrics.RecordLicenseFile("export", apperr.CodeOf(err))
	return f, l, err
}

func (s *Service) export(ctx context.Context, licenseID, deviceID string, ensureActive bool) (*File, *models.License, error) {
	if !s.keys.CanSign() {
		return nil, nil, apperr.ErrMissingEnv
	}

	l, err := s.load(ctx, licenseID)
	if err != nil {
		return nil, nil, err
	}
	if l.Estado == models.EstadoBloqueada {
		return nil, nil, apperr.ErrBlocked
	}

	if ensureActive && !l.Started() {
		if l, err = s.store.ActivateManual(ctx, licenseID); err != nil {
			return nil, nil, err
		}
	}
	if !l.Started() {
		return nil, nil, apperr.ErrLicenseNotStarted
	}

	var (
		project  models.Project
		customer models.Customer
	)
	db := s.store.DB().WithContext(ctx)
	if err := db.Where("id = ?", l.ProjectID).First(&project).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load project: %w", err)
	}
	if l.CustomerID != nil {
		if err := db.Where("id = ?", *l.CustomerID).Limit(1).Find(&customer).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to load customer: %w", err)
		}
	}

	payload := BuildPayload(l, &project, &customer, deviceID, s.store.Now())
	f, err := Sign(s.keys, payload)
	if err != nil {
		return nil, nil, err
	}

	logger.L().Info("LicenseFile: Export",
		zap.String("license_id", l.ID), zap.String("device_id", deviceID), zap.Bool("ensure_active", ensureActive))
	return f, l, nil
}

func (s *Service) load(ctx context.Context, id string) (*models.License, error) {
	var l models.License
	err := s.store.DB().WithContext(ctx).Where("id = ?", id).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrLicenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load license: %w", err)
	}
	if l.Estado == models.EstadoEliminada {
		return nil, apperr.ErrLicenseNotFound
	}
	return &l, nil
}

// BuildPayload assembles the signed payload of a started license.
func BuildPayload(l *models.License, project *models.Project, customer *models.Customer, deviceID string, issuedAt time.Time) *Payload {
	p := &Payload{
		V:               PayloadVersion,
		ProjectCode:     strings.ToUpper(project.Code),
		LicenseKey:      strings.TrimSpace(l.LicenseKey),
		Tipo:            strings.ToUpper(string(l.Tipo)),
		FechaInicio:     formatTimep(l.FechaInicio),
		FechaFin:        formatTimep(l.FechaFin),
		DiasValidez:     l.DiasValidez,
		MaxDispositivos: l.MaxDispositivos,
		IssuedAt:        FormatTime(issuedAt),
	}
	if d := strings.TrimSpace(deviceID); d != "" {
		p.DeviceID = &d
	}
	if customer != nil && customer.ID != "" {
		id, name := customer.ID, customer.NombreNegocio
		p.BusinessID = customer.BusinessID
		p.Customer = &PayloadCustomer{ID: &id, NombreNegocio: &name}
	}
	return p
}

// VerifyResult reports the offline checks a POS performs on a license file.
type VerifyResult struct {
	SignatureOK bool     `json:"signature_ok"`
	Expired     bool     `json:"expired"`
	DeviceMatch bool     `json:"device_match"`
	Code        string   `json:"code"`
	Payload     *Payload `json:"payload"`
}

// VerifyOffline verifies raw and evaluates expiry and device binding. Malformed
// files fail with INVALID_FORMAT or MISSING_FIELDS; a bad signature is reported in
// the result.
func (s *Service) VerifyOffline(raw []byte, deviceID string) (*VerifyResult, error) {
	payload, err := Verify(s.keys, raw)
	s.metrics.RecordLicenseFile("verify", apperr.CodeOf(err))
	switch {
	case errors.Is(err, apperr.ErrBadSignature):
		return &VerifyResult{Code: apperr.ErrBadSignature.Code}, nil
	case err != nil:
		return nil, err
	}

	res := &VerifyResult{SignatureOK: true, Code: "OK", Payload: payload, DeviceMatch: true}
	if payload.FechaFin != nil {
		fin, err := ParseTime(*payload.FechaFin)
		res.Expired = err != nil || fin.Before(s.store.Now())
	}
	if payload.DeviceID != nil {
		res.DeviceMatch = strings.TrimSpace(deviceID) == *payload.DeviceID
	}
	return res, nil
}

// JWK is the public signing key in JSON Web Key form.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// PublicJWK returns the verification key, served through the read-through cache.
func (s *Service) PublicJWK(ctx context.Context) (*JWK, error) {
	if !s.keys.CanVerify() {
		return nil, apperr.ErrMissingEnv
	}
	jwk, err := database.ReadThrough(ctx, s.cache, database.CacheKeySigningJWK+":"+s.keys.KeyID(), database.CacheTTLJWK,
		func(context.Context) (JWK, error) {
			return JWK{
				Kty: "OKP",
				Crv: "Ed25519",
				X:   base64.RawURLEncoding.EncodeToString(s.keys.Public),
				Use: "sig",
				Alg: "EdDSA",
				Kid: s.keys.KeyID(),
			}, nil
		})
	if err != nil {
		return nil, err
	}
	return &jwk, nil
}
