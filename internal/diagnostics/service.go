// Package diagnostics implements the field-diagnostics submission flow:
// classifying submitted services, merging them into the linked deal's
// line items and normalizing the deal currency.
package diagnostics

import (
	"context"
	"fmt"
	"strings"

	"github.com/GamechangerTeam/geokurs-form/internal/bitrix"
	"github.com/GamechangerTeam/geokurs-form/internal/config"

	"go.uber.org/zap"
)

// Portal is the slice of the remote gateway the submission flow touches.
type Portal interface {
	FindDevicesBySerial(ctx context.Context, serial string) ([]bitrix.Device, error)
	UpdateDeviceFields(ctx context.Context, deviceID int, fields map[string]any) error
	SetDeviceProductRows(ctx context.Context, deviceID int, rows []bitrix.DeviceRow) error
	AddDeal(ctx context.Context, fields map[string]any) (int, error)
	UpdateDeal(ctx context.Context, dealID int, fields map[string]any) error
	GetDealProductRows(ctx context.Context, dealID int) ([]bitrix.ProductRow, error)
	SetDealProductRows(ctx context.Context, dealID int, rows []bitrix.ProductRow) error
	ListCurrencyCodes(ctx context.Context) ([]string, error)
}

// Submission is the technician's payload.
type Submission struct {
	Serial       string         `json:"serial"`
	Defects      string         `json:"defects"`
	Verification bool           `json:"verification"`
	Parts        []PartInput    `json:"parts"`
	Services     []ServiceInput `json:"services"`
	Currency     string         `json:"currency"`
	RateToBase   float64        `json:"rateToBase"`
}

type ServiceInput struct {
	ID    bitrix.FlexID `json:"id"`
	Name  string        `json:"name"`
	Price float64       `json:"price"`
	Qty   float64       `json:"qty"`
}

type PartInput struct {
	ID    bitrix.FlexID `json:"id"`
	Price float64       `json:"price"`
	Qty   float64       `json:"qty"`
}

// Result summarizes one processed submission.
type Result struct {
	DeviceID        int     `json:"deviceId"`
	DealID          int     `json:"dealId"`
	DiagnosticQty   float64 `json:"diagnosticQty"`
	VerificationQty float64 `json:"verificationQty"`
	RepairsAddedQty float64 `json:"repairsAddedQty"`
	PartsSum        float64 `json:"partsSum"`
	ServicesSum     float64 `json:"servicesSum"`
	TotalSum        float64 `json:"totalSum"`
}

// Service orchestrates one submission end to end. Steps run strictly in
// sequence with no rollback: a failure surfaces immediately and earlier
// writes stay in effect. Two concurrent submissions for one device race
// on the deal's line items (read-modify-write, last write wins); the
// portal offers no version token here, so the race is accepted.
type Service struct {
	portal     Portal
	reconciler *Reconciler
	normalizer *Normalizer
	cfg        config.Config
	logger     *zap.Logger
}

func NewService(cfg config.Config, portal Portal, logger *zap.Logger) *Service {
	logger = logger.Named("diagnostics")
	return &Service{
		portal:     portal,
		reconciler: NewReconciler(NewClassifier()),
		normalizer: NewNormalizer(portal, cfg.BaseCurrency, logger),
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *Service) Submit(ctx context.Context, sub Submission) (Result, error) {
	serial := strings.TrimSpace(sub.Serial)
	if serial == "" {
		return Result{}, newError(CodeInvalidInput, "serial is required")
	}

	devices, err := s.portal.FindDevicesBySerial(ctx, serial)
	if err != nil {
		return Result{}, wrapError(CodeRemoteCallFailed, "resolving device", err)
	}
	if len(devices) == 0 {
		return Result{}, newError(CodeNotFound, "device not found")
	}
	device := devices[0]

	dealID, err := s.ensureDeal(ctx, device)
	if err != nil {
		return Result{}, err
	}

	deviceRows, parts, err := s.mapParts(sub.Parts)
	if err != nil {
		return Result{}, err
	}
	if len(deviceRows) > 0 {
		if err := s.portal.SetDeviceProductRows(ctx, device.ID, deviceRows); err != nil {
			return Result{}, wrapError(CodeRemoteCallFailed, "writing device parts", err)
		}
	}

	// Best-effort: a failed read must not block the write path, but the
	// swallowed error stays visible in the log.
	existing, err := s.portal.GetDealProductRows(ctx, dealID)
	if err != nil {
		s.logger.Warn("existing deal rows unavailable, merging into empty list",
			zap.Int("dealId", dealID),
			zap.Error(err),
		)
		existing = nil
	}

	services := make([]ServiceEntry, 0, len(sub.Services))
	for _, svc := range sub.Services {
		services = append(services, ServiceEntry{
			ID:    svc.ID.String(),
			Name:  svc.Name,
			Price: svc.Price,
			Qty:   svc.Qty,
		})
	}

	outcome := s.reconciler.Reconcile(existing, services, parts, device.Name)

	rows, code := s.normalizer.Apply(ctx, outcome.Rows, sub.Currency, sub.RateToBase)
	if err := s.portal.UpdateDeal(ctx, dealID, map[string]any{"CURRENCY_ID": code}); err != nil {
		return Result{}, wrapError(CodeRemoteCallFailed, "setting deal currency", err)
	}
	if err := s.portal.SetDealProductRows(ctx, dealID, rows); err != nil {
		return Result{}, wrapError(CodeRemoteCallFailed, "writing deal rows", err)
	}

	if err := s.patchSummary(ctx, device.ID, sub, outcome); err != nil {
		return Result{}, err
	}

	result := Result{
		DeviceID:        device.ID,
		DealID:          dealID,
		DiagnosticQty:   outcome.DiagnosticQty,
		VerificationQty: outcome.VerificationQty,
		RepairsAddedQty: outcome.RepairsQty,
		PartsSum:        outcome.PartsSum,
		ServicesSum:     outcome.ServicesSum,
		TotalSum:        outcome.TotalSum,
	}

	s.logger.Info("submission processed",
		zap.Int("deviceId", result.DeviceID),
		zap.Int("dealId", result.DealID),
		zap.String("currency", code),
		zap.Float64("totalSum", result.TotalSum),
	)
	return result, nil
}

// ensureDeal returns the device's linked deal, creating and linking one
// when absent. Not idempotent against concurrent callers for the same
// device.
func (s *Service) ensureDeal(ctx context.Context, device bitrix.Device) (int, error) {
	if device.DealID != 0 {
		return device.DealID, nil
	}

	title := device.Name
	if title == "" {
		title = fmt.Sprintf("Сделка по прибору #%d", device.ID)
	}

	dealID, err := s.portal.AddDeal(ctx, map[string]any{
		"TITLE":       title,
		"CATEGORY_ID": s.cfg.CategoryID,
		"STAGE_ID":    s.cfg.DealStageID,
	})
	if err != nil {
		return 0, wrapError(CodeRemoteCallFailed, "creating deal", err)
	}

	if err := s.portal.UpdateDeviceFields(ctx, device.ID, map[string]any{s.cfg.FieldDealID: dealID}); err != nil {
		return 0, wrapError(CodeRemoteCallFailed, "linking deal to device", err)
	}

	s.logger.Info("deal created for device",
		zap.Int("deviceId", device.ID),
		zap.Int("dealId", dealID),
	)
	return dealID, nil
}

func (s *Service) mapParts(inputs []PartInput) ([]bitrix.DeviceRow, []PartEntry, error) {
	deviceRows := make([]bitrix.DeviceRow, 0, len(inputs))
	parts := make([]PartEntry, 0, len(inputs))

	for _, p := range inputs {
		id, err := p.ID.Int()
		if err != nil {
			return nil, nil, newError(CodeBadRequest, fmt.Sprintf("part id %q is not numeric", p.ID))
		}
		qty := p.Qty
		if qty == 0 {
			qty = 1
		}
		deviceRows = append(deviceRows, bitrix.DeviceRow{ProductID: id, Price: p.Price, Quantity: qty})
		parts = append(parts, PartEntry{ID: id, Price: p.Price, Qty: qty})
	}

	return deviceRows, parts, nil
}

// patchSummary writes the defects text, the verification flag and the
// total service sum onto whichever device fields are configured.
func (s *Service) patchSummary(ctx context.Context, deviceID int, sub Submission, outcome Outcome) error {
	fields := map[string]any{}
	if s.cfg.FieldDefects != "" {
		fields[s.cfg.FieldDefects] = sub.Defects
	}
	if s.cfg.FieldVerification != "" {
		flag := "N"
		if sub.Verification {
			flag = "Y"
		}
		fields[s.cfg.FieldVerification] = flag
	}
	if s.cfg.FieldSumServices != "" {
		fields[s.cfg.FieldSumServices] = outcome.TotalSum
	}
	if len(fields) == 0 {
		return nil
	}

	if err := s.portal.UpdateDeviceFields(ctx, deviceID, fields); err != nil {
		return wrapError(CodeRemoteCallFailed, "patching device summary", err)
	}
	return nil
}
