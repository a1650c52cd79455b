package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	apperrors "github.com/zoosats/devicetimer/internal/errors"
	"github.com/zoosats/devicetimer/internal/fx"
	"github.com/zoosats/devicetimer/internal/lnurl"
	"github.com/zoosats/devicetimer/internal/model"
	"github.com/zoosats/devicetimer/internal/repository"
	"github.com/zoosats/devicetimer/internal/util"
)

const switchIDBytes = 4

type DeviceService struct {
	devices   repository.DeviceRepository
	publicURL string
}

func NewDeviceService(devices repository.DeviceRepository, publicURL string) *DeviceService {
	return &DeviceService{devices: devices, publicURL: publicURL}
}

// LnurlEndpoint is the wallet-facing URL for a switch, which gets bech32
// encoded into the switch's stored lnurl and its QR code.
func (s *DeviceService) LnurlEndpoint(deviceID, switchID string) string {
	return fmt.Sprintf("%s/api/v2/lnurl/%s?switch_id=%s", s.publicURL, deviceID, switchID)
}

func (s *DeviceService) Create(ctx context.Context, params model.CreateDeviceParams) (*model.Device, error) {
	if err := validateDeviceParams(&params); err != nil {
		return nil, err
	}

	deviceID, err := util.RandomID(16)
	if err != nil {
		return nil, fmt.Errorf("generate device id: %w", err)
	}
	deviceKey, err := util.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate device key: %w", err)
	}

	device := &model.Device{
		ID:             deviceID,
		Key:            deviceKey,
		Title:          params.Title,
		Wallet:         params.Wallet,
		Currency:       params.Currency,
		AvailableStart: params.AvailableStart,
		AvailableStop:  params.AvailableStop,
		Timeout:        params.Timeout,
		Timezone:       params.Timezone,
		MaxPerDay:      params.MaxPerDay,
		ClosedURL:      params.ClosedURL,
		WaitURL:        params.WaitURL,
		Switches:       params.Switches,
	}
	if err := s.assignSwitchIDs(device); err != nil {
		return nil, err
	}

	created, err := s.devices.Create(ctx, device)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("deviceId", created.ID).
		Str("title", created.Title).
		Int("switches", len(created.Switches)).
		Msg("device created")

	return created, nil
}

func (s *DeviceService) Update(ctx context.Context, deviceID string, params model.CreateDeviceParams) (*model.Device, error) {
	if err := validateDeviceParams(&params); err != nil {
		return nil, err
	}

	existing, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperrors.NotFound("device")
	}

	existing.Title = params.Title
	existing.Wallet = params.Wallet
	existing.Currency = params.Currency
	existing.AvailableStart = params.AvailableStart
	existing.AvailableStop = params.AvailableStop
	existing.Timeout = params.Timeout
	existing.Timezone = params.Timezone
	existing.MaxPerDay = params.MaxPerDay
	existing.ClosedURL = params.ClosedURL
	existing.WaitURL = params.WaitURL
	existing.Switches = params.Switches
	if err := s.assignSwitchIDs(existing); err != nil {
		return nil, err
	}

	updated, err := s.devices.Update(ctx, existing)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.NotFound("device")
	}
	return updated, nil
}

func (s *DeviceService) Get(ctx context.Context, deviceID string) (*model.Device, error) {
	device, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, apperrors.NotFound("device")
	}
	s.fixLnurls(device)
	return device, nil
}

// List returns all devices, or only those owned by the given wallets when
// the filter is non-empty.
func (s *DeviceService) List(ctx context.Context, wallets []string) ([]model.Device, error) {
	var devices []model.Device
	var err error
	if len(wallets) > 0 {
		devices, err = s.devices.FindByWallets(ctx, wallets)
	} else {
		devices, err = s.devices.FindAll(ctx)
	}
	if err != nil {
		return nil, err
	}
	for i := range devices {
		s.fixLnurls(&devices[i])
	}
	return devices, nil
}

func (s *DeviceService) Delete(ctx context.Context, deviceID string) error {
	device, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return apperrors.NotFound("device")
	}

	if err := s.devices.Delete(ctx, deviceID); err != nil {
		return err
	}
	log.Info().Str("deviceId", deviceID).Msg("device deleted")
	return nil
}

// assignSwitchIDs gives new switches a server-side id and a precomputed
// LNURL. Switches that already carry an id keep it so existing QR codes
// stay valid across edits.
func (s *DeviceService) assignSwitchIDs(device *model.Device) error {
	for i := range device.Switches {
		sw := &device.Switches[i]
		if sw.ID == "" {
			id, err := util.RandomID(switchIDBytes)
			if err != nil {
				return fmt.Errorf("generate switch id: %w", err)
			}
			sw.ID = id
			sw.Lnurl = ""
		}
		if !lnurl.IsValid(sw.Lnurl) {
			encoded, err := lnurl.Encode(s.LnurlEndpoint(device.ID, sw.ID))
			if err != nil {
				return fmt.Errorf("encode switch lnurl: %w", err)
			}
			sw.Lnurl = encoded
		}
	}
	return nil
}

// fixLnurls re-encodes any stored switch LNURL that is missing or malformed.
// Devices imported from older records may carry plain URLs here.
func (s *DeviceService) fixLnurls(device *model.Device) {
	for i := range device.Switches {
		sw := &device.Switches[i]
		if lnurl.IsValid(sw.Lnurl) {
			continue
		}
		encoded, err := lnurl.Encode(s.LnurlEndpoint(device.ID, sw.ID))
		if err != nil {
			log.Error().Err(err).Str("deviceId", device.ID).Str("switchId", sw.ID).Msg("failed to re-encode switch lnurl")
			continue
		}
		sw.Lnurl = encoded
	}
}

func validateDeviceParams(params *model.CreateDeviceParams) error {
	if params.Title == "" {
		return apperrors.MissingRequired("title")
	}
	if params.Wallet == "" {
		return apperrors.MissingRequired("wallet")
	}
	if !util.IsValidTimeOfDay(params.AvailableStart) {
		return apperrors.InvalidInput("available_start", "opening time format must be hh:mm")
	}
	if !util.IsValidTimeOfDay(params.AvailableStop) {
		return apperrors.InvalidInput("available_stop", "close time format must be hh:mm")
	}
	if !util.IsValidTimezone(params.Timezone) {
		return apperrors.InvalidInput("timezone", "unknown IANA zone")
	}
	if !fx.IsSupportedCurrency(params.Currency) {
		return apperrors.InvalidInput("currency", "unsupported currency code")
	}
	if params.Timeout < 0 {
		return apperrors.InvalidInput("timeout", "must not be negative")
	}
	if params.MaxPerDay < 0 {
		params.MaxPerDay = 0
	}
	return nil
}
