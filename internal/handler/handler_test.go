package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zoosats/devicetimer/internal/admission"
	"github.com/zoosats/devicetimer/internal/model"
	"github.com/zoosats/devicetimer/internal/service"
	"github.com/zoosats/devicetimer/internal/wallet"
	"github.com/zoosats/devicetimer/internal/ws"
)

type mockDeviceRepo struct {
	mock.Mock
}

func (m *mockDeviceRepo) FindByID(ctx context.Context, id string) (*model.Device, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *mockDeviceRepo) FindAll(ctx context.Context) ([]model.Device, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Device), args.Error(1)
}

func (m *mockDeviceRepo) FindByWallets(ctx context.Context, wallets []string) ([]model.Device, error) {
	args := m.Called(ctx, wallets)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Device), args.Error(1)
}

func (m *mockDeviceRepo) Create(ctx context.Context, device *model.Device) (*model.Device, error) {
	args := m.Called(ctx, device)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *mockDeviceRepo) Update(ctx context.Context, device *model.Device) (*model.Device, error) {
	args := m.Called(ctx, device)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Device), args.Error(1)
}

func (m *mockDeviceRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockPaymentRepo struct {
	mock.Mock
}

func (m *mockPaymentRepo) FindByID(ctx context.Context, id string) (*model.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *mockPaymentRepo) FindByPayHash(ctx context.Context, payhash string) (*model.Payment, error) {
	args := m.Called(ctx, payhash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *mockPaymentRepo) Create(ctx context.Context, params model.CreatePaymentParams) (*model.Payment, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *mockPaymentRepo) MarkIssued(ctx context.Context, id string, payhash string) (*model.Payment, error) {
	args := m.Called(ctx, id, payhash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *mockPaymentRepo) MarkUsed(ctx context.Context, id string) (*model.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *mockPaymentRepo) LastSettled(ctx context.Context, deviceID, switchID string) (*model.Payment, error) {
	args := m.Called(ctx, deviceID, switchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *mockPaymentRepo) CountSettledSince(ctx context.Context, deviceID, switchID string, since time.Time) (int, error) {
	args := m.Called(ctx, deviceID, switchID, since)
	return args.Int(0), args.Error(1)
}

type mockInvoiceCreator struct {
	mock.Mock
}

func (m *mockInvoiceCreator) CreateInvoice(ctx context.Context, invoiceKey string, amountSat int64, memo string, description string, extra wallet.InvoiceExtra) (string, string, error) {
	args := m.Called(ctx, invoiceKey, amountSat, memo, description, extra)
	return args.String(0), args.String(1), args.Error(2)
}

type mockRates struct {
	mock.Mock
}

func (m *mockRates) FiatToMsat(ctx context.Context, amount float64, currency string) (int64, error) {
	args := m.Called(ctx, amount, currency)
	return args.Get(0).(int64), args.Error(1)
}

func testDevice() *model.Device {
	return &model.Device{
		ID:             "dev1",
		Key:            "key1",
		Title:          "Feeder",
		Wallet:         "wallet1",
		Currency:       "sat",
		AvailableStart: "00:00",
		AvailableStop:  "23:59",
		Timezone:       "UTC",
		Switches: model.SwitchList{
			{ID: "sw1", Amount: 100, GpioPin: 21, GpioDuration: 2100, Label: "Feed"},
		},
	}
}

func TestDeviceHandlerGet(t *testing.T) {
	t.Run("returns device", func(t *testing.T) {
		repo := new(mockDeviceRepo)
		repo.On("FindByID", mock.Anything, "dev1").Return(testDevice(), nil)

		h := NewDeviceHandler(service.NewDeviceService(repo, "https://timer.example.com"))
		r := chi.NewRouter()
		r.Mount("/api/v1", h.Routes())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/device/dev1", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var got model.Device
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "dev1", got.ID)
		assert.Equal(t, "Feeder", got.Title)
	})

	t.Run("unknown device is 404", func(t *testing.T) {
		repo := new(mockDeviceRepo)
		repo.On("FindByID", mock.Anything, "nope").Return(nil, nil)

		h := NewDeviceHandler(service.NewDeviceService(repo, "https://timer.example.com"))
		r := chi.NewRouter()
		r.Mount("/api/v1", h.Routes())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/device/nope", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "NOT_FOUND")
	})
}

func TestDeviceHandlerCreate(t *testing.T) {
	t.Run("invalid body is 400", func(t *testing.T) {
		h := NewDeviceHandler(service.NewDeviceService(new(mockDeviceRepo), "https://timer.example.com"))
		r := chi.NewRouter()
		r.Mount("/api/v1", h.Routes())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/device", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing title is 400", func(t *testing.T) {
		h := NewDeviceHandler(service.NewDeviceService(new(mockDeviceRepo), "https://timer.example.com"))
		r := chi.NewRouter()
		r.Mount("/api/v1", h.Routes())

		body, _ := json.Marshal(model.CreateDeviceParams{Wallet: "w", Currency: "sat"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/device", bytes.NewBuffer(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDeviceHandlerList(t *testing.T) {
	t.Run("lists every device", func(t *testing.T) {
		repo := new(mockDeviceRepo)
		repo.On("FindAll", mock.Anything).Return([]model.Device{*testDevice()}, nil)

		h := NewDeviceHandler(service.NewDeviceService(repo, "https://timer.example.com"))
		r := chi.NewRouter()
		r.Mount("/api/v1", h.Routes())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/device", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var got []model.Device
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "dev1", got[0].ID)
		repo.AssertNotCalled(t, "FindByWallets", mock.Anything, mock.Anything)
	})

	t.Run("wallet query narrows the listing", func(t *testing.T) {
		repo := new(mockDeviceRepo)
		repo.On("FindByWallets", mock.Anything, []string{"wallet1", "wallet2"}).
			Return([]model.Device{*testDevice()}, nil)

		h := NewDeviceHandler(service.NewDeviceService(repo, "https://timer.example.com"))
		r := chi.NewRouter()
		r.Mount("/api/v1", h.Routes())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/device?wallet=wallet1,wallet2", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		repo.AssertCalled(t, "FindByWallets", mock.Anything, []string{"wallet1", "wallet2"})
		repo.AssertNotCalled(t, "FindAll", mock.Anything)
	})
}

func TestDeviceHandlerListings(t *testing.T) {
	h := NewDeviceHandler(service.NewDeviceService(new(mockDeviceRepo), "https://timer.example.com"))
	r := chi.NewRouter()
	r.Mount("/api/v1", h.Routes())

	t.Run("currencies start with sat", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/currencies", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var currencies []string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &currencies))
		require.NotEmpty(t, currencies)
		assert.Equal(t, "sat", currencies[0])
		assert.Contains(t, currencies, "EUR")
	})

	t.Run("timezones include UTC", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/timezones", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var zones []string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &zones))
		assert.Contains(t, zones, "UTC")
	})
}

func newPaymentService(devices *mockDeviceRepo, payments *mockPaymentRepo, invoices *mockInvoiceCreator, rates *mockRates) *service.PaymentService {
	return service.NewPaymentService(
		devices, payments, admission.NewEvaluator(payments),
		invoices, rates, "https://timer.example.com",
	)
}

func TestLnurlHandlerPayRequest(t *testing.T) {
	t.Run("issues descriptor", func(t *testing.T) {
		devices := new(mockDeviceRepo)
		payments := new(mockPaymentRepo)
		rates := new(mockRates)

		devices.On("FindByID", mock.Anything, "dev1").Return(testDevice(), nil)
		payments.On("LastSettled", mock.Anything, "dev1", "sw1").Return(nil, nil)
		rates.On("FiatToMsat", mock.Anything, float64(100), "sat").Return(int64(100000), nil)
		payments.On("Create", mock.Anything, mock.Anything).Return(&model.Payment{
			ID:       "pay1",
			DeviceID: "dev1",
			SwitchID: "sw1",
			Payload:  "21-2100",
			State:    model.PaymentStatePending,
			Msat:     100000,
		}, nil)

		h := NewLnurlHandler(newPaymentService(devices, payments, new(mockInvoiceCreator), rates))
		r := chi.NewRouter()
		r.Mount("/api", h.Routes())

		req := httptest.NewRequest(http.MethodGet, "/api/v2/lnurl/dev1?switch_id=sw1", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var descriptor service.PayRequest
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &descriptor))
		assert.Equal(t, "payRequest", descriptor.Tag)
		assert.Equal(t, "https://timer.example.com/api/v1/lnurl/cb/pay1", descriptor.Callback)
		assert.Equal(t, int64(100000), descriptor.MinSendable)
		assert.Equal(t, descriptor.MinSendable, descriptor.MaxSendable)
	})

	t.Run("unknown device yields LNURL error body", func(t *testing.T) {
		devices := new(mockDeviceRepo)
		devices.On("FindByID", mock.Anything, "nope").Return(nil, nil)

		h := NewLnurlHandler(newPaymentService(devices, new(mockPaymentRepo), new(mockInvoiceCreator), new(mockRates)))
		r := chi.NewRouter()
		r.Mount("/api", h.Routes())

		req := httptest.NewRequest(http.MethodGet, "/api/v2/lnurl/nope?switch_id=sw1", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		// LNURL errors ride on HTTP 200 so wallets render the reason.
		assert.Equal(t, http.StatusOK, rec.Code)
		var body lnurlErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ERROR", body.Status)
		assert.Equal(t, "device not found", body.Reason)
	})
}

func TestLnurlHandlerCallback(t *testing.T) {
	t.Run("rejects malformed amount", func(t *testing.T) {
		h := NewLnurlHandler(newPaymentService(new(mockDeviceRepo), new(mockPaymentRepo), new(mockInvoiceCreator), new(mockRates)))
		r := chi.NewRouter()
		r.Mount("/api", h.Routes())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/lnurl/cb/pay1?amount=banana", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var body lnurlErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ERROR", body.Status)
		assert.NotEmpty(t, body.Reason)
	})

	t.Run("returns invoice terms", func(t *testing.T) {
		devices := new(mockDeviceRepo)
		payments := new(mockPaymentRepo)
		invoices := new(mockInvoiceCreator)

		pending := &model.Payment{
			ID: "pay1", DeviceID: "dev1", SwitchID: "sw1",
			Payload: "21-2100", State: model.PaymentStatePending, Msat: 100000,
		}
		payments.On("FindByID", mock.Anything, "pay1").Return(pending, nil)
		devices.On("FindByID", mock.Anything, "dev1").Return(testDevice(), nil)
		invoices.On("CreateInvoice", mock.Anything, "wallet1", int64(100), mock.Anything, mock.Anything, mock.Anything).
			Return("hash123", "lnbc100n1...", nil)
		payments.On("MarkIssued", mock.Anything, "pay1", "hash123").Return(pending, nil)

		h := NewLnurlHandler(newPaymentService(devices, payments, invoices, new(mockRates)))
		r := chi.NewRouter()
		r.Mount("/api", h.Routes())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/lnurl/cb/pay1?amount=100000", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var terms service.InvoiceTerms
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &terms))
		assert.Equal(t, "lnbc100n1...", terms.PR)
		assert.NotNil(t, terms.Routes)
	})
}

func TestQRCodeHandler(t *testing.T) {
	newHandler := func(device *model.Device) (*QRCodeHandler, *mockPaymentRepo, *service.PaymentService) {
		devices := new(mockDeviceRepo)
		payments := new(mockPaymentRepo)
		devices.On("FindByID", mock.Anything, device.ID).Return(device, nil)

		deviceSvc := service.NewDeviceService(devices, "https://timer.example.com")
		paymentSvc := newPaymentService(devices, payments, new(mockInvoiceCreator), new(mockRates))
		return NewQRCodeHandler(deviceSvc, paymentSvc), payments, paymentSvc
	}
	afterHours := func(svc *service.PaymentService) {
		svc.SetNow(func() time.Time {
			return time.Date(2024, 6, 15, 20, 0, 0, 0, time.UTC)
		})
	}

	t.Run("open switch renders PNG", func(t *testing.T) {
		device := testDevice()
		h, payments, _ := newHandler(device)
		payments.On("LastSettled", mock.Anything, "dev1", "sw1").Return(nil, nil)

		r := chi.NewRouter()
		r.Mount("/device", h.Routes())

		req := httptest.NewRequest(http.MethodGet, "/device/dev1/sw1/qrcode", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
		require.True(t, rec.Body.Len() > 8)
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, rec.Body.Bytes()[:4])
	})

	t.Run("closed window redirects to configured page", func(t *testing.T) {
		device := testDevice()
		device.AvailableStart = "09:00"
		device.AvailableStop = "17:00"
		closedURL := "https://shop.example.com/closed"
		device.ClosedURL = &closedURL

		h, _, svc := newHandler(device)
		afterHours(svc)

		r := chi.NewRouter()
		r.Mount("/device", h.Routes())

		req := httptest.NewRequest(http.MethodGet, "/device/dev1/sw1/qrcode", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.Equal(t, closedURL, rec.Header().Get("Location"))
	})

	t.Run("closed window without URL reports unavailable", func(t *testing.T) {
		device := testDevice()
		device.AvailableStart = "09:00"
		device.AvailableStop = "17:00"

		h, _, svc := newHandler(device)
		afterHours(svc)

		r := chi.NewRouter()
		r.Mount("/device", h.Routes())

		req := httptest.NewRequest(http.MethodGet, "/device/dev1/sw1/qrcode", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAVAILABLE")
	})
}

func TestRedirectAllowed(t *testing.T) {
	cases := []struct {
		name   string
		target string
		want   bool
	}{
		{"public https", "https://shop.example.com/closed", true},
		{"empty", "", false},
		{"plain http", "http://shop.example.com", false},
		{"localhost", "https://localhost/closed", false},
		{"loopback v4", "https://127.0.0.1/closed", false},
		{"relative path", "/closed", false},
		{"garbage", "ht tp://%", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, redirectAllowed(tc.target))
		})
	}
}

func TestWSHandlerStatus(t *testing.T) {
	registry := ws.NewRegistry()

	h := NewWSHandler(registry)
	r := chi.NewRouter()
	r.Mount("/api/v1", h.Routes())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connected":[]}`, rec.Body.String())
}
