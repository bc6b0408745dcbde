package hid_test

import (
	"errors"
	"testing"

	"github.com/shini4i/asdctl/internal/hid"
	"github.com/shini4i/asdctl/internal/hid/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestDisplay_Brightness(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDevice := mocks.NewMockDevice(ctrl)

	tests := []struct {
		name            string
		setupMock       func()
		expectedPercent uint8
		expectedError   error
	}{
		{
			name: "successfully reads minimum brightness",
			setupMock: func() {
				mockDevice.EXPECT().GetFeatureReport(gomock.Any()).DoAndReturn(
					func(data []byte) (int, error) {
						// Return 400 nits (0x190) in little-endian
						data[0] = 0x01
						data[1] = 0x90
						data[2] = 0x01
						return 7, nil
					},
				)
			},
			expectedPercent: 0,
		},
		{
			name: "successfully reads maximum brightness",
			setupMock: func() {
				mockDevice.EXPECT().GetFeatureReport(gomock.Any()).DoAndReturn(
					func(data []byte) (int, error) {
						// Return 60000 nits (0xEA60) in little-endian
						data[0] = 0x01
						data[1] = 0x60
						data[2] = 0xEA
						return 7, nil
					},
				)
			},
			expectedPercent: 100,
		},
		{
			name: "successfully reads 50% brightness",
			setupMock: func() {
				mockDevice.EXPECT().GetFeatureReport(gomock.Any()).DoAndReturn(
					func(data []byte) (int, error) {
						// Return 30200 nits (0x75F8) in little-endian
						data[0] = 0x01
						data[1] = 0xF8
						data[2] = 0x75
						return 7, nil
					},
				)
			},
			expectedPercent: 50,
		},
		{
			name: "fails when device returns a short report",
			setupMock: func() {
				mockDevice.EXPECT().GetFeatureReport(gomock.Any()).Return(3, nil)
			},
			expectedError: hid.ErrUnexpectedReportSize,
		},
		{
			name: "fails when device errors",
			setupMock: func() {
				mockDevice.EXPECT().GetFeatureReport(gomock.Any()).Return(0, errors.New("device error"))
			},
			expectedError: errors.New("device error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMock()
			display := hid.NewDisplay(mockDevice)

			percent, err := display.Brightness()

			if tt.expectedError != nil {
				require.Error(t, err)
				if errors.Is(tt.expectedError, hid.ErrUnexpectedReportSize) {
					assert.ErrorIs(t, err, hid.ErrUnexpectedReportSize)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedPercent, percent)
			}
		})
	}
}

func TestDisplay_SetBrightness(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDevice := mocks.NewMockDevice(ctrl)

	tests := []struct {
		name          string
		percent       uint8
		setupMock     func()
		expectedError bool
	}{
		{
			name:    "0% writes minimum nits, never below range",
			percent: 0,
			setupMock: func() {
				mockDevice.EXPECT().SendFeatureReport(gomock.Any()).DoAndReturn(
					func(data []byte) (int, error) {
						// 400 nits (0x190)
						assert.Equal(t, []byte{0x01, 0x90, 0x01, 0x00, 0x00, 0x00, 0x00}, data)
						return 7, nil
					},
				)
			},
		},
		{
			name:    "100% writes maximum nits, never above range",
			percent: 100,
			setupMock: func() {
				mockDevice.EXPECT().SendFeatureReport(gomock.Any()).DoAndReturn(
					func(data []byte) (int, error) {
						// 60000 nits (0xEA60)
						assert.Equal(t, []byte{0x01, 0x60, 0xEA, 0x00, 0x00, 0x00, 0x00}, data)
						return 7, nil
					},
				)
			},
		},
		{
			name:    "50% writes midpoint nits",
			percent: 50,
			setupMock: func() {
				mockDevice.EXPECT().SendFeatureReport(gomock.Any()).DoAndReturn(
					func(data []byte) (int, error) {
						// 30200 nits (0x75F8)
						assert.Equal(t, byte(0x01), data[0], "report ID should be 0x01")
						assert.Equal(t, byte(0xF8), data[1], "lo byte should be 0xF8")
						assert.Equal(t, byte(0x75), data[2], "mid_lo byte should be 0x75")
						return 7, nil
					},
				)
			},
		},
		{
			name:    "returns error when device fails",
			percent: 50,
			setupMock: func() {
				mockDevice.EXPECT().SendFeatureReport(gomock.Any()).Return(0, errors.New("device error"))
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMock()
			display := hid.NewDisplay(mockDevice)

			err := display.SetBrightness(tt.percent)

			if tt.expectedError {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDisplay_IncreaseBrightness(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDevice := mocks.NewMockDevice(ctrl)

	// Device reports 50% (30200 nits); a 10% step must produce exactly one
	// write carrying 36160 nits (0x8D40) little-endian.
	mockDevice.EXPECT().GetFeatureReport(gomock.Any()).DoAndReturn(
		func(data []byte) (int, error) {
			data[0] = 0x01
			data[1] = 0xF8
			data[2] = 0x75
			return 7, nil
		},
	)
	mockDevice.EXPECT().SendFeatureReport(gomock.Any()).DoAndReturn(
		func(data []byte) (int, error) {
			assert.Equal(t, []byte{0x01, 0x40, 0x8D, 0x00, 0x00, 0x00, 0x00}, data)
			return 7, nil
		},
	).Times(1)

	display := hid.NewDisplay(mockDevice)
	next, err := display.IncreaseBrightness(10)
	require.NoError(t, err)
	assert.Equal(t, uint8(60), next)
}

func TestDisplay_DecreaseBrightness_SaturatesAtZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDevice := mocks.NewMockDevice(ctrl)

	// Device reports 5% (3380 nits); a 10% step must bottom out at 0%,
	// not wrap around.
	mockDevice.EXPECT().GetFeatureReport(gomock.Any()).DoAndReturn(
		func(data []byte) (int, error) {
			data[0] = 0x01
			data[1] = 0x34 // 3380 = 0x0D34
			data[2] = 0x0D
			return 7, nil
		},
	)
	mockDevice.EXPECT().SendFeatureReport(gomock.Any()).DoAndReturn(
		func(data []byte) (int, error) {
			// 0% -> 400 nits
			assert.Equal(t, []byte{0x01, 0x90, 0x01, 0x00, 0x00, 0x00, 0x00}, data)
			return 7, nil
		},
	).Times(1)

	display := hid.NewDisplay(mockDevice)
	next, err := display.DecreaseBrightness(10)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), next)
}

func TestDisplay_NarrowLayout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDevice := mocks.NewMockDevice(ctrl)
	mockDevice.EXPECT().GetFeatureReport(gomock.Any()).DoAndReturn(
		func(data []byte) (int, error) {
			data[0] = 0x01
			data[1] = 0x60
			data[2] = 0xEA
			return 7, nil
		},
	)

	display := hid.NewDisplayWithLayout(mockDevice, hid.LayoutNarrow)
	nits, err := display.BrightnessNits()
	require.NoError(t, err)
	assert.Equal(t, uint32(60000), nits)
}

func TestDisplay_Serial(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDevice := mocks.NewMockDevice(ctrl)
	mockDevice.EXPECT().Info().Return(hid.DeviceInfo{
		Serial:  "C02ABC123",
		Product: "Studio Display",
	})

	display := hid.NewDisplay(mockDevice)
	assert.Equal(t, "C02ABC123", display.Serial())
}

func TestDisplay_ProductName(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDevice := mocks.NewMockDevice(ctrl)
	mockDevice.EXPECT().Info().Return(hid.DeviceInfo{
		Serial:  "C02ABC123",
		Product: "Studio Display",
	})

	display := hid.NewDisplay(mockDevice)
	assert.Equal(t, "Studio Display", display.ProductName())
}

func TestDisplay_OperationsAfterClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDevice := mocks.NewMockDevice(ctrl)
	mockDevice.EXPECT().Close().Return(nil)

	display := hid.NewDisplay(mockDevice)
	require.NoError(t, display.Close())

	_, err := display.Brightness()
	assert.ErrorIs(t, err, hid.ErrDisplayClosed)

	err = display.SetBrightness(50)
	assert.ErrorIs(t, err, hid.ErrDisplayClosed)

	_, err = display.IncreaseBrightness(10)
	assert.ErrorIs(t, err, hid.ErrDisplayClosed)
}

func TestDisplay_Close_Idempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDevice := mocks.NewMockDevice(ctrl)
	mockDevice.EXPECT().Close().Return(nil).Times(1) // Only called once

	display := hid.NewDisplay(mockDevice)
	require.NoError(t, display.Close())

	// Second close should be no-op
	require.NoError(t, display.Close())
}
