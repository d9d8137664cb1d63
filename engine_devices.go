package authguard

import (
	"context"
	"strconv"

	"github.com/coreledger/authguard/alert"
	"github.com/coreledger/authguard/device"
	"github.com/coreledger/authguard/internal/audit"
)

// TrustDevice records the given device as trusted for userID,
// letting it bypass routine step-up prompts. The owner is notified; a
// trust grant they did not make is the signal they need to see.
func (e *Engine) TrustDevice(ctx context.Context, userID, deviceID string, meta device.Metadata) (*device.Device, error) {
	if e == nil || e.devices == nil {
		return nil, ErrEngineNotReady
	}
	if deviceID == "" {
		deviceID = deviceIDFromContext(ctx)
	}
	if meta.IPAddress == "" {
		meta.IPAddress = clientIPFromContext(ctx)
	}
	if meta.UserAgent == "" {
		meta.UserAgent = userAgentFromContext(ctx)
	}

	d, err := e.devices.Trust(ctx, userID, deviceID, meta)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricDeviceTrusted)
	if e.alerts != nil {
		_, _ = e.alerts.Raise(ctx, userID, alert.TypeNewDeviceTrusted,
			"a new device was marked as trusted",
			alert.SeverityInfo, meta.IPAddress, deviceID)
		e.metricInc(MetricAlertRaised)
	}
	e.emit(ctx, AuditEvent{
		EventType: audit.EventDeviceTrusted,
		UserID:    userID,
		DeviceID:  deviceID,
		IP:        meta.IPAddress,
		Success:   true,
	})
	return d, nil
}

// RevokeDevice withdraws a trust grant immediately. The next
// sensitive operation from that device prompts for MFA again.
func (e *Engine) RevokeDevice(ctx context.Context, userID, deviceID string) error {
	if e == nil || e.devices == nil {
		return ErrEngineNotReady
	}
	if err := e.devices.Revoke(ctx, userID, deviceID); err != nil {
		return err
	}

	e.metricInc(MetricDeviceRevoked)
	if e.alerts != nil {
		_, _ = e.alerts.Raise(ctx, userID, alert.TypeDeviceRevoked,
			"a trusted device was revoked",
			alert.SeverityInfo, clientIPFromContext(ctx), deviceID)
		e.metricInc(MetricAlertRaised)
	}
	e.emit(ctx, AuditEvent{
		EventType: audit.EventDeviceRevoked,
		UserID:    userID,
		DeviceID:  deviceID,
		IP:        clientIPFromContext(ctx),
		Success:   true,
	})
	return nil
}

// RevokeOtherDevices drops every trust grant except the device on the
// context, the device-side companion to [Engine.LogoutOtherSessions].
func (e *Engine) RevokeOtherDevices(ctx context.Context, userID string) (int, error) {
	if e == nil || e.devices == nil {
		return 0, ErrEngineNotReady
	}
	current := deviceIDFromContext(ctx)

	n, err := e.devices.RevokeAllExceptCurrent(ctx, userID, current)
	if err != nil {
		return 0, err
	}

	e.metricInc(MetricDeviceRevoked)
	e.emit(ctx, AuditEvent{
		EventType: audit.EventDeviceRevoked,
		UserID:    userID,
		DeviceID:  current,
		IP:        clientIPFromContext(ctx),
		Success:   true,
		Metadata:  map[string]string{"revoked": strconv.Itoa(n), "kept": "current"},
	})
	return n, nil
}

// IsTrustedDevice reports whether the device has a live trust grant.
func (e *Engine) IsTrustedDevice(ctx context.Context, userID, deviceID string) (bool, error) {
	if e == nil || e.devices == nil {
		return false, ErrEngineNotReady
	}
	return e.devices.IsTrusted(ctx, userID, deviceID)
}

// TouchDevice refreshes a trusted device's last-seen timestamp.
// Unknown devices are ignored.
func (e *Engine) TouchDevice(ctx context.Context, userID, deviceID string) error {
	if e == nil || e.devices == nil {
		return ErrEngineNotReady
	}
	return e.devices.Touch(ctx, userID, deviceID)
}
