package access

import (
	"context"

	"github.com/sirupsen/logrus"

	"dash-lock-agent/internal/autherr"
	"dash-lock-agent/internal/wire"
)

// Status is a tri-state read of server truth. Nil pointers mean "unknown
// because the service call failed" and must never be treated as false: a
// transient outage must never read as "no owner yet, please register".
type Status struct {
	HasOwner        *bool
	IsOwnerDevice   *bool
	CanRegister     bool
	CanAuthenticate bool
}

// Unknown reports whether the server's answer could not be obtained.
func (s Status) Unknown() bool {
	return s.HasOwner == nil
}

// Checker is the remote service call behind the query.
type Checker interface {
	CheckAccess(ctx context.Context, deviceID string) (*wire.AccessCheckResponse, error)
}

// DeviceIdentity supplies the device id for the query.
type DeviceIdentity interface {
	DeviceID() string
}

// Query asks the remote service whether an owner exists and whether the
// current device is that owner.
type Query struct {
	client   Checker
	identity DeviceIdentity
	logger   *logrus.Entry
}

// NewQuery creates an access state query.
func NewQuery(client Checker, identity DeviceIdentity, logger *logrus.Logger) *Query {
	return &Query{
		client:   client,
		identity: identity,
		logger:   logger.WithField("component", "access"),
	}
}

// Check performs the query. On any service error or transport failure it
// returns the unknown tri-state with registration refused, alongside the
// typed error for logging and display. Fail closed, never fail open to
// registration.
func (q *Query) Check(ctx context.Context) (Status, error) {
	resp, err := q.client.CheckAccess(ctx, q.identity.DeviceID())
	if err != nil {
		q.logger.WithError(err).Warn("Access check unreachable, failing closed")
		return Status{}, err
	}

	if !resp.Success || resp.Code != "" {
		q.logger.WithFields(logrus.Fields{
			"code":  resp.Code,
			"error": resp.Error,
		}).Warn("Access check reported an error, failing closed")
		message := resp.Error
		if message == "" {
			message = "verification service reported an error"
		}
		return Status{}, autherr.New(autherr.CodeServiceUnavailable, message)
	}

	hasOwner := resp.HasOwner
	isOwnerDevice := resp.IsOwnerDevice

	status := Status{
		HasOwner:      &hasOwner,
		IsOwnerDevice: &isOwnerDevice,
		// Registration is open when no owner exists, and re-registration
		// stays permitted for the owner device itself (credential rotation).
		CanRegister:     !hasOwner || isOwnerDevice,
		CanAuthenticate: hasOwner && isOwnerDevice,
	}

	q.logger.WithFields(logrus.Fields{
		"has_owner":       hasOwner,
		"is_owner_device": isOwnerDevice,
		"can_register":    status.CanRegister,
	}).Debug("Access check complete")

	return status, nil
}
