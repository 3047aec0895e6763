package authcore

import "context"

// RegisterInput carries a registration request. Code is the emailed REGISTER
// verification code.
type RegisterInput struct {
	Email    string
	Name     string
	Phone    string
	Avatar   string
	Password string
	Code     string
}

// Register creates an account gated by a REGISTER verification code. The
// code is validated before any durable write and consumed best-effort after
// the account exists: an unconsumed code can only re-register the same email,
// which the duplicate check rejects.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.codes.Validate(ctx, in.Email, VerificationRegister, in.Code); err != nil {
		e.metrics.Inc(MetricOTPRejected)
		e.metrics.Inc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, 0, in.Email, 0, err, nil)
		return nil, err
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		e.metrics.Inc(MetricRegisterFailure)
		return nil, err
	}

	roleID, err := e.roles.ClientRoleID(ctx)
	if err != nil {
		e.metrics.Inc(MetricRegisterFailure)
		return nil, err
	}

	user, err := e.users.Create(ctx, CreateUser{
		Email:        in.Email,
		Name:         in.Name,
		Phone:        in.Phone,
		Avatar:       in.Avatar,
		PasswordHash: hash,
		RoleID:       roleID,
	})
	if err != nil {
		e.metrics.Inc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, 0, in.Email, 0, err, nil)
		return nil, err
	}

	_ = e.codes.Consume(ctx, in.Email, VerificationRegister)

	e.metrics.Inc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.ID, user.Email, 0, nil, nil)

	return user, nil
}
