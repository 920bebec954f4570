package staff

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/ist"
	"github.com/hms/hms/internal/platform/notification"
)

const (
	otpDigits = 6
	// MaxOTPAttempts is how many wrong guesses retire a code.
	MaxOTPAttempts = 5
)

var (
	errInvalidCredentials = apperr.Unauthorized("invalid credentials")
	errTooManyAttempts    = apperr.Unauthorized("too many attempts, request a new code")
)

type Service struct {
	users   UserRepository
	otps    OTPRepository
	issuer  *auth.TokenIssuer
	revoked *auth.RevocationList
	mailer  notification.EmailSender
	clock   clock.Clock
	otpTTL  time.Duration
	logger  zerolog.Logger
}

type Config struct {
	Issuer  *auth.TokenIssuer
	Revoked *auth.RevocationList
	Mailer  notification.EmailSender
	Clock   clock.Clock
	OTPTTL  time.Duration
	Logger  zerolog.Logger
}

func NewService(users UserRepository, otps OTPRepository, cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 10 * time.Minute
	}
	return &Service{
		users:   users,
		otps:    otps,
		issuer:  cfg.Issuer,
		revoked: cfg.Revoked,
		mailer:  cfg.Mailer,
		clock:   cfg.Clock,
		otpTTL:  cfg.OTPTTL,
		logger:  cfg.Logger,
	}
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

func (s *Service) issue(u *User) (*Session, error) {
	token, exp, err := s.issuer.Issue(u.Actor())
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: ist.ToIST(exp), User: u}, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, apperr.Validation("username and password are required", nil)
	}
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	ok, err := auth.CheckPassword(u.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !ok || !u.IsActive {
		s.logger.Warn().Str("username", u.Username).Bool("active", u.IsActive).Msg("login rejected")
		return nil, errInvalidCredentials
	}
	return s.issue(u)
}

func generateCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// RequestOTP e-mails a one-time login code. Unknown or inactive addresses
// get the same response as known ones.
func (s *Service) RequestOTP(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return apperr.Field("email", "invalid email address")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			s.logger.Info().Str("email", email).Msg("otp requested for unknown email")
			return nil
		}
		return fmt.Errorf("request otp: %w", err)
	}
	if !u.IsActive {
		return nil
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	otp := &OTP{Email: email, Code: code, ExpiresAt: ist.Now(s.clock).Add(s.otpTTL)}
	if err := s.otps.Create(ctx, otp); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	msg := notification.Message{
		To:      email,
		Subject: "Your HMS login code",
		Body:    fmt.Sprintf("Your login code is %s. It expires in %d minutes.", code, int(s.otpTTL.Minutes())),
	}
	if err := s.mailer.SendEmail(ctx, msg); err != nil {
		return fmt.Errorf("send otp: %w", err)
	}
	return nil
}

func (s *Service) VerifyOTP(ctx context.Context, email, code string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || code == "" {
		return nil, apperr.Validation("email and code are required", nil)
	}
	otp, err := s.otps.Latest(ctx, email)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Unauthorized("invalid code")
		}
		return nil, fmt.Errorf("verify otp: %w", err)
	}
	if !ist.Now(s.clock).Before(otp.ExpiresAt) {
		return nil, apperr.Unauthorized("code expired")
	}
	if otp.Attempts >= MaxOTPAttempts {
		return nil, errTooManyAttempts
	}
	if subtle.ConstantTimeCompare([]byte(otp.Code), []byte(strings.TrimSpace(code))) != 1 {
		n, err := s.otps.RecordFailure(ctx, otp.ID, MaxOTPAttempts)
		if err != nil {
			return nil, fmt.Errorf("verify otp: %w", err)
		}
		if n >= MaxOTPAttempts {
			s.logger.Warn().Str("email", email).Int("attempts", n).Msg("otp retired after failed attempts")
			return nil, errTooManyAttempts
		}
		return nil, apperr.Unauthorized("invalid code")
	}
	if err := s.otps.MarkVerified(ctx, otp.ID); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("verify otp: %w", err)
	}
	if !u.IsActive {
		return nil, errInvalidCredentials
	}
	return s.issue(u)
}

// Logout revokes the caller's token until it would have expired.
func (s *Service) Logout(ctx context.Context, a *auth.Actor) error {
	if a.TokenID == "" {
		return nil
	}
	return s.revoked.Revoke(ctx, a.TokenID, a.TokenExpiresAt)
}

func (s *Service) Profile(ctx context.Context, a *auth.Actor) (*Profile, error) {
	u, err := s.users.GetByID(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	perms := auth.PermissionsFor(u.Actor()).List()
	return &Profile{User: u, Permissions: perms}, nil
}

// EnsureAccount makes sure a staff_user row exists under a.ID, so writes made
// by the actor satisfy the audit foreign keys. The row is inactive with a
// random password and cannot be used to sign in.
func (s *Service) EnsureAccount(ctx context.Context, a *auth.Actor) error {
	secret := make([]byte, 24)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	hash, err := auth.HashPassword(fmt.Sprintf("%x", secret))
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	first, last, _ := strings.Cut(a.Name, " ")
	u := &User{
		ID:           a.ID,
		Username:     a.Username,
		Email:        a.Username + "@" + a.ID.String() + ".invalid",
		PasswordHash: hash,
		FirstName:    first,
		LastName:     last,
		UserType:     a.UserType,
		RoleLevel:    a.RoleLevel,
		IsSuperuser:  a.IsSuperuser,
		IsStaff:      a.IsStaff,
	}
	created, err := s.users.EnsureUser(ctx, u)
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	if created {
		s.logger.Info().Str("actor_id", a.ID.String()).Str("username", a.Username).Msg("staff account seeded")
	}
	return nil
}

type CreateStaffInput struct {
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	Password       string  `json:"password"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Phone          *string `json:"phone"`
	UserType       string  `json:"user_type"`
	RoleLevel      string  `json:"role_level"`
	Specialization *string `json:"specialization"`
	IsSuperuser    bool    `json:"is_superuser"`
}

// CreateStaff registers a staff account. Only superusers and admins may call
// it; only superusers may create superusers.
func (s *Service) CreateStaff(ctx context.Context, a *auth.Actor, in CreateStaffInput) (*User, error) {
	if a == nil || !a.Unrestricted() {
		return nil, apperr.Permission("only administrators can create staff accounts")
	}
	if in.IsSuperuser && !a.IsSuperuser {
		return nil, apperr.Permission("only superusers can create superusers")
	}

	fields := apperr.FieldErrors{}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Username == "" {
		fields.Add("username", "required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		fields.Add("email", "invalid email address")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		fields.Add("first_name", "required")
	}
	userType, err := auth.ParseUserType(in.UserType)
	if err != nil {
		fields.Add("user_type", "must be one of receptionist, nurse, doctor, admin")
	}
	roleLevel, err := auth.ParseRoleLevel(in.RoleLevel)
	if err != nil {
		fields.Add("role_level", "must be one of basic, medium, senior")
	}
	if userType != auth.Doctor && in.Specialization != nil && *in.Specialization != "" {
		fields.Add("specialization", "only doctors have a specialization")
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		fields.Add("password", err.Error())
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	u := &User{
		Username:       in.Username,
		Email:          in.Email,
		PasswordHash:   hash,
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		Phone:          in.Phone,
		UserType:       userType,
		RoleLevel:      roleLevel,
		Specialization: in.Specialization,
		IsSuperuser:    in.IsSuperuser,
		IsStaff:        true,
		IsActive:       true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create staff: %w", err)
	}
	s.logger.Info().Str("created_by", a.ID.String()).Str("user_id", u.ID.String()).
		Str("user_type", u.UserType.String()).Str("role_level", u.RoleLevel.String()).Msg("staff account created")
	return u, nil
}

func (s *Service) ListDoctors(ctx context.Context) ([]Doctor, error) {
	users, err := s.users.ListDoctors(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Doctor, 0, len(users))
	for _, u := range users {
		out = append(out, Doctor{ID: u.ID, Name: u.FullName(), Email: u.Email, Specialization: u.Specialization})
	}
	return out, nil
}

// Doctor returns an active doctor account by id.
func (s *Service) Doctor(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.UserType != auth.Doctor || !u.IsActive {
		return nil, apperr.NotFound("doctor")
	}
	return u, nil
}
