// Package identity owns user accounts: password hashes, sign-in tokens and
// the admin create/delete operations used by provisioning. Profiles are
// created alongside the user in the same transaction.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/db"
	"github.com/mind-engage/schooltests/internal/session"
)

var (
	ErrInvalidCredentials = apierr.New(apierr.KindAuthRequired, "invalid_credentials", "invalid email or password")
	ErrInvalidToken       = apierr.New(apierr.KindAuthRequired, "invalid_token", "invalid or expired token")
	ErrEmailTaken         = apierr.New(apierr.KindConflict, "email_taken", "a user with this email already exists")
	ErrUserNotFound       = apierr.New(apierr.KindNotFound, "user_not_found", "user not found")
	ErrEmailNotConfirmed  = apierr.New(apierr.KindAuthRequired, "email_not_confirmed", "email address has not been confirmed")
)

var validate = validator.New()

type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	EmailConfirmed bool      `json:"email_confirmed"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewUser is the input for sign-up and admin creation.
type NewUser struct {
	Email        string       `validate:"required,email"`
	Password     string       `validate:"required,min=6"`
	Role         session.Role `validate:"required"`
	SchoolID     string
	FirstName    string `validate:"max=100"`
	LastName     string `validate:"max=100"`
	ClassName    string `validate:"max=50"`
	EmailConfirm bool
}

type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	ClassName *string
}

type EventKind string

const (
	EventUserCreated    EventKind = "user.created"
	EventUserDeleted    EventKind = "user.deleted"
	EventSignedOut      EventKind = "signed_out"
	EventProfileUpdated EventKind = "profile_updated"
)

type Event struct {
	Kind   EventKind
	UserID string
}

type Claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Options struct {
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
	Denylist   Denylist
}

type Provider struct {
	db     *sql.DB
	hmac   []byte
	ttl    time.Duration
	cost   int
	deny   Denylist
	now    func() time.Time
	mu     sync.RWMutex
	onEvts []func(Event)
}

func NewProvider(h *sql.DB, opts Options) *Provider {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 8 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = 12
	}
	if opts.Denylist == nil {
		opts.Denylist = NewMemoryDenylist()
	}
	return &Provider{
		db:   h,
		hmac: []byte(opts.Secret),
		ttl:  opts.TokenTTL,
		cost: opts.BcryptCost,
		deny: opts.Denylist,
		now:  time.Now,
	}
}

// OnChange registers a listener for account changes. Listeners run
// synchronously after the change is committed.
func (p *Provider) OnChange(fn func(Event)) {
	p.mu.Lock()
	p.onEvts = append(p.onEvts, fn)
	p.mu.Unlock()
}

func (p *Provider) emit(e Event) {
	p.mu.RLock()
	fns := slices.Clone(p.onEvts)
	p.mu.RUnlock()
	for _, fn := range fns {
		fn(e)
	}
}

// SignUp registers a self-service student account.
func (p *Provider) SignUp(ctx context.Context, in NewUser) (User, error) {
	in.Role = session.RoleStudent
	in.EmailConfirm = false
	return p.create(ctx, in)
}

// AdminCreateUser creates a user with any role; the email is marked confirmed
// when EmailConfirm is set.
func (p *Provider) AdminCreateUser(ctx context.Context, in NewUser) (User, error) {
	return p.create(ctx, in)
}

func (p *Provider) create(ctx context.Context, in NewUser) (User, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return User{}, validationError(err)
	}
	if !in.Role.Valid() {
		return User{}, apierr.Validation("invalid role", "role must be one of admin, school_admin, teacher, student")
	}
	if in.Role != session.RoleAdmin && in.SchoolID == "" {
		return User{}, apierr.Validation("school is required", "school_id is required for role "+string(in.Role))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), p.cost)
	if err != nil {
		return User{}, apierr.Wrap(apierr.KindInternal, "hash_failed", "could not hash password", err)
	}

	u := User{ID: uuid.NewString(), Email: in.Email, EmailConfirmed: in.EmailConfirm, CreatedAt: p.now().UTC().Truncate(time.Second)}
	var school sql.NullString
	if in.SchoolID != "" {
		school = sql.NullString{String: in.SchoolID, Valid: true}
	}
	err = db.InTx(ctx, p.db, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE email=$1`, u.Email).Scan(&exists)
		if err == nil {
			return ErrEmailTaken
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if school.Valid {
			err = tx.QueryRowContext(ctx, `SELECT 1 FROM schools WHERE id=$1`, school.String).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return apierr.Validation("unknown school", "school_id "+school.String+" does not exist")
			}
			if err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, email, password_hash, email_confirmed, created_at) VALUES ($1,$2,$3,$4,$5)`,
			u.ID, u.Email, string(hash), u.EmailConfirmed, u.CreatedAt.Unix()); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO profiles (id, user_id, role, school_id, first_name, last_name, class_name, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			uuid.NewString(), u.ID, string(in.Role), school,
			strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName), strings.TrimSpace(in.ClassName), u.CreatedAt.Unix())
		return err
	})
	if err != nil {
		var ae *apierr.Error
		if errors.As(err, &ae) {
			return User{}, err
		}
		return User{}, apierr.Wrap(apierr.KindInternal, "create_user_failed", "could not create user", err)
	}
	log.Info().Str("user_id", u.ID).Str("role", string(in.Role)).Msg("user created")
	p.emit(Event{Kind: EventUserCreated, UserID: u.ID})
	return u, nil
}

// AdminDeleteUser removes the user; the profile and owned rows go with it.
func (p *Provider) AdminDeleteUser(ctx context.Context, userID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "delete_user_failed", "could not delete user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	log.Info().Str("user_id", userID).Msg("user deleted")
	p.emit(Event{Kind: EventUserDeleted, UserID: userID})
	return nil
}

// ConfirmEmail marks the user's email as confirmed. A non-empty schoolID
// limits the change to users whose profile belongs to that school.
func (p *Provider) ConfirmEmail(ctx context.Context, userID, schoolID string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE users SET email_confirmed=TRUE
		  WHERE id=$1 AND ($2='' OR EXISTS (SELECT 1 FROM profiles WHERE user_id=$3 AND school_id=$4))`,
		userID, schoolID, userID, schoolID)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "confirm_email_failed", "could not confirm email", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	log.Info().Str("user_id", userID).Msg("email confirmed")
	return nil
}

// SignIn checks the password and issues an access token.
func (p *Provider) SignIn(ctx context.Context, email, password string) (string, User, error) {
	var (
		u       User
		hash    string
		created int64
		role    string
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.password_hash, u.email_confirmed, u.created_at, COALESCE(p.role, '')
		   FROM users u LEFT JOIN profiles p ON p.user_id = u.id
		  WHERE u.email=$1`, normalizeEmail(email),
	).Scan(&u.ID, &u.Email, &hash, &u.EmailConfirmed, &created, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", User{}, apierr.Wrap(apierr.KindInternal, "sign_in_failed", "could not sign in", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", User{}, ErrInvalidCredentials
	}
	if !u.EmailConfirmed {
		return "", User{}, ErrEmailNotConfirmed
	}
	u.CreatedAt = db.TimeOf(created)
	tok, err := p.IssueToken(u.ID, role)
	if err != nil {
		return "", User{}, apierr.Wrap(apierr.KindInternal, "issue_token_failed", "could not issue token", err)
	}
	return tok, u, nil
}

func (p *Provider) IssueToken(sub, role string) (string, error) {
	now := p.now()
	claims := &Claims{
		Sub:  sub,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sub,
			Issuer:    "schooltests",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(p.hmac)
}

func (p *Provider) parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return p.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	c, _ := token.Claims.(*Claims)
	if c == nil || c.Sub == "" {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// Verify parses the token and rejects signed-out ones.
func (p *Provider) Verify(ctx context.Context, tokenStr string) (*Claims, error) {
	c, err := p.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if c.ID != "" {
		revoked, err := p.deny.Contains(ctx, c.ID)
		if err != nil {
			return nil, apierr.Upstream("token denylist unavailable", err)
		}
		if revoked {
			return nil, ErrInvalidToken
		}
	}
	return c, nil
}

// SignOut revokes the token until it would have expired anyway.
func (p *Provider) SignOut(ctx context.Context, tokenStr string) error {
	c, err := p.parse(tokenStr)
	if err != nil {
		return err
	}
	until := p.now().Add(p.ttl)
	if c.ExpiresAt != nil {
		until = c.ExpiresAt.Time
	}
	if err := p.deny.Add(ctx, c.ID, until); err != nil {
		return apierr.Upstream("token denylist unavailable", err)
	}
	p.emit(Event{Kind: EventSignedOut, UserID: c.Sub})
	return nil
}

// UpdateProfile changes the name or class fields of a user's profile.
func (p *Provider) UpdateProfile(ctx context.Context, userID string, up ProfileUpdate) error {
	sets := []string{}
	args := []any{}
	add := func(col string, v *string) {
		if v == nil {
			return
		}
		args = append(args, strings.TrimSpace(*v))
		sets = append(sets, col+"=$"+strconv.Itoa(len(args)))
	}
	add("first_name", up.FirstName)
	add("last_name", up.LastName)
	add("class_name", up.ClassName)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, userID)
	res, err := p.db.ExecContext(ctx,
		`UPDATE profiles SET `+strings.Join(sets, ", ")+` WHERE user_id=$`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "update_profile_failed", "could not update profile", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	p.emit(Event{Kind: EventProfileUpdated, UserID: userID})
	return nil
}

// UserByEmail is used by bootstrap to make admin creation idempotent.
func (p *Provider) UserByEmail(ctx context.Context, email string) (User, error) {
	var (
		u       User
		created int64
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT id, email, email_confirmed, created_at FROM users WHERE email=$1`, normalizeEmail(email),
	).Scan(&u.ID, &u.Email, &u.EmailConfirmed, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.CreatedAt = db.TimeOf(created)
	return u, nil
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return apierr.Validation(err.Error())
	}
	details := make([]string, 0, len(ve))
	for _, fe := range ve {
		details = append(details, strings.ToLower(fe.Field())+": failed "+fe.Tag())
	}
	return apierr.Validation("invalid user", details...)
}

// EnsureAdmin creates a confirmed admin account unless the email is already taken.
func (p *Provider) EnsureAdmin(ctx context.Context, email, password string) (User, bool, error) {
	u, err := p.UserByEmail(ctx, email)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, false, err
	}
	u, err = p.AdminCreateUser(ctx, NewUser{
		Email:        email,
		Password:     password,
		Role:         session.RoleAdmin,
		FirstName:    "Admin",
		EmailConfirm: true,
	})
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}
