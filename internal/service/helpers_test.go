package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"iot-measurement-backend/internal/database/dbtest"
	"iot-measurement-backend/internal/mocks"
	"iot-measurement-backend/internal/models"
	"iot-measurement-backend/internal/repository"
	pkglog "iot-measurement-backend/pkg/log"
	"iot-measurement-backend/pkg/utils"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var errInjected = errors.New("injected failure")

const testPassword = "Sup3r-Secret!"

type authFixture struct {
	db      *gorm.DB
	svc     *AuthService
	users   *repository.UserRepository
	refresh *repository.RefreshTokenRepository
	resets  *repository.PasswordResetRepository
	audits  *repository.AuditRepository
	mailer  *mocks.MockMailer
	signer  *utils.JWTSigner
	outbox  *outbox
}

type fixtureOption func(*AuthDeps, *AuthOptions)

func withReuseDetection(on bool) fixtureOption {
	return func(_ *AuthDeps, o *AuthOptions) { o.ReuseDetection = on }
}

func withRefreshStore(wrap func(RefreshTokenStore) RefreshTokenStore) fixtureOption {
	return func(d *AuthDeps, _ *AuthOptions) { d.Refresh = wrap(d.Refresh) }
}

func withMailer(m Mailer) fixtureOption {
	return func(d *AuthDeps, _ *AuthOptions) { d.Mailer = m }
}

func withAuditSink(sink AuditSink) fixtureOption {
	return func(d *AuthDeps, _ *AuthOptions) { d.Audit = sink }
}

// outbox collects mails accepted by the mock mailer.
type outbox struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

func (o *outbox) add(m sentMail) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, m)
}

func (o *outbox) all() []sentMail {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]sentMail(nil), o.sent...)
}

func newAuthFixture(t *testing.T, opts ...fixtureOption) *authFixture {
	t.Helper()

	db := dbtest.NewTestDB(t)
	ctrl := gomock.NewController(t)

	f := &authFixture{
		db:      db,
		users:   repository.NewUserRepo(db),
		refresh: repository.NewRefreshTokenRepo(db),
		resets:  repository.NewPasswordResetRepo(db),
		audits:  repository.NewAuditRepo(db),
		mailer:  mocks.NewMockMailer(ctrl),
		signer:  utils.NewJWTSigner("test-secret", "test-issuer"),
		outbox:  &outbox{},
	}
	f.mailer.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, to, subject, body string) error {
			f.outbox.add(sentMail{To: to, Subject: subject, Body: body})
			return nil
		}).AnyTimes()

	deps := AuthDeps{
		Users:   f.users,
		Refresh: f.refresh,
		Resets:  f.resets,
		Signer:  f.signer,
		Hasher:  utils.NewBcryptHasher(bcrypt.MinCost),
		Mailer:  f.mailer,
		Audit:   NewAuditRecorder(f.audits, nil, nil, pkglog.Nop()),
		Logger:  pkglog.Nop(),
	}
	options := AuthOptions{
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     7 * 24 * time.Hour,
		ResetTTL:       15 * time.Minute,
		ResetURLBase:   "https://app.example/reset-password",
		ReuseDetection: true,
	}
	for _, opt := range opts {
		opt(&deps, &options)
	}
	f.svc = NewAuthService(deps, options)
	return f
}

var testMeta = ClientMeta{IP: "203.0.113.7", UserAgent: "go-test", RequestID: "req-1"}

func (f *authFixture) register(t *testing.T, username, email string) *AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), testMeta, RegisterInput{
		Username: username,
		Email:    email,
		Password: testPassword,
	})
	require.NoError(t, err)
	return res
}

// advance moves the service clock forward by d.
func (f *authFixture) advance(d time.Duration) {
	base := f.svc.now()
	f.svc.now = func() time.Time { return base.Add(d) }
}

// lastResetToken extracts the raw reset secret from the newest mail.
func (f *authFixture) lastResetToken(t *testing.T) string {
	t.Helper()
	mails := f.outbox.all()
	require.NotEmpty(t, mails, "no reset mail sent")
	body := mails[len(mails)-1].Body

	idx := strings.Index(body, "?token=")
	require.GreaterOrEqual(t, idx, 0, "reset link missing")
	raw := body[idx+len("?token="):]
	if end := strings.IndexAny(raw, " \n"); end >= 0 {
		raw = raw[:end]
	}
	token, err := url.QueryUnescape(raw)
	require.NoError(t, err)
	return token
}

func (f *authFixture) auditActions(t *testing.T, action string) []models.AuditLog {
	t.Helper()
	entries, _, err := f.audits.ListAuditLogs(context.Background(), repository.AuditFilter{Action: action, Limit: 100})
	require.NoError(t, err)
	return entries
}

func (f *authFixture) liveTokenCount(t *testing.T, userID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Count(&n).Error)
	return n
}

// failingRevokeAll breaks RevokeAllForUser and leaves every other call intact.
type failingRevokeAll struct {
	RefreshTokenStore
}

func (failingRevokeAll) RevokeAllForUser(context.Context, uint, string, time.Time) (int64, error) {
	return 0, errInjected
}

// failingAuditStore rejects every write.
type failingAuditStore struct{}

func (failingAuditStore) CreateAuditLog(context.Context, *models.AuditLog) error { return errInjected }

func (failingAuditStore) ListAuditLogs(context.Context, repository.AuditFilter) ([]models.AuditLog, int64, error) {
	return nil, 0, errInjected
}

// panickingSink blows up on every record.
type panickingSink struct{}

func (panickingSink) CreateAuditLog(context.Context, *models.AuditLog) error { panic("boom") }

func (panickingSink) ListAuditLogs(context.Context, repository.AuditFilter) ([]models.AuditLog, int64, error) {
	panic("boom")
}
