package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/drivemetrics/internal/migrations"
	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и накатывает миграции.
// params добавляются к строке подключения, например timezone=Europe/Berlin.
func setupTestDatabase(t *testing.T, params ...string) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("drivemetrics"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, append([]string{"sslmode=disable"}, params...)...)
	require.NoError(t, err)

	storage, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, filepath.Join(root, "migrations")))

	return storage
}

// TestDataFactory создаёт тестовые данные напрямую через SQL.
type TestDataFactory struct {
	storage *Storage
}

func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateTrialUser создаёт пользователя в trial с заданным началом пробного периода.
func (f *TestDataFactory) CreateTrialUser(t *testing.T, email string, trialStart time.Time) *models.User {
	t.Helper()
	u, err := f.storage.CreateUser(context.Background(), models.User{
		Email:        email,
		PasswordHash: "hash",
		FullName:     "Test Driver",
		TrialStartAt: trialStart,
	})
	require.NoError(t, err)
	return u
}

// CreateActiveUser создаёт пользователя с оплаченной подпиской до endAt.
func (f *TestDataFactory) CreateActiveUser(t *testing.T, email string, endAt time.Time) *models.User {
	t.Helper()
	u := f.CreateTrialUser(t, email, endAt.AddDate(0, -2, 0))
	_, err := f.storage.DB.Exec(`UPDATE users SET subscription_status = 'active', subscription_end_at = $2
		WHERE id = $1`, u.ID, endAt)
	require.NoError(t, err)
	_, err = f.storage.DB.Exec(`INSERT INTO subscriptions (user_id, plan_type, status, start_at, end_at, amount, currency)
		VALUES ($1, 'monthly', 'active', $2, $3, 299900, 'ARS')`, u.ID, endAt.AddDate(0, -1, 0), endAt)
	require.NoError(t, err)
	return u
}

// TestVerification читает состояние базы для проверок.
type TestVerification struct {
	storage *Storage
}

func NewTestVerification(storage *Storage) *TestVerification {
	return &TestVerification{storage: storage}
}

func (v *TestVerification) UserStatus(t *testing.T, userID string) models.Status {
	t.Helper()
	var status models.Status
	require.NoError(t, v.storage.DB.QueryRow(
		`SELECT subscription_status FROM users WHERE id = $1`, userID).Scan(&status))
	return status
}

func (v *TestVerification) PaymentCount(t *testing.T, userID string) int {
	t.Helper()
	var n int
	require.NoError(t, v.storage.DB.QueryRow(
		`SELECT COUNT(*) FROM payments WHERE user_id = $1`, userID).Scan(&n))
	return n
}

func (v *TestVerification) SubscriptionCount(t *testing.T, userID string, status models.SubscriptionStatus) int {
	t.Helper()
	var n int
	require.NoError(t, v.storage.DB.QueryRow(
		`SELECT COUNT(*) FROM subscriptions WHERE user_id = $1 AND status = $2`, userID, status).Scan(&n))
	return n
}
