package repository

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rongwang/intentmarket/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var offerCols = []string{
	"id", "intent_id", "producer_id", "company", "product", "price", "original_price",
	"expires_at", "status", "decline_reason", "decided_at", "created_at",
}

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewPostgresRepository(sqlx.NewDb(db, "postgres"))
	repo.now = func() time.Time { return time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC) }
	return repo, mock
}

func offerRowValues(id, intentID, status string, created time.Time) []driver.Value {
	return []driver.Value{id, intentID, "p1", "Acme", "Acme Book 15", 1200.0, 1400.0, nil, status, nil, nil, created}
}

func TestPostgresTransitionOfferCompareAndSet(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2024, 4, 2, 11, 0, 0, 0, time.UTC)
	created := at.Add(-time.Hour)

	row := offerRowValues("o1", "i1", "accepted", created)
	row[10] = at
	mock.ExpectQuery(`UPDATE offers\s+SET status = \$2, decline_reason = \$3, decided_at = \$4\s+WHERE id = \$1 AND status = 'pending' AND \(expires_at IS NULL OR expires_at > \$4\) RETURNING`).
		WithArgs("o1", "accepted", sqlmock.AnyArg(), at).
		WillReturnRows(sqlmock.NewRows(offerCols).AddRow(row...))

	offer, err := repo.TransitionOffer(context.Background(), "o1", models.OfferAccepted, "", at)
	require.NoError(t, err)
	assert.Equal(t, models.OfferAccepted, offer.Status)
	assert.Equal(t, "14% off", offer.DiscountLabel())
	require.NotNil(t, offer.DecidedAt)
	assert.True(t, offer.DecidedAt.Equal(at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransitionOfferLostRaceIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Now().UTC()

	mock.ExpectQuery(`UPDATE offers`).
		WithArgs("o1", "declined", sqlmock.AnyArg(), at).
		WillReturnRows(sqlmock.NewRows(offerCols))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM offers WHERE id = \$1\)`).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := repo.TransitionOffer(context.Background(), "o1", models.OfferDeclined, "price", at)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransitionOfferMissingIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Now().UTC()

	mock.ExpectQuery(`UPDATE offers`).WillReturnRows(sqlmock.NewRows(offerCols))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.TransitionOffer(context.Background(), "missing", models.OfferAccepted, "", at)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransitionOfferRejectsPendingTarget(t *testing.T) {
	repo, mock := newMockRepo(t)

	_, err := repo.TransitionOffer(context.Background(), "o1", models.OfferPending, "", time.Now())
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreatePurchaseAcceptsPendingOfferInOneTx(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE intents SET status = 'completed' WHERE id = \$1 AND status = 'active'`).
		WithArgs("i1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM offers WHERE id = \$1 FOR UPDATE`).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows(offerCols).AddRow(offerRowValues("o1", "i1", "pending", created)...))
	mock.ExpectExec(`UPDATE offers SET status = 'accepted', decided_at = \$2 WHERE id = \$1 AND status = 'pending'`).
		WithArgs("o1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO purchases`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	offerID := "o1"
	purchase := &models.Purchase{IntentID: "i1", OfferID: &offerID, UserID: "u1"}
	require.NoError(t, repo.CreatePurchase(context.Background(), purchase))
	assert.NotEmpty(t, purchase.ID)
	assert.Equal(t, repo.now(), purchase.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreatePurchaseCompletedIntentRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE intents SET status = 'completed'`).
		WithArgs("i1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM intents WHERE id = \$1\)`).
		WithArgs("i1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.CreatePurchase(context.Background(), &models.Purchase{IntentID: "i1", UserID: "u1"})
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreatePurchaseForeignOfferRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE intents SET status = 'completed'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM offers WHERE id = \$1 FOR UPDATE`).
		WithArgs("o9").
		WillReturnRows(sqlmock.NewRows(offerCols).AddRow(offerRowValues("o9", "other", "pending", time.Now())...))
	mock.ExpectRollback()

	offerID := "o9"
	err := repo.CreatePurchase(context.Background(), &models.Purchase{IntentID: "i1", OfferID: &offerID, UserID: "u1"})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateUserDuplicateIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.CreateUser(context.Background(), &models.User{Username: "alice", Role: models.RoleConsumer})
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteIntentReferencedIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`DELETE FROM intents WHERE id = \$1`).
		WithArgs("i1").
		WillReturnError(&pq.Error{Code: "23503", Message: "violates foreign key constraint"})
	mock.ExpectExec(`DELETE FROM intents WHERE id = \$1`).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.DeleteIntent(context.Background(), "i1")
	assert.ErrorIs(t, err, models.ErrConflict)

	deleted, err := repo.DeleteIntent(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListIntentsBuildsFilters(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	cols := []string{"id", "user_id", "title", "timeframe", "budget_min", "budget_max",
		"features", "brands", "category", "region", "status", "created_at"}
	mock.ExpectQuery(`SELECT .* FROM intents WHERE status = \$1 AND \(title ILIKE \$2 OR EXISTS \(SELECT 1 FROM unnest\(features\) AS f WHERE f ILIKE \$2\)\) AND \(budget_max IS NULL OR budget_max >= \$3\) ORDER BY created_at DESC, id DESC`).
		WithArgs("active", `%50\%%`, 100.0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("i1", "u1", "Laptop 50% off", "ASAP", 100.0, 900.0, "{OLED,\"16GB RAM\"}", "{}", nil, "VIC", "active", created))

	min := 100.0
	intents, err := repo.ListIntents(context.Background(), models.IntentFilter{
		Status: models.IntentActive,
		Search: "50%",
		Budget: &models.BudgetRange{Min: &min},
	})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, []string{"OLED", "16GB RAM"}, intents[0].Features)
	assert.Equal(t, []string{}, intents[0].Brands)
	assert.Equal(t, "", intents[0].Category)
	assert.Equal(t, "VIC", intents[0].Region)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExpireOffers(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2024, 4, 2, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE offers\s+SET status = 'expired', decided_at = \$1\s+WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ExpireOffers(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
