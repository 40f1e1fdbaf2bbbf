package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rongwang/intentmarket/internal/models"
)

const (
	intentColumns   = `id, user_id, title, timeframe, budget_min, budget_max, features, brands, category, region, status, created_at`
	offerColumns    = `id, intent_id, producer_id, company, product, price, original_price, expires_at, status, decline_reason, decided_at, created_at`
	purchaseColumns = `id, intent_id, offer_id, user_id, completed_at, details`
)

type intentRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	Title     string         `db:"title"`
	Timeframe string         `db:"timeframe"`
	BudgetMin *float64       `db:"budget_min"`
	BudgetMax *float64       `db:"budget_max"`
	Features  pq.StringArray `db:"features"`
	Brands    pq.StringArray `db:"brands"`
	Category  sql.NullString `db:"category"`
	Region    sql.NullString `db:"region"`
	Status    string         `db:"status"`
	CreatedAt time.Time      `db:"created_at"`
}

func (row intentRow) toModel() models.Intent {
	return models.Intent{
		ID:        row.ID,
		UserID:    row.UserID,
		Title:     row.Title,
		Timeframe: row.Timeframe,
		BudgetMin: row.BudgetMin,
		BudgetMax: row.BudgetMax,
		Features:  append([]string{}, row.Features...),
		Brands:    append([]string{}, row.Brands...),
		Category:  row.Category.String,
		Region:    row.Region.String,
		Status:    models.IntentStatus(row.Status),
		CreatedAt: row.CreatedAt.UTC(),
	}
}

type offerRow struct {
	ID            string         `db:"id"`
	IntentID      string         `db:"intent_id"`
	ProducerID    string         `db:"producer_id"`
	Company       string         `db:"company"`
	Product       string         `db:"product"`
	Price         float64        `db:"price"`
	OriginalPrice *float64       `db:"original_price"`
	ExpiresAt     *time.Time     `db:"expires_at"`
	Status        string         `db:"status"`
	DeclineReason sql.NullString `db:"decline_reason"`
	DecidedAt     *time.Time     `db:"decided_at"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (row offerRow) toModel() models.Offer {
	return models.Offer{
		ID:            row.ID,
		IntentID:      row.IntentID,
		ProducerID:    row.ProducerID,
		Company:       row.Company,
		Product:       row.Product,
		Price:         row.Price,
		OriginalPrice: row.OriginalPrice,
		ExpiresAt:     utcPtr(row.ExpiresAt),
		Status:        models.OfferStatus(row.Status),
		DeclineReason: row.DeclineReason.String,
		DecidedAt:     utcPtr(row.DecidedAt),
		CreatedAt:     row.CreatedAt.UTC(),
	}
}

type purchaseRow struct {
	ID          string                 `db:"id"`
	IntentID    string                 `db:"intent_id"`
	OfferID     sql.NullString         `db:"offer_id"`
	UserID      string                 `db:"user_id"`
	CompletedAt time.Time              `db:"completed_at"`
	Details     models.PurchaseDetails `db:"details"`
}

func (row purchaseRow) toModel() models.Purchase {
	p := models.Purchase{
		ID:          row.ID,
		IntentID:    row.IntentID,
		UserID:      row.UserID,
		CompletedAt: row.CompletedAt.UTC(),
		Details:     row.Details,
	}
	if row.OfferID.Valid {
		id := row.OfferID.String
		p.OfferID = &id
	}
	return p
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db:  db,
		now: time.Now,
	}
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return classify("ping", r.db.PingContext(ctx))
}

// withTx runs fn inside a transaction, rolling back when fn fails
func (r *PostgresRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// User repository methods
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, password, name, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	// Generate a new UUID if not provided
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = r.now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Password, user.Name, user.Role, user.CreatedAt)

	return classify("create user", err)
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, `SELECT id, username, password, name, role, created_at FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getUser(ctx, `SELECT id, username, password, name, role, created_at FROM users WHERE username = $1`, username)
}

func (r *PostgresRepository) getUser(ctx context.Context, query, key string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, key)
		}
		return nil, classify("get user", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

// Intent repository methods
func (r *PostgresRepository) ListIntents(ctx context.Context, filter models.IntentFilter) ([]models.Intent, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var q whereBuilder
	if filter.UserID != "" {
		q.add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		q.add("status = $%d", string(filter.Status))
	}
	if filter.Category != "" {
		q.add("category = $%d", filter.Category)
	}
	if filter.Region != "" {
		q.add("region = $%d", filter.Region)
	}
	if filter.Search != "" {
		q.add(`(title ILIKE $%[1]d OR EXISTS (SELECT 1 FROM unnest(features) AS f WHERE f ILIKE $%[1]d))`,
			"%"+escapeLike(filter.Search)+"%")
	}
	if filter.Budget != nil {
		if filter.Budget.Min != nil {
			q.add("(budget_max IS NULL OR budget_max >= $%d)", *filter.Budget.Min)
		}
		if filter.Budget.Max != nil {
			q.add("(budget_min IS NULL OR budget_min <= $%d)", *filter.Budget.Max)
		}
	}

	query := `SELECT ` + intentColumns + ` FROM intents` + q.where() + ` ORDER BY created_at DESC, id DESC`

	var rows []intentRow
	if err := r.db.SelectContext(ctx, &rows, query, q.args...); err != nil {
		return nil, classify("list intents", err)
	}

	intents := make([]models.Intent, 0, len(rows))
	for _, row := range rows {
		intents = append(intents, row.toModel())
	}
	return intents, nil
}

func (r *PostgresRepository) GetIntent(ctx context.Context, id string) (*models.Intent, error) {
	return getIntent(ctx, r.db, id, false)
}

func getIntent(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*models.Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM intents WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var row intentRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: intent %s", models.ErrNotFound, id)
		}
		return nil, classify("get intent", err)
	}
	intent := row.toModel()
	return &intent, nil
}

func (r *PostgresRepository) CreateIntent(ctx context.Context, intent *models.Intent) error {
	if err := intent.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO intents (` + intentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	// Generate a new UUID if not provided
	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}
	*intent = intent.Clone()
	intent.Status = models.IntentActive
	intent.CreatedAt = r.now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		intent.ID, intent.UserID, intent.Title, intent.Timeframe,
		intent.BudgetMin, intent.BudgetMax,
		pq.Array(intent.Features), pq.Array(intent.Brands),
		nullString(intent.Category), nullString(intent.Region),
		string(intent.Status), intent.CreatedAt)

	return classify("create intent", err)
}

func (r *PostgresRepository) UpdateIntent(ctx context.Context, id string, patch models.IntentPatch) (*models.Intent, error) {
	var updated models.Intent
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		current, err := getIntent(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if current.Status != models.IntentActive {
			return fmt.Errorf("%w: intent %s is %s", models.ErrConflict, id, current.Status)
		}
		updated = current.Apply(patch)
		if err := updated.Validate(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE intents
			SET title = $2, timeframe = $3, budget_min = $4, budget_max = $5,
				features = $6, brands = $7, category = $8, region = $9
			WHERE id = $1
		`,
			id, updated.Title, updated.Timeframe, updated.BudgetMin, updated.BudgetMax,
			pq.Array(updated.Features), pq.Array(updated.Brands),
			nullString(updated.Category), nullString(updated.Region))
		return err
	})
	if err != nil {
		return nil, classify("update intent", err)
	}
	return &updated, nil
}

// DeleteIntent relies on the foreign keys from offers and purchases to reject
// deleting a referenced intent.
func (r *PostgresRepository) DeleteIntent(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM intents WHERE id = $1`, id)
	if err != nil {
		return false, classify("delete intent", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("delete intent", err)
	}
	return n > 0, nil
}

// Offer repository methods
func (r *PostgresRepository) ListOffers(ctx context.Context, filter models.OfferFilter) ([]models.Offer, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var q whereBuilder
	if filter.IntentID != "" {
		q.add("intent_id = $%d", filter.IntentID)
	}
	if filter.IntentIDs != nil {
		q.add("intent_id = ANY($%d)", pq.Array(filter.IntentIDs))
	}
	if filter.ProducerID != "" {
		q.add("producer_id = $%d", filter.ProducerID)
	}
	if filter.Status != "" {
		q.add("status = $%d", string(filter.Status))
	}

	query := `SELECT ` + offerColumns + ` FROM offers` + q.where() + ` ORDER BY created_at DESC, id DESC`

	var rows []offerRow
	if err := r.db.SelectContext(ctx, &rows, query, q.args...); err != nil {
		return nil, classify("list offers", err)
	}

	offers := make([]models.Offer, 0, len(rows))
	for _, row := range rows {
		offers = append(offers, row.toModel())
	}
	return offers, nil
}

func (r *PostgresRepository) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	return getOffer(ctx, r.db, id, false)
}

func getOffer(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var row offerRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: offer %s", models.ErrNotFound, id)
		}
		return nil, classify("get offer", err)
	}
	offer := row.toModel()
	return &offer, nil
}

func (r *PostgresRepository) CreateOffer(ctx context.Context, offer *models.Offer) error {
	if err := offer.Validate(); err != nil {
		return err
	}

	// Generate a new UUID if not provided
	if offer.ID == "" {
		offer.ID = uuid.New().String()
	}
	offer.Status = models.OfferPending
	offer.DeclineReason = ""
	offer.DecidedAt = nil
	offer.CreatedAt = r.now().UTC()

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var status string
		err := tx.GetContext(ctx, &status, `SELECT status FROM intents WHERE id = $1 FOR SHARE`, offer.IntentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: intent %s", models.ErrNotFound, offer.IntentID)
			}
			return err
		}
		if models.IntentStatus(status) != models.IntentActive {
			return fmt.Errorf("%w: intent %s is %s", models.ErrConflict, offer.IntentID, status)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO offers (`+offerColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			offer.ID, offer.IntentID, offer.ProducerID, offer.Company, offer.Product,
			offer.Price, offer.OriginalPrice, offer.ExpiresAt, string(offer.Status),
			nil, nil, offer.CreatedAt)
		return err
	})
	return classify("create offer", err)
}

func (r *PostgresRepository) UpdateOffer(ctx context.Context, id string, patch models.OfferPatch) (*models.Offer, error) {
	var updated models.Offer
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		current, err := getOffer(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if current.Status != models.OfferPending {
			return fmt.Errorf("%w: offer %s is %s", models.ErrConflict, id, current.Status)
		}
		updated = current.Apply(patch)
		if err := updated.Validate(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE offers
			SET company = $2, product = $3, price = $4, original_price = $5, expires_at = $6
			WHERE id = $1
		`, id, updated.Company, updated.Product, updated.Price, updated.OriginalPrice, updated.ExpiresAt)
		return err
	})
	if err != nil {
		return nil, classify("update offer", err)
	}
	return &updated, nil
}

func (r *PostgresRepository) DeleteOffer(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM offers WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, classify("delete offer", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("delete offer", err)
	}
	if n > 0 {
		return true, nil
	}

	exists, err := r.offerExists(ctx, id)
	if err != nil {
		return false, err
	}
	if exists {
		return false, fmt.Errorf("%w: offer %s is not pending", models.ErrConflict, id)
	}
	return false, nil
}

func (r *PostgresRepository) TransitionOffer(ctx context.Context, id string, to models.OfferStatus, reason string, at time.Time) (*models.Offer, error) {
	if !models.OfferPending.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: cannot move an offer to %q", models.ErrInvalidArgument, to)
	}

	query := `
		UPDATE offers
		SET status = $2, decline_reason = $3, decided_at = $4
		WHERE id = $1 AND status = 'pending'`
	if to != models.OfferExpired {
		query += ` AND (expires_at IS NULL OR expires_at > $4)`
	}
	query += ` RETURNING ` + offerColumns

	var row offerRow
	err := r.db.GetContext(ctx, &row, query, id, string(to), nullString(reason), at.UTC())
	if err == nil {
		offer := row.toModel()
		return &offer, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, classify("transition offer", err)
	}

	// The compare-and-set matched nothing: either the offer is gone or it lost the race.
	exists, err := r.offerExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: offer %s", models.ErrNotFound, id)
	}
	return nil, fmt.Errorf("%w: offer no longer pending", models.ErrConflict)
}

func (r *PostgresRepository) ExpireOffers(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE offers
		SET status = 'expired', decided_at = $1
		WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at <= $1
	`, now.UTC())
	if err != nil {
		return 0, classify("expire offers", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("expire offers", err)
	}
	return int(n), nil
}

func (r *PostgresRepository) offerExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM offers WHERE id = $1)`, id)
	if err != nil {
		return false, classify("check offer", err)
	}
	return exists, nil
}

// Purchase repository methods
func (r *PostgresRepository) ListPurchases(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, error) {
	var q whereBuilder
	if filter.UserID != "" {
		q.add("user_id = $%d", filter.UserID)
	}
	if filter.IntentID != "" {
		q.add("intent_id = $%d", filter.IntentID)
	}

	query := `SELECT ` + purchaseColumns + ` FROM purchases` + q.where() + ` ORDER BY completed_at DESC, id DESC`

	var rows []purchaseRow
	if err := r.db.SelectContext(ctx, &rows, query, q.args...); err != nil {
		return nil, classify("list purchases", err)
	}

	purchases := make([]models.Purchase, 0, len(rows))
	for _, row := range rows {
		purchases = append(purchases, row.toModel())
	}
	return purchases, nil
}

func (r *PostgresRepository) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	var row purchaseRow
	err := r.db.GetContext(ctx, &row, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: purchase %s", models.ErrNotFound, id)
		}
		return nil, classify("get purchase", err)
	}
	purchase := row.toModel()
	return &purchase, nil
}

func (r *PostgresRepository) CreatePurchase(ctx context.Context, purchase *models.Purchase) error {
	// Generate a new UUID if not provided
	if purchase.ID == "" {
		purchase.ID = uuid.New().String()
	}
	now := r.now().UTC()
	purchase.CompletedAt = now

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE intents SET status = 'completed' WHERE id = $1 AND status = 'active'`,
			purchase.IntentID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists,
				`SELECT EXISTS(SELECT 1 FROM intents WHERE id = $1)`, purchase.IntentID); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: intent %s", models.ErrNotFound, purchase.IntentID)
			}
			return fmt.Errorf("%w: intent %s is not active", models.ErrConflict, purchase.IntentID)
		}

		if purchase.OfferID != nil {
			offer, err := getOffer(ctx, tx, *purchase.OfferID, true)
			if err != nil {
				return err
			}
			if offer.IntentID != purchase.IntentID {
				return fmt.Errorf("%w: offer %s belongs to another intent", models.ErrInvalidArgument, offer.ID)
			}
			if err := checkPurchasable(*offer, now); err != nil {
				return err
			}
			if offer.Status == models.OfferPending {
				if _, err := tx.ExecContext(ctx,
					`UPDATE offers SET status = 'accepted', decided_at = $2 WHERE id = $1 AND status = 'pending'`,
					offer.ID, now); err != nil {
					return err
				}
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchases (`+purchaseColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, purchase.ID, purchase.IntentID, purchase.OfferID, purchase.UserID, purchase.CompletedAt, purchase.Details)
		return err
	})
	return classify("create purchase", err)
}

// whereBuilder accumulates numbered placeholders for a WHERE clause
type whereBuilder struct {
	conds []string
	args  []interface{}
}

// add appends a condition whose placeholders are written as $%d or $%[1]d
func (w *whereBuilder) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereBuilder) where() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := t.UTC()
	return &out
}
