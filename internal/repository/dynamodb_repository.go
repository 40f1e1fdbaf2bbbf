package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/rongwang/intentmarket/internal/models"
)

const (
	usersTable     = "users"
	intentsTable   = "intents"
	offersTable    = "offers"
	purchasesTable = "purchases"

	// IntentIDIndex is the GSI on offers and purchases keyed by intent_id
	IntentIDIndex = "intent_id-index"

	usernameKeyPrefix = "username#"
)

// DynamoAPI is the subset of the DynamoDB client the repository uses
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type userItem struct {
	ID        string `dynamodbav:"id"`
	Username  string `dynamodbav:"username"`
	Password  string `dynamodbav:"password"`
	Name      string `dynamodbav:"name"`
	Role      string `dynamodbav:"role"`
	CreatedAt int64  `dynamodbav:"created_at"`
}

// usernameItem reserves a username inside the users table
type usernameItem struct {
	ID     string `dynamodbav:"id"`
	UserID string `dynamodbav:"user_id"`
}

type intentItem struct {
	ID        string   `dynamodbav:"id"`
	UserID    string   `dynamodbav:"user_id"`
	Title     string   `dynamodbav:"title"`
	Timeframe string   `dynamodbav:"timeframe"`
	BudgetMin *float64 `dynamodbav:"budget_min,omitempty"`
	BudgetMax *float64 `dynamodbav:"budget_max,omitempty"`
	Features  []string `dynamodbav:"features"`
	Brands    []string `dynamodbav:"brands"`
	Category  string   `dynamodbav:"category,omitempty"`
	Region    string   `dynamodbav:"region,omitempty"`
	Status    string   `dynamodbav:"status"`
	CreatedAt int64    `dynamodbav:"created_at"`
}

type offerItem struct {
	ID            string   `dynamodbav:"id"`
	IntentID      string   `dynamodbav:"intent_id"`
	ProducerID    string   `dynamodbav:"producer_id"`
	Company       string   `dynamodbav:"company"`
	Product       string   `dynamodbav:"product"`
	Price         float64  `dynamodbav:"price"`
	OriginalPrice *float64 `dynamodbav:"original_price,omitempty"`
	ExpiresAt     *int64   `dynamodbav:"expires_at,omitempty"`
	Status        string   `dynamodbav:"status"`
	DeclineReason string   `dynamodbav:"decline_reason,omitempty"`
	DecidedAt     *int64   `dynamodbav:"decided_at,omitempty"`
	CreatedAt     int64    `dynamodbav:"created_at"`
}

type purchaseItem struct {
	ID          string `dynamodbav:"id"`
	IntentID    string `dynamodbav:"intent_id"`
	OfferID     string `dynamodbav:"offer_id,omitempty"`
	UserID      string `dynamodbav:"user_id"`
	CompletedAt int64  `dynamodbav:"completed_at"`
	Details     string `dynamodbav:"details"`
}

// DynamoRepository implements the Repository interface on DynamoDB.
//
// Table requirements (names carry the configured prefix):
//   - users, intents: PK id (string)
//   - offers, purchases: PK id (string), GSI intent_id-index (PK intent_id)
type DynamoRepository struct {
	ddb    DynamoAPI
	prefix string
	now    func() time.Time
}

// NewDynamoRepository creates a repository over the given client
func NewDynamoRepository(ddb DynamoAPI, tablePrefix string) *DynamoRepository {
	return &DynamoRepository{
		ddb:    ddb,
		prefix: tablePrefix,
		now:    time.Now,
	}
}

// TableName returns the prefixed physical name of a logical table
func (r *DynamoRepository) TableName(name string) string {
	return r.prefix + name
}

func (r *DynamoRepository) table(name string) *string {
	return aws.String(r.TableName(name))
}

func (r *DynamoRepository) Ping(ctx context.Context) error {
	_, err := r.ddb.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: r.table(intentsTable)})
	return classify("ping", err)
}

// User repository methods
func (r *DynamoRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = r.now().UTC()

	userAV, err := attributevalue.MarshalMap(userItem{
		ID:        user.ID,
		Username:  user.Username,
		Password:  user.Password,
		Name:      user.Name,
		Role:      string(user.Role),
		CreatedAt: toNanos(user.CreatedAt),
	})
	if err != nil {
		return err
	}
	guardAV, err := attributevalue.MarshalMap(usernameItem{ID: usernameKeyPrefix + user.Username, UserID: user.ID})
	if err != nil {
		return err
	}

	notExists := aws.String("attribute_not_exists(#id)")
	names := map[string]string{"#id": "id"}
	_, err = r.ddb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: r.table(usersTable), Item: guardAV, ConditionExpression: notExists, ExpressionAttributeNames: names}},
			{Put: &types.Put{TableName: r.table(usersTable), Item: userAV, ConditionExpression: notExists, ExpressionAttributeNames: names}},
		},
	})
	if isConditionFailure(err) {
		return fmt.Errorf("%w: username %q already taken", models.ErrConflict, user.Username)
	}
	return classify("create user", err)
}

func (r *DynamoRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var it userItem
	found, err := r.getItem(ctx, usersTable, id, &it)
	if err != nil {
		return nil, classify("get user", err)
	}
	if !found || it.Username == "" {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, id)
	}
	return &models.User{
		ID:        it.ID,
		Username:  it.Username,
		Password:  it.Password,
		Name:      it.Name,
		Role:      models.Role(it.Role),
		CreatedAt: fromNanos(it.CreatedAt),
	}, nil
}

func (r *DynamoRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var guard usernameItem
	found, err := r.getItem(ctx, usersTable, usernameKeyPrefix+username, &guard)
	if err != nil {
		return nil, classify("get user", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, username)
	}
	return r.GetUserByID(ctx, guard.UserID)
}

// Intent repository methods
func (r *DynamoRepository) ListIntents(ctx context.Context, filter models.IntentFilter) ([]models.Intent, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	raw, err := r.scanAll(ctx, intentsTable)
	if err != nil {
		return nil, classify("list intents", err)
	}

	intents := make([]models.Intent, 0, len(raw))
	for _, av := range raw {
		var it intentItem
		if err := attributevalue.UnmarshalMap(av, &it); err != nil {
			return nil, err
		}
		intent := it.toModel()
		if filter.Matches(intent) {
			intents = append(intents, intent)
		}
	}
	models.SortIntents(intents)
	return intents, nil
}

func (r *DynamoRepository) GetIntent(ctx context.Context, id string) (*models.Intent, error) {
	var it intentItem
	found, err := r.getItem(ctx, intentsTable, id, &it)
	if err != nil {
		return nil, classify("get intent", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: intent %s", models.ErrNotFound, id)
	}
	intent := it.toModel()
	return &intent, nil
}

func (r *DynamoRepository) CreateIntent(ctx context.Context, intent *models.Intent) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}
	*intent = intent.Clone()
	intent.Status = models.IntentActive
	intent.CreatedAt = r.now().UTC()

	av, err := attributevalue.MarshalMap(toIntentItem(*intent))
	if err != nil {
		return err
	}
	_, err = r.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                r.table(intentsTable),
		Item:                     av,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": "id"},
	})
	if isConditionFailure(err) {
		return fmt.Errorf("%w: intent %s already exists", models.ErrConflict, intent.ID)
	}
	return classify("create intent", err)
}

func (r *DynamoRepository) UpdateIntent(ctx context.Context, id string, patch models.IntentPatch) (*models.Intent, error) {
	current, err := r.GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.IntentActive {
		return nil, fmt.Errorf("%w: intent %s is %s", models.ErrConflict, id, current.Status)
	}
	updated := current.Apply(patch)
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	av, err := attributevalue.MarshalMap(toIntentItem(updated))
	if err != nil {
		return nil, err
	}
	_, err = r.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 r.table(intentsTable),
		Item:                      av,
		ConditionExpression:       aws.String("attribute_exists(#id) AND #status = :active"),
		ExpressionAttributeNames:  map[string]string{"#id": "id", "#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":active": stringAV(string(models.IntentActive))},
	})
	if isConditionFailure(err) {
		return nil, fmt.Errorf("%w: intent %s changed concurrently", models.ErrConflict, id)
	}
	if err != nil {
		return nil, classify("update intent", err)
	}
	return &updated, nil
}

func (r *DynamoRepository) DeleteIntent(ctx context.Context, id string) (bool, error) {
	for _, table := range []string{offersTable, purchasesTable} {
		out, err := r.ddb.Query(ctx, &dynamodb.QueryInput{
			TableName:                 r.table(table),
			IndexName:                 aws.String(IntentIDIndex),
			KeyConditionExpression:    aws.String("intent_id = :iid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":iid": stringAV(id)},
			Limit:                     aws.Int32(1),
		})
		if err != nil {
			return false, classify("delete intent", err)
		}
		if len(out.Items) > 0 {
			return false, fmt.Errorf("%w: intent %s is referenced by %s", models.ErrConflict, id, table)
		}
	}

	_, err := r.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                r.table(intentsTable),
		Key:                      idKey(id),
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": "id"},
	})
	if isConditionFailure(err) {
		return false, nil
	}
	if err != nil {
		return false, classify("delete intent", err)
	}
	return true, nil
}

// Offer repository methods
func (r *DynamoRepository) ListOffers(ctx context.Context, filter models.OfferFilter) ([]models.Offer, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var raw []map[string]types.AttributeValue
	var err error
	if filter.IntentID != "" {
		raw, err = r.queryByIntent(ctx, offersTable, filter.IntentID)
	} else {
		raw, err = r.scanAll(ctx, offersTable)
	}
	if err != nil {
		return nil, classify("list offers", err)
	}

	offers := make([]models.Offer, 0, len(raw))
	for _, av := range raw {
		var it offerItem
		if err := attributevalue.UnmarshalMap(av, &it); err != nil {
			return nil, err
		}
		offer := it.toModel()
		if filter.Matches(offer) {
			offers = append(offers, offer)
		}
	}
	models.SortOffers(offers)
	return offers, nil
}

func (r *DynamoRepository) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	var it offerItem
	found, err := r.getItem(ctx, offersTable, id, &it)
	if err != nil {
		return nil, classify("get offer", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: offer %s", models.ErrNotFound, id)
	}
	offer := it.toModel()
	return &offer, nil
}

func (r *DynamoRepository) CreateOffer(ctx context.Context, offer *models.Offer) error {
	if err := offer.Validate(); err != nil {
		return err
	}
	if offer.ID == "" {
		offer.ID = uuid.New().String()
	}
	offer.Status = models.OfferPending
	offer.DeclineReason = ""
	offer.DecidedAt = nil
	offer.CreatedAt = r.now().UTC()

	av, err := attributevalue.MarshalMap(toOfferItem(*offer))
	if err != nil {
		return err
	}
	_, err = r.ddb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{ConditionCheck: &types.ConditionCheck{
				TableName:                 r.table(intentsTable),
				Key:                       idKey(offer.IntentID),
				ConditionExpression:       aws.String("#status = :active"),
				ExpressionAttributeNames:  map[string]string{"#status": "status"},
				ExpressionAttributeValues: map[string]types.AttributeValue{":active": stringAV(string(models.IntentActive))},
			}},
			{Put: &types.Put{
				TableName:                r.table(offersTable),
				Item:                     av,
				ConditionExpression:      aws.String("attribute_not_exists(#id)"),
				ExpressionAttributeNames: map[string]string{"#id": "id"},
			}},
		},
	})
	if isConditionFailure(err) {
		if _, getErr := r.GetIntent(ctx, offer.IntentID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: intent %s is not active", models.ErrConflict, offer.IntentID)
	}
	return classify("create offer", err)
}

func (r *DynamoRepository) UpdateOffer(ctx context.Context, id string, patch models.OfferPatch) (*models.Offer, error) {
	current, err := r.GetOffer(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.OfferPending {
		return nil, fmt.Errorf("%w: offer %s is %s", models.ErrConflict, id, current.Status)
	}
	updated := current.Apply(patch)
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	av, err := attributevalue.MarshalMap(toOfferItem(updated))
	if err != nil {
		return nil, err
	}
	_, err = r.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 r.table(offersTable),
		Item:                      av,
		ConditionExpression:       aws.String("#status = :pending"),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pending": stringAV(string(models.OfferPending))},
	})
	if isConditionFailure(err) {
		return nil, fmt.Errorf("%w: offer no longer pending", models.ErrConflict)
	}
	if err != nil {
		return nil, classify("update offer", err)
	}
	return &updated, nil
}

func (r *DynamoRepository) DeleteOffer(ctx context.Context, id string) (bool, error) {
	_, err := r.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 r.table(offersTable),
		Key:                       idKey(id),
		ConditionExpression:       aws.String("#status = :pending"),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pending": stringAV(string(models.OfferPending))},
	})
	if err == nil {
		return true, nil
	}
	if !isConditionFailure(err) {
		return false, classify("delete offer", err)
	}
	if _, getErr := r.GetOffer(ctx, id); getErr != nil {
		if errors.Is(getErr, models.ErrNotFound) {
			return false, nil
		}
		return false, getErr
	}
	return false, fmt.Errorf("%w: offer %s is not pending", models.ErrConflict, id)
}

func (r *DynamoRepository) TransitionOffer(ctx context.Context, id string, to models.OfferStatus, reason string, at time.Time) (*models.Offer, error) {
	if !models.OfferPending.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: cannot move an offer to %q", models.ErrInvalidArgument, to)
	}

	update := "SET #status = :to, decided_at = :at"
	values := map[string]types.AttributeValue{
		":to":      stringAV(string(to)),
		":at":      numberAV(toNanos(at)),
		":pending": stringAV(string(models.OfferPending)),
	}
	if reason != "" {
		update += ", decline_reason = :reason"
		values[":reason"] = stringAV(reason)
	}
	cond := "#status = :pending"
	if to != models.OfferExpired {
		cond += " AND (attribute_not_exists(expires_at) OR expires_at > :at)"
	}

	out, err := r.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 r.table(offersTable),
		Key:                       idKey(id),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailure(err) {
		if _, getErr := r.GetOffer(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: offer no longer pending", models.ErrConflict)
	}
	if err != nil {
		return nil, classify("transition offer", err)
	}

	var it offerItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &it); err != nil {
		return nil, err
	}
	offer := it.toModel()
	return &offer, nil
}

func (r *DynamoRepository) ExpireOffers(ctx context.Context, now time.Time) (int, error) {
	paginator := dynamodb.NewScanPaginator(r.ddb, &dynamodb.ScanInput{
		TableName:                r.table(offersTable),
		FilterExpression:         aws.String("#status = :pending AND expires_at <= :now"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": stringAV(string(models.OfferPending)),
			":now":     numberAV(toNanos(now)),
		},
	})

	count := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return count, classify("expire offers", err)
		}
		for _, av := range page.Items {
			var it offerItem
			if err := attributevalue.UnmarshalMap(av, &it); err != nil {
				return count, err
			}
			_, err := r.TransitionOffer(ctx, it.ID, models.OfferExpired, "", now)
			switch {
			case err == nil:
				count++
			case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrNotFound):
				// decided or removed since the scan
			default:
				return count, err
			}
		}
	}
	return count, nil
}

// Purchase repository methods
func (r *DynamoRepository) ListPurchases(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, error) {
	var raw []map[string]types.AttributeValue
	var err error
	if filter.IntentID != "" {
		raw, err = r.queryByIntent(ctx, purchasesTable, filter.IntentID)
	} else {
		raw, err = r.scanAll(ctx, purchasesTable)
	}
	if err != nil {
		return nil, classify("list purchases", err)
	}

	purchases := make([]models.Purchase, 0, len(raw))
	for _, av := range raw {
		var it purchaseItem
		if err := attributevalue.UnmarshalMap(av, &it); err != nil {
			return nil, err
		}
		purchase, err := it.toModel()
		if err != nil {
			return nil, err
		}
		if filter.Matches(purchase) {
			purchases = append(purchases, purchase)
		}
	}
	models.SortPurchases(purchases)
	return purchases, nil
}

func (r *DynamoRepository) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	var it purchaseItem
	found, err := r.getItem(ctx, purchasesTable, id, &it)
	if err != nil {
		return nil, classify("get purchase", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: purchase %s", models.ErrNotFound, id)
	}
	purchase, err := it.toModel()
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *DynamoRepository) CreatePurchase(ctx context.Context, purchase *models.Purchase) error {
	now := r.now().UTC()

	intent, err := r.GetIntent(ctx, purchase.IntentID)
	if err != nil {
		return err
	}
	if intent.Status != models.IntentActive {
		return fmt.Errorf("%w: intent %s is %s", models.ErrConflict, intent.ID, intent.Status)
	}

	if purchase.ID == "" {
		purchase.ID = uuid.New().String()
	}
	purchase.CompletedAt = now

	items := []types.TransactWriteItem{{
		Update: &types.Update{
			TableName:                 r.table(intentsTable),
			Key:                       idKey(intent.ID),
			UpdateExpression:          aws.String("SET #status = :completed"),
			ConditionExpression:       aws.String("#status = :active"),
			ExpressionAttributeNames:  map[string]string{"#status": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":completed": stringAV(string(models.IntentCompleted)),
				":active":    stringAV(string(models.IntentActive)),
			},
		},
	}}

	if purchase.OfferID != nil {
		offer, err := r.GetOffer(ctx, *purchase.OfferID)
		if err != nil {
			return err
		}
		if offer.IntentID != intent.ID {
			return fmt.Errorf("%w: offer %s belongs to another intent", models.ErrInvalidArgument, offer.ID)
		}
		if err := checkPurchasable(*offer, now); err != nil {
			return err
		}
		items = append(items, r.offerAcceptItem(*offer, now))
	}

	it, err := toPurchaseItem(*purchase)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return err
	}
	items = append(items, types.TransactWriteItem{Put: &types.Put{
		TableName:                r.table(purchasesTable),
		Item:                     av,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": "id"},
	}})

	_, err = r.ddb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if isConditionFailure(err) {
		return fmt.Errorf("%w: intent or offer changed concurrently", models.ErrConflict)
	}
	return classify("create purchase", err)
}

// offerAcceptItem builds the transaction step that moves the offer to accepted,
// or just re-checks it when it was accepted already.
func (r *DynamoRepository) offerAcceptItem(offer models.Offer, now time.Time) types.TransactWriteItem {
	names := map[string]string{"#status": "status"}
	if offer.Status == models.OfferAccepted {
		return types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
			TableName:                 r.table(offersTable),
			Key:                       idKey(offer.ID),
			ConditionExpression:       aws.String("#status = :accepted"),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: map[string]types.AttributeValue{":accepted": stringAV(string(models.OfferAccepted))},
		}}
	}
	return types.TransactWriteItem{Update: &types.Update{
		TableName:                r.table(offersTable),
		Key:                      idKey(offer.ID),
		UpdateExpression:         aws.String("SET #status = :accepted, decided_at = :now"),
		ConditionExpression:      aws.String("#status = :pending AND (attribute_not_exists(expires_at) OR expires_at > :now)"),
		ExpressionAttributeNames: names,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":accepted": stringAV(string(models.OfferAccepted)),
			":pending":  stringAV(string(models.OfferPending)),
			":now":      numberAV(toNanos(now)),
		},
	}}
}

func (r *DynamoRepository) getItem(ctx context.Context, table, id string, out interface{}) (bool, error) {
	res, err := r.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      r.table(table),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, err
	}
	if len(res.Item) == 0 {
		return false, nil
	}
	return true, attributevalue.UnmarshalMap(res.Item, out)
}

func (r *DynamoRepository) scanAll(ctx context.Context, table string) ([]map[string]types.AttributeValue, error) {
	paginator := dynamodb.NewScanPaginator(r.ddb, &dynamodb.ScanInput{
		TableName:      r.table(table),
		ConsistentRead: aws.Bool(true),
	})
	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func (r *DynamoRepository) queryByIntent(ctx context.Context, table, intentID string) ([]map[string]types.AttributeValue, error) {
	paginator := dynamodb.NewQueryPaginator(r.ddb, &dynamodb.QueryInput{
		TableName:                 r.table(table),
		IndexName:                 aws.String(IntentIDIndex),
		KeyConditionExpression:    aws.String("intent_id = :iid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":iid": stringAV(intentID)},
	})
	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func isConditionFailure(err error) bool {
	if err == nil {
		return false
	}
	var cfe *types.ConditionalCheckFailedException
	if errors.As(err, &cfe) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

func toIntentItem(i models.Intent) intentItem {
	return intentItem{
		ID:        i.ID,
		UserID:    i.UserID,
		Title:     i.Title,
		Timeframe: i.Timeframe,
		BudgetMin: i.BudgetMin,
		BudgetMax: i.BudgetMax,
		Features:  i.Features,
		Brands:    i.Brands,
		Category:  i.Category,
		Region:    i.Region,
		Status:    string(i.Status),
		CreatedAt: toNanos(i.CreatedAt),
	}
}

func (it intentItem) toModel() models.Intent {
	return models.Intent{
		ID:        it.ID,
		UserID:    it.UserID,
		Title:     it.Title,
		Timeframe: it.Timeframe,
		BudgetMin: it.BudgetMin,
		BudgetMax: it.BudgetMax,
		Features:  it.Features,
		Brands:    it.Brands,
		Category:  it.Category,
		Region:    it.Region,
		Status:    models.IntentStatus(it.Status),
		CreatedAt: fromNanos(it.CreatedAt),
	}.Clone()
}

func toOfferItem(o models.Offer) offerItem {
	return offerItem{
		ID:            o.ID,
		IntentID:      o.IntentID,
		ProducerID:    o.ProducerID,
		Company:       o.Company,
		Product:       o.Product,
		Price:         o.Price,
		OriginalPrice: o.OriginalPrice,
		ExpiresAt:     nanosPtr(o.ExpiresAt),
		Status:        string(o.Status),
		DeclineReason: o.DeclineReason,
		DecidedAt:     nanosPtr(o.DecidedAt),
		CreatedAt:     toNanos(o.CreatedAt),
	}
}

func (it offerItem) toModel() models.Offer {
	return models.Offer{
		ID:            it.ID,
		IntentID:      it.IntentID,
		ProducerID:    it.ProducerID,
		Company:       it.Company,
		Product:       it.Product,
		Price:         it.Price,
		OriginalPrice: it.OriginalPrice,
		ExpiresAt:     timePtr(it.ExpiresAt),
		Status:        models.OfferStatus(it.Status),
		DeclineReason: it.DeclineReason,
		DecidedAt:     timePtr(it.DecidedAt),
		CreatedAt:     fromNanos(it.CreatedAt),
	}
}

func toPurchaseItem(p models.Purchase) (purchaseItem, error) {
	details, err := json.Marshal(p.Details)
	if err != nil {
		return purchaseItem{}, fmt.Errorf("%w: purchase details: %v", models.ErrInvalidArgument, err)
	}
	it := purchaseItem{
		ID:          p.ID,
		IntentID:    p.IntentID,
		UserID:      p.UserID,
		CompletedAt: toNanos(p.CompletedAt),
		Details:     string(details),
	}
	if p.OfferID != nil {
		it.OfferID = *p.OfferID
	}
	return it, nil
}

func (it purchaseItem) toModel() (models.Purchase, error) {
	p := models.Purchase{
		ID:          it.ID,
		IntentID:    it.IntentID,
		UserID:      it.UserID,
		CompletedAt: fromNanos(it.CompletedAt),
	}
	if it.OfferID != "" {
		id := it.OfferID
		p.OfferID = &id
	}
	if err := p.Details.Scan(it.Details); err != nil {
		return models.Purchase{}, err
	}
	return p, nil
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": stringAV(id)}
}

func stringAV(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func numberAV(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nanosPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	n := toNanos(*t)
	return &n
}

func timePtr(n *int64) *time.Time {
	if n == nil {
		return nil
	}
	t := fromNanos(*n)
	return &t
}
