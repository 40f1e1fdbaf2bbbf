package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rongwang/intentmarket/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDynamo answers only the calls a test wires up
type stubDynamo struct {
	DynamoAPI
	getItem    func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	updateItem func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	transact   func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error)
}

func (s *stubDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return s.getItem(in)
}

func (s *stubDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return s.updateItem(in)
}

func (s *stubDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	return s.transact(in)
}

func mustMarshal(t *testing.T, v interface{}) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return av
}

func itemsByTable(t *testing.T, items map[string]map[string]types.AttributeValue) func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
	return func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		id := in.Key["id"].(*types.AttributeValueMemberS).Value
		return &dynamodb.GetItemOutput{Item: items[aws.ToString(in.TableName)+"/"+id]}, nil
	}
}

func TestDynamoTransitionOfferConditionalUpdate(t *testing.T) {
	at := time.Date(2024, 4, 2, 11, 0, 0, 0, time.UTC)
	var captured *dynamodb.UpdateItemInput
	stub := &stubDynamo{
		updateItem: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			captured = in
			decided := toNanos(at)
			return &dynamodb.UpdateItemOutput{Attributes: mustMarshal(t, offerItem{
				ID: "o1", IntentID: "i1", ProducerID: "p1", Company: "Acme", Product: "X",
				Price: 10, Status: "declined", DeclineReason: "too slow", DecidedAt: &decided,
			})}, nil
		},
	}
	repo := NewDynamoRepository(stub, "test_")

	offer, err := repo.TransitionOffer(context.Background(), "o1", models.OfferDeclined, "too slow", at)
	require.NoError(t, err)
	assert.Equal(t, models.OfferDeclined, offer.Status)
	assert.Equal(t, "too slow", offer.DeclineReason)
	require.NotNil(t, offer.DecidedAt)
	assert.True(t, offer.DecidedAt.Equal(at))

	require.NotNil(t, captured)
	assert.Equal(t, "test_offers", aws.ToString(captured.TableName))
	assert.Contains(t, aws.ToString(captured.ConditionExpression), "#status = :pending")
	assert.Contains(t, aws.ToString(captured.ConditionExpression), "expires_at > :at")
	assert.Equal(t, types.ReturnValueAllNew, captured.ReturnValues)
}

func TestDynamoTransitionOfferConditionFailure(t *testing.T) {
	items := map[string]map[string]types.AttributeValue{
		"test_offers/o1": mustMarshal(t, offerItem{ID: "o1", IntentID: "i1", Status: "accepted", Price: 10}),
	}
	stub := &stubDynamo{
		getItem: itemsByTable(t, items),
		updateItem: func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("failed")}
		},
	}
	repo := NewDynamoRepository(stub, "test_")

	_, err := repo.TransitionOffer(context.Background(), "o1", models.OfferAccepted, "", time.Now())
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = repo.TransitionOffer(context.Background(), "missing", models.OfferAccepted, "", time.Now())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDynamoCreateUserDuplicateUsername(t *testing.T) {
	stub := &stubDynamo{
		transact: func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
			require.Len(t, in.TransactItems, 2)
			return nil, &types.TransactionCanceledException{
				Message: aws.String("cancelled"),
				CancellationReasons: []types.CancellationReason{
					{Code: aws.String("ConditionalCheckFailed")},
					{Code: aws.String("None")},
				},
			}
		},
	}
	repo := NewDynamoRepository(stub, "")

	err := repo.CreateUser(context.Background(), &models.User{Username: "alice", Role: models.RoleConsumer})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestDynamoThrottlingIsStoreUnavailable(t *testing.T) {
	stub := &stubDynamo{
		getItem: func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return nil, &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}
		},
	}
	repo := NewDynamoRepository(stub, "")

	_, err := repo.GetIntent(context.Background(), "i1")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestDynamoCreatePurchaseTransaction(t *testing.T) {
	now := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	items := map[string]map[string]types.AttributeValue{
		"intents/i1": mustMarshal(t, intentItem{ID: "i1", UserID: "u1", Title: "Laptop", Timeframe: "ASAP", Status: "active", Features: []string{}, Brands: []string{}}),
		"offers/o1":  mustMarshal(t, offerItem{ID: "o1", IntentID: "i1", Status: "accepted", Price: 10}),
	}
	var captured *dynamodb.TransactWriteItemsInput
	stub := &stubDynamo{
		getItem: itemsByTable(t, items),
		transact: func(in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
			captured = in
			return &dynamodb.TransactWriteItemsOutput{}, nil
		},
	}
	repo := NewDynamoRepository(stub, "")
	repo.now = func() time.Time { return now }

	offerID := "o1"
	purchase := &models.Purchase{IntentID: "i1", OfferID: &offerID, UserID: "u1", Details: models.PurchaseDetails{Notes: "gift"}}
	require.NoError(t, repo.CreatePurchase(context.Background(), purchase))
	assert.Equal(t, now, purchase.CompletedAt)

	require.NotNil(t, captured)
	require.Len(t, captured.TransactItems, 3)
	assert.NotNil(t, captured.TransactItems[0].Update, "intent completion")
	assert.NotNil(t, captured.TransactItems[1].ConditionCheck, "accepted offer is re-checked, not rewritten")
	require.NotNil(t, captured.TransactItems[2].Put)

	var stored purchaseItem
	require.NoError(t, attributevalue.UnmarshalMap(captured.TransactItems[2].Put.Item, &stored))
	assert.Equal(t, "o1", stored.OfferID)
	assert.JSONEq(t, `{"notes":"gift"}`, stored.Details)
}

func TestDynamoCreatePurchaseRaceIsConflict(t *testing.T) {
	items := map[string]map[string]types.AttributeValue{
		"intents/i1": mustMarshal(t, intentItem{ID: "i1", UserID: "u1", Title: "Laptop", Timeframe: "ASAP", Status: "active"}),
	}
	stub := &stubDynamo{
		getItem: itemsByTable(t, items),
		transact: func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
			return nil, &types.TransactionCanceledException{
				CancellationReasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}},
			}
		},
	}
	repo := NewDynamoRepository(stub, "")

	err := repo.CreatePurchase(context.Background(), &models.Purchase{IntentID: "i1", UserID: "u1"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestDynamoCreatePurchaseRejectsUnencodableDetails(t *testing.T) {
	items := map[string]map[string]types.AttributeValue{
		"intents/i1": mustMarshal(t, intentItem{ID: "i1", UserID: "u1", Title: "Laptop", Timeframe: "ASAP", Status: "active"}),
	}
	stub := &stubDynamo{
		getItem: itemsByTable(t, items),
		transact: func(*dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
			t.Fatal("nothing is written when details cannot be encoded")
			return nil, nil
		},
	}
	repo := NewDynamoRepository(stub, "")

	purchase := &models.Purchase{IntentID: "i1", UserID: "u1", Details: models.PurchaseDetails{Extra: json.RawMessage(`{"broken"`)}}
	err := repo.CreatePurchase(context.Background(), purchase)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestIsConditionFailure(t *testing.T) {
	assert.False(t, isConditionFailure(nil))
	assert.False(t, isConditionFailure(errors.New("boom")))
	assert.False(t, isConditionFailure(&types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("ThrottlingError")}},
	}))
	assert.True(t, isConditionFailure(&types.ConditionalCheckFailedException{}))
}

func TestDynamoTableDefinitions(t *testing.T) {
	repo := NewDynamoRepository(&stubDynamo{}, "im_")

	users := repo.tableDefinition(usersTable)
	assert.Equal(t, "im_users", aws.ToString(users.TableName))
	assert.Empty(t, users.GlobalSecondaryIndexes)

	offers := repo.tableDefinition(offersTable)
	require.Len(t, offers.GlobalSecondaryIndexes, 1)
	assert.Equal(t, IntentIDIndex, aws.ToString(offers.GlobalSecondaryIndexes[0].IndexName))
	assert.Len(t, offers.AttributeDefinitions, 2)
}
