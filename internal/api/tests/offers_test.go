package api_test

import (
	"net/http"
	"sync"
	"testing"

	"github.com/rongwang/intentmarket/internal/api/testutils"
	"github.com/rongwang/intentmarket/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createOffer(t *testing.T, testCtx *testutils.TestContext, token, intentID string) map[string]interface{} {
	t.Helper()
	req := models.CreateOfferRequest{
		IntentID:      intentID,
		Company:       "Acme",
		Product:       "Acme Book 14",
		Price:         899,
		OriginalPrice: amount(1099),
	}
	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/offers", req, testutils.AuthHeaders(token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var offer map[string]interface{}
	testutils.DecodeJSON(t, w, &offer)
	return offer
}

func TestCreateOffer(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	intent := createIntent(t, testCtx, testCtx.ConsumerJWT, laptopRequest())

	t.Run("ByProducer", func(t *testing.T) {
		offer := createOffer(t, testCtx, testCtx.ProducerJWT, intent.ID)
		assert.Equal(t, "pending", offer["status"])
		assert.Equal(t, testCtx.ProducerID, offer["producerId"])
		assert.Equal(t, "18% off", offer["discount"])
	})

	t.Run("ByConsumerIsForbidden", func(t *testing.T) {
		req := models.CreateOfferRequest{IntentID: intent.ID, Company: "Me", Product: "Thing", Price: 10}
		w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/offers", req,
			testutils.AuthHeaders(testCtx.ConsumerJWT))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("UnknownIntent", func(t *testing.T) {
		req := models.CreateOfferRequest{IntentID: "missing", Company: "Acme", Product: "Thing", Price: 10}
		w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/offers", req,
			testutils.AuthHeaders(testCtx.ProducerJWT))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("OriginalPriceBelowPrice", func(t *testing.T) {
		req := models.CreateOfferRequest{IntentID: intent.ID, Company: "Acme", Product: "Thing", Price: 100, OriginalPrice: amount(90)}
		w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/offers", req,
			testutils.AuthHeaders(testCtx.ProducerJWT))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestOfferDecisions(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	consumer := testutils.AuthHeaders(testCtx.ConsumerJWT)
	producer := testutils.AuthHeaders(testCtx.ProducerJWT)

	intent := createIntent(t, testCtx, testCtx.ConsumerJWT, laptopRequest())
	first := createOffer(t, testCtx, testCtx.ProducerJWT, intent.ID)
	second := createOffer(t, testCtx, testCtx.ProducerJWT, intent.ID)
	firstID := first["id"].(string)
	secondID := second["id"].(string)

	// Only the intent owner decides
	w := testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/api/offers/"+firstID+"/accept", nil, producer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/api/offers/"+firstID+"/accept", nil, consumer)
	require.Equal(t, http.StatusOK, w.Code)
	var accepted models.Offer
	testutils.DecodeJSON(t, w, &accepted)
	assert.Equal(t, models.OfferAccepted, accepted.Status)
	assert.NotNil(t, accepted.DecidedAt)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/api/offers/"+firstID+"/accept", nil, consumer)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/api/offers/"+firstID+"/decline", nil, consumer)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/api/offers/"+secondID+"/decline",
		models.DeclineOfferRequest{Reason: "Too expensive"}, consumer)
	require.Equal(t, http.StatusOK, w.Code)
	var declined models.Offer
	testutils.DecodeJSON(t, w, &declined)
	assert.Equal(t, models.OfferDeclined, declined.Status)
	assert.Equal(t, "Too expensive", declined.DeclineReason)

	// Decided offers can no longer be edited
	w = testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/api/offers/"+secondID,
		map[string]interface{}{"price": 799}, producer)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/api/offers/missing/accept", nil, consumer)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConcurrentAccept(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	consumer := testutils.AuthHeaders(testCtx.ConsumerJWT)

	intent := createIntent(t, testCtx, testCtx.ConsumerJWT, laptopRequest())
	offerID := createOffer(t, testCtx, testCtx.ProducerJWT, intent.ID)["id"].(string)

	const attempts = 10
	codes := make([]int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			action := "/accept"
			if i%2 == 1 {
				action = "/decline"
			}
			w := testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/api/offers/"+offerID+action, nil, consumer)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	ok, conflict := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		}
	}
	assert.Equal(t, 1, ok, "exactly one decision wins")
	assert.Equal(t, attempts-1, conflict)
}

func TestUpdateAndDeleteOffer(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	producer := testutils.AuthHeaders(testCtx.ProducerJWT)

	intent := createIntent(t, testCtx, testCtx.ConsumerJWT, laptopRequest())
	offerID := createOffer(t, testCtx, testCtx.ProducerJWT, intent.ID)["id"].(string)

	_, otherJWT := testCtx.CreateTestUser(t, "otherproducer", models.RoleProducer)
	other := testutils.AuthHeaders(otherJWT)

	w := testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/api/offers/"+offerID,
		map[string]interface{}{"price": 799}, producer)
	require.Equal(t, http.StatusOK, w.Code)
	var updated map[string]interface{}
	testutils.DecodeJSON(t, w, &updated)
	assert.Equal(t, 799.0, updated["price"])
	assert.Equal(t, "27% off", updated["discount"])

	w = testutils.PerformRequest(testCtx.Router, http.MethodPatch, "/api/offers/"+offerID,
		map[string]interface{}{"price": 1}, other)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodDelete, "/api/offers/"+offerID, nil, other)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodDelete, "/api/offers/"+offerID, nil, producer)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = testutils.PerformRequest(testCtx.Router, http.MethodDelete, "/api/offers/"+offerID, nil, producer)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var errResp models.ErrorResponse
	testutils.DecodeJSON(t, w, &errResp)
	assert.Equal(t, "Offer not found", errResp.Message)
}

func TestOfferListings(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	consumer := testutils.AuthHeaders(testCtx.ConsumerJWT)
	producer := testutils.AuthHeaders(testCtx.ProducerJWT)

	mine := createIntent(t, testCtx, testCtx.ConsumerJWT, laptopRequest())
	otherConsumerID, otherConsumerJWT := testCtx.CreateTestUser(t, "otherconsumer", models.RoleConsumer)
	theirs := createIntent(t, testCtx, otherConsumerJWT, laptopRequest())
	require.Equal(t, otherConsumerID, theirs.UserID)

	createOffer(t, testCtx, testCtx.ProducerJWT, mine.ID)
	createOffer(t, testCtx, testCtx.ProducerJWT, mine.ID)
	createOffer(t, testCtx, testCtx.ProducerJWT, theirs.ID)

	listLen := func(t *testing.T, path string, headers map[string]string) int {
		t.Helper()
		w := testutils.PerformRequest(testCtx.Router, http.MethodGet, path, nil, headers)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var offers []models.Offer
		testutils.DecodeJSON(t, w, &offers)
		return len(offers)
	}

	assert.Equal(t, 2, listLen(t, "/api/user/received-offers", consumer))
	assert.Equal(t, 3, listLen(t, "/api/user/offers", producer))
	assert.Equal(t, 2, listLen(t, "/api/intents/"+mine.ID+"/offers", consumer))
	assert.Equal(t, 2, listLen(t, "/api/offers?intentId="+mine.ID, consumer))
	assert.Equal(t, 3, listLen(t, "/api/offers?producerId="+testCtx.ProducerID, producer))

	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/intents/"+theirs.ID+"/offers", nil, consumer)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/offers", nil, consumer)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/offers?producerId="+testCtx.ProducerID, nil, consumer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// A consumer with no intents receives an empty list, not everything
	_, freshJWT := testCtx.CreateTestUser(t, "freshconsumer", models.RoleConsumer)
	assert.Equal(t, 0, listLen(t, "/api/user/received-offers", testutils.AuthHeaders(freshJWT)))
}

func TestSendOfferMessage(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	intent := createIntent(t, testCtx, testCtx.ConsumerJWT, laptopRequest())
	offerID := createOffer(t, testCtx, testCtx.ProducerJWT, intent.ID)["id"].(string)

	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/offers/"+offerID+"/message",
		models.MessageRequest{Message: "Is it in stock?"}, testutils.AuthHeaders(testCtx.ConsumerJWT))
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.MessageResponse
	testutils.DecodeJSON(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "Message sent successfully", resp.Message)
	assert.False(t, resp.Timestamp.IsZero())

	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/offers/"+offerID+"/message",
		models.MessageRequest{Message: "   "}, testutils.AuthHeaders(testCtx.ConsumerJWT))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, strangerJWT := testCtx.CreateTestUser(t, "stranger", models.RoleConsumer)
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/offers/"+offerID+"/message",
		models.MessageRequest{Message: "hello"}, testutils.AuthHeaders(strangerJWT))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
