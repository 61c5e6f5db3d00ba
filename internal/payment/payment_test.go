package payment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastFour(t *testing.T) {
	n, err := LastFour("2222405343248877")
	require.NoError(t, err)
	assert.Equal(t, 8877, n)

	n, err = LastFour("22224053432400001")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "leading zeros are dropped by the integer projection")

	_, err = LastFour("123")
	assert.Error(t, err)

	_, err = LastFour("123456789abc")
	assert.Error(t, err)
}

func TestRequest_ExpiryDate(t *testing.T) {
	assert.Equal(t, "04/2030", Request{ExpiryMonth: 4, ExpiryYear: 2030}.ExpiryDate())
	assert.Equal(t, "12/2031", Request{ExpiryMonth: 12, ExpiryYear: 2031}.ExpiryDate())
}

func TestNewPendingRecord(t *testing.T) {
	id := uuid.New()
	req := Request{CardNumber: "2222405343248877", ExpiryMonth: 4, ExpiryYear: 2030, Currency: GBP, Amount: 100, CVV: "123"}

	rec, err := NewPendingRecord(id, req)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, 8877, rec.CardNumberLastFour)
	assert.Equal(t, GBP, rec.Currency)
	assert.Equal(t, int64(100), rec.Amount)
	assert.Empty(t, rec.AuthorizationCode)
	assert.Nil(t, rec.Authorized)
}

func TestCurrency_IsSupported(t *testing.T) {
	for _, c := range Currencies {
		assert.True(t, c.IsSupported(), c)
	}
	assert.False(t, Currency("BRL").IsSupported())
	assert.False(t, Currency("usd").IsSupported())
}

func TestProjection(t *testing.T) {
	rec := Record{
		ID: uuid.New(), Status: StatusAuthorized, CardNumberLastFour: 4321,
		ExpiryMonth: 12, ExpiryYear: 2030, Currency: USD, Amount: 10, AuthorizationCode: "abc",
	}

	created := ToCreateResponse(rec)
	assert.Equal(t, ClientAuthorized, created.Status)
	assert.Equal(t, rec.ID, created.ID)
	assert.Equal(t, 4321, created.CardNumberLastFour)

	rec.Status = StatusDeclined
	got := ToResponse(rec)
	assert.Equal(t, ClientDeclined, got.Status)
	assert.Equal(t, int64(10), got.Amount)

	assert.Equal(t, ClientDeclined, ToClientStatus(StatusPending))
	assert.True(t, StatusDeclined.Terminal())
	assert.False(t, StatusPending.Terminal())
}
