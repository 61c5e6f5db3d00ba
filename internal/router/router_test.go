package router_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-gateway/internal/adapter"
	adaptermock "github.com/yourorg/payment-gateway/internal/adapter/mock"
	"github.com/yourorg/payment-gateway/internal/payment"
	"github.com/yourorg/payment-gateway/internal/processor"
	"github.com/yourorg/payment-gateway/internal/router"
	"github.com/yourorg/payment-gateway/internal/router/circuitbreaker"
)

// MockProcessor is a mock implementation of router.PaymentProcessor using testify/mock.
type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(ctx context.Context, req payment.Request) (*adapter.Verdict, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*adapter.Verdict)
	return res, args.Error(1)
}

func (m *MockProcessor) Name() string {
	return "primary"
}

// MockGate is a mock implementation of router.Gate using testify/mock.
type MockGate struct {
	mock.Mock
}

func (m *MockGate) Acquire(name string) (circuitbreaker.Permit, bool) {
	args := m.Called(name)
	return circuitbreaker.Permit{Name: name, Generation: 7}, args.Bool(0)
}
func (m *MockGate) Success(p circuitbreaker.Permit) { m.Called(p) }
func (m *MockGate) Failure(p circuitbreaker.Permit) { m.Called(p) }

func dummyRequest() payment.Request {
	return payment.Request{
		CardNumber:  "2222405343248877",
		ExpiryMonth: 1,
		ExpiryYear:  2030,
		Currency:    payment.USD,
		Amount:      100,
		CVV:         "123",
	}
}

func TestNewRouter_Panics(t *testing.T) {
	assert.Panics(t, func() { router.NewRouter(nil, new(MockGate)) }, "Should panic if processor is nil")
	assert.Panics(t, func() { router.NewRouter(new(MockProcessor), nil) }, "Should panic if gate is nil")
}

func TestRouter_Name(t *testing.T) {
	assert.Equal(t, "primary", router.NewRouter(new(MockProcessor), new(MockGate)).Name())
}

func TestRouter_Authorize(t *testing.T) {
	t.Run("Authorized verdict records success", func(t *testing.T) {
		proc, gate := new(MockProcessor), new(MockGate)
		gate.On("Acquire", "primary").Return(true).Once()
		gate.On("Success", circuitbreaker.Permit{Name: "primary", Generation: 7}).Once()
		proc.On("Process", mock.Anything, dummyRequest()).Return(&adapter.Verdict{Authorized: true, AuthorizationCode: "c"}, nil).Once()

		verdict, err := router.NewRouter(proc, gate).Authorize(context.Background(), dummyRequest())
		require.NoError(t, err)
		require.NotNil(t, verdict)
		assert.True(t, verdict.Authorized)
		proc.AssertExpectations(t)
		gate.AssertExpectations(t)
	})

	t.Run("Declined verdict is not a failure", func(t *testing.T) {
		proc, gate := new(MockProcessor), new(MockGate)
		gate.On("Acquire", "primary").Return(true).Once()
		gate.On("Success", circuitbreaker.Permit{Name: "primary", Generation: 7}).Once()
		proc.On("Process", mock.Anything, mock.Anything).Return(&adapter.Verdict{Authorized: false}, nil).Once()

		verdict, err := router.NewRouter(proc, gate).Authorize(context.Background(), dummyRequest())
		require.NoError(t, err)
		assert.False(t, verdict.Authorized)
		gate.AssertNotCalled(t, "Failure", mock.Anything)
	})

	t.Run("Missing verdict records success", func(t *testing.T) {
		proc, gate := new(MockProcessor), new(MockGate)
		gate.On("Acquire", "primary").Return(true).Once()
		gate.On("Success", circuitbreaker.Permit{Name: "primary", Generation: 7}).Once()
		proc.On("Process", mock.Anything, mock.Anything).Return(nil, nil).Once()

		verdict, err := router.NewRouter(proc, gate).Authorize(context.Background(), dummyRequest())
		require.NoError(t, err)
		assert.Nil(t, verdict)
		gate.AssertExpectations(t)
	})

	t.Run("Processor error records failure", func(t *testing.T) {
		proc, gate := new(MockProcessor), new(MockGate)
		gate.On("Acquire", "primary").Return(true).Once()
		gate.On("Failure", circuitbreaker.Permit{Name: "primary", Generation: 7}).Once()
		proc.On("Process", mock.Anything, mock.Anything).Return(nil, adapter.ErrUnavailable).Once()

		verdict, err := router.NewRouter(proc, gate).Authorize(context.Background(), dummyRequest())
		require.Error(t, err)
		assert.True(t, errors.Is(err, adapter.ErrUnavailable))
		assert.Nil(t, verdict)
		gate.AssertExpectations(t)
		gate.AssertNotCalled(t, "Success", mock.Anything)
	})

	t.Run("Rejected call never reaches processor", func(t *testing.T) {
		proc, gate := new(MockProcessor), new(MockGate)
		gate.On("Acquire", "primary").Return(false).Once()

		verdict, err := router.NewRouter(proc, gate).Authorize(context.Background(), dummyRequest())
		require.Error(t, err)
		assert.True(t, errors.Is(err, circuitbreaker.ErrOpen))
		assert.Nil(t, verdict)
		proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
		gate.AssertNotCalled(t, "Failure", mock.Anything)
		gate.AssertNotCalled(t, "Success", mock.Anything)
	})

	t.Run("Processor panic records failure", func(t *testing.T) {
		gate := new(MockGate)
		gate.On("Acquire", "boom").Return(true).Once()
		gate.On("Failure", circuitbreaker.Permit{Name: "boom", Generation: 7}).Once()

		a := adaptermock.NewMockAdapter("boom")
		a.AuthorizeFunc = func(context.Context, adapter.AuthorizationRequest) (*adapter.Verdict, error) {
			panic("bank client exploded")
		}

		verdict, err := router.NewRouter(processor.NewProcessor(a), gate).Authorize(context.Background(), dummyRequest())
		require.Error(t, err)
		assert.True(t, errors.Is(err, adapter.ErrUnavailable))
		assert.Contains(t, err.Error(), "bank client exploded")
		assert.Nil(t, verdict)
		gate.AssertExpectations(t)
	})
}

func TestRouter_Authorize_WithCircuitBreaker(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		SlidingWindowSize: 2,
		MinimumCalls:      2,
		OpenTimeout:       50 * time.Millisecond,
		HalfOpenMaxCalls:  1,
	})
	a := adaptermock.NewMockAdapter("bank-under-test")
	failing := true
	a.AuthorizeFunc = func(context.Context, adapter.AuthorizationRequest) (*adapter.Verdict, error) {
		if failing {
			return nil, adapter.ErrUnavailable
		}
		return &adapter.Verdict{Authorized: true, AuthorizationCode: "ok"}, nil
	}
	r := router.NewRouter(processor.NewProcessor(a), cb)

	for i := 0; i < 2; i++ {
		_, err := r.Authorize(context.Background(), dummyRequest())
		require.ErrorIs(t, err, adapter.ErrUnavailable)
	}
	assert.Equal(t, circuitbreaker.StateOpen, cb.GetState("bank-under-test"))

	_, err := r.Authorize(context.Background(), dummyRequest())
	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int64(2), a.Calls(), "Open circuit must not reach the authorizer")

	time.Sleep(60 * time.Millisecond)
	failing = false
	verdict, err := r.Authorize(context.Background(), dummyRequest())
	require.NoError(t, err)
	assert.True(t, verdict.Authorized)
	assert.Equal(t, circuitbreaker.StateClosed, cb.GetState("bank-under-test"))
}
