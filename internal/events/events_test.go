package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
)

func TestOrderCreated_CarriesOrderNumber(t *testing.T) {
	view := domain.OrderView{
		Order: domain.Order{
			ID:             "order-1",
			OwnerID:        "acc-1",
			SequenceNumber: 42,
			Status:         domain.OrderStatusPlaced,
			Currency:       "USD",
			AmountMinor:    500,
			CreatedAt:      time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC),
		},
		CustomerCode: domain.Int64Ptr(7),
	}

	msg, err := OrderCreated(view)
	require.NoError(t, err)
	require.Equal(t, AggregateOrder, msg.AggregateType)
	require.Equal(t, "order-1", msg.AggregateID)
	require.Equal(t, string(EventTypeOrderCreated), msg.EventType)

	var payload OrderEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	require.Equal(t, "0007-240305-0042", payload.OrderNumber)
	require.Equal(t, int64(42), payload.SequenceNumber)
	require.Equal(t, "acc-1", payload.OwnerID)
}

func TestOrderCanceled_WithoutCustomerCode(t *testing.T) {
	view := domain.OrderView{
		Order: domain.Order{
			ID:             "order-2",
			OwnerID:        "acc-2",
			SequenceNumber: 3,
			Status:         domain.OrderStatusCanceled,
			CreatedAt:      time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC),
		},
	}

	msg, err := OrderCanceled(view)
	require.NoError(t, err)

	var payload OrderEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	require.Equal(t, "0000-240305-0003", payload.OrderNumber)
	require.Nil(t, payload.CustomerCode)
	require.Equal(t, "canceled", payload.Status)
}

func TestOrderCreated_RejectsNegativeSequence(t *testing.T) {
	_, err := OrderCreated(domain.OrderView{Order: domain.Order{SequenceNumber: -1}})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCustomerCodeAssigned(t *testing.T) {
	msg, err := CustomerCodeAssigned("acc-9", 1001)
	require.NoError(t, err)
	require.Equal(t, AggregateAccount, msg.AggregateType)

	var payload CustomerCodeEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	require.Equal(t, int64(1001), payload.CustomerCode)
	require.Equal(t, "acc-9", payload.AccountID)
}
