package payment

import (
	"context"
	"testing"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type midtransStub struct {
	status    *coreapi.TransactionStatusResponse
	statusErr *midtrans.Error
	refundErr *midtrans.Error
	refunds   []*coreapi.RefundReq
	orderIDs  []string
}

func (s *midtransStub) CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error) {
	s.orderIDs = append(s.orderIDs, orderID)
	return s.status, s.statusErr
}

func (s *midtransStub) RefundTransaction(orderID string, req *coreapi.RefundReq) (*coreapi.RefundResponse, *midtrans.Error) {
	s.orderIDs = append(s.orderIDs, orderID)
	s.refunds = append(s.refunds, req)
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	return &coreapi.RefundResponse{}, nil
}

func TestMapMidtransStatus(t *testing.T) {
	cases := map[string]Status{
		"settlement": StatusSuccess,
		"pending":    StatusPending,
		"deny":       StatusFailed,
		"expire":     StatusFailed,
		"cancel":     StatusFailed,
	}
	for raw, want := range cases {
		assert.Equal(t, want, MapMidtransStatus(raw, ""), raw)
	}
	assert.Equal(t, StatusSuccess, MapMidtransStatus("capture", "accept"))
	assert.Equal(t, StatusPending, MapMidtransStatus("capture", "challenge"))
	assert.Equal(t, StatusFailed, MapMidtransStatus("capture", "deny"))
}

func TestMidtransGatewayStatus(t *testing.T) {
	stub := &midtransStub{status: &coreapi.TransactionStatusResponse{TransactionStatus: "settlement"}}
	gw := &MidtransGateway{api: stub}

	status, err := gw.Status(context.Background(), "ADM-001")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, []string{"ADM-001"}, stub.orderIDs)
}

func TestMidtransGatewayRefund(t *testing.T) {
	stub := &midtransStub{}
	gw := &MidtransGateway{api: stub}

	err := gw.Refund(context.Background(), RefundInstruction{TransactionID: "ADM-002", Amount: 500, Reason: "rejected", Key: "refund-1"})
	require.NoError(t, err)
	require.Len(t, stub.refunds, 1)
	assert.Equal(t, int64(500), stub.refunds[0].Amount)
	assert.Equal(t, "refund-1", stub.refunds[0].RefundKey)

	stub.refundErr = &midtrans.Error{Message: "denied", StatusCode: 412}
	err = gw.Refund(context.Background(), RefundInstruction{TransactionID: "ADM-002", Amount: 500})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus(" success ")
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, s)
	_, ok = ParseStatus("refunded")
	assert.False(t, ok)
}
