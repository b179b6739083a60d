package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
)

// midtransAPI is the subset of coreapi.Client used here.
type midtransAPI interface {
	CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
	RefundTransaction(orderID string, req *coreapi.RefundReq) (*coreapi.RefundResponse, *midtrans.Error)
}

// MidtransGateway reports transaction status and issues refunds through Midtrans Core API.
type MidtransGateway struct {
	api midtransAPI
}

// NewMidtrans builds a gateway for the sandbox or production environment.
func NewMidtrans(serverKey string, production bool) *MidtransGateway {
	client := &coreapi.Client{}
	if production {
		client.New(serverKey, midtrans.Production)
	} else {
		client.New(serverKey, midtrans.Sandbox)
	}
	return &MidtransGateway{api: client}
}

// Status maps the Midtrans transaction_status/fraud_status pair onto Status.
func (g *MidtransGateway) Status(ctx context.Context, transactionID string) (Status, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	res, mErr := g.api.CheckTransaction(transactionID)
	if mErr != nil {
		return "", fmt.Errorf("midtrans check %s: %s", transactionID, mErr.Message)
	}
	if res == nil {
		return "", fmt.Errorf("midtrans check %s: empty response", transactionID)
	}
	return MapMidtransStatus(res.TransactionStatus, res.FraudStatus), nil
}

// Refund submits a refund for the transaction.
func (g *MidtransGateway) Refund(ctx context.Context, instruction RefundInstruction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := &coreapi.RefundReq{
		RefundKey: instruction.Key,
		Amount:    instruction.Amount,
		Reason:    instruction.Reason,
	}
	if _, mErr := g.api.RefundTransaction(instruction.TransactionID, req); mErr != nil {
		return fmt.Errorf("midtrans refund %s: %s", instruction.TransactionID, mErr.Message)
	}
	return nil
}

// MapMidtransStatus normalises a Midtrans notification or status response.
func MapMidtransStatus(transactionStatus, fraudStatus string) Status {
	switch strings.ToLower(transactionStatus) {
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "accept", "":
			return StatusSuccess
		case "challenge":
			return StatusPending
		}
		return StatusFailed
	case "settlement":
		return StatusSuccess
	case "pending", "authorize":
		return StatusPending
	default:
		return StatusFailed
	}
}
