package topup

import (
	"github.com/amirasaad/topupledger/pkg/domain"
	topupsvc "github.com/amirasaad/topupledger/pkg/service/topup"
)

// InitiateRequest is the body of POST /topup/initiate.
type InitiateRequest struct {
	UserID    string `json:"user_id" validate:"required,uuid"`
	Amount    string `json:"amount" validate:"required"`
	Currency  string `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	CardLast4 string `json:"visa_card_last_four" validate:"required"`
}

// InitiateResponse reports where the top-up got to synchronously.
type InitiateResponse struct {
	Message               string `json:"message"`
	InternalTransactionID string `json:"internal_transaction_id,omitempty"`
	SmartContractTopUpID  string `json:"smart_contract_top_up_id,omitempty"`
	SmartContractTxHash   string `json:"smart_contract_tx_hash,omitempty"`
	VisaAPIStatus         string `json:"visa_api_status,omitempty"`
	VisaTransactionID     string `json:"visa_transaction_id,omitempty"`
	SagaID                string `json:"saga_id"`
	State                 string `json:"state"`
	CorrelationKey        string `json:"correlation_key"`
}

func toInitiateResponse(message string, res *topupsvc.Result) InitiateResponse {
	sg := res.Saga
	out := InitiateResponse{
		Message:              message,
		SmartContractTopUpID: sg.OnChainRequestID,
		SmartContractTxHash:  sg.OnChainTxRef,
		VisaAPIStatus:        sg.GatewayStatus,
		VisaTransactionID:    sg.GatewayTxnID,
		SagaID:               sg.ID.String(),
		State:                string(sg.State),
		CorrelationKey:       sg.CorrelationKey,
	}
	if sg.TransactionID != nil {
		out.InternalTransactionID = sg.TransactionID.String()
	}
	if res.Charge != nil {
		out.VisaAPIStatus = string(res.Charge.Status)
		out.VisaTransactionID = res.Charge.GatewayTxnID
	}
	return out
}

// SagaResponse is the status view of one top-up.
type SagaResponse struct {
	*domain.TopUpSaga
	Terminal bool `json:"terminal"`
}

func toSagaResponse(sg *domain.TopUpSaga) SagaResponse {
	return SagaResponse{TopUpSaga: sg, Terminal: sg.State.Terminal()}
}
